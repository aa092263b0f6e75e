// Package dbtest поднимает изолированную in-memory SQLite для тестов пакетов.
package dbtest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"phoneprov/internal/db"
)

func New(t *testing.T) *gorm.DB {
	t.Helper()
	d, err := db.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(d))
	t.Cleanup(func() {
		if sqlDB, err := d.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return d
}
