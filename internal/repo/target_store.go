package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"phoneprov/internal/models"
)

type TargetStore struct{ db *gorm.DB }

func NewTargetStore(db *gorm.DB) *TargetStore { return &TargetStore{db: db} }

func (s *TargetStore) Get(ctx context.Context, id uint) (*models.Target, error) {
	var t models.Target
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, wrap("get target", err)
	}
	return &t, nil
}

func (s *TargetStore) List(ctx context.Context) ([]models.Target, error) {
	var out []models.Target
	if err := s.db.WithContext(ctx).Order("is_default desc, name asc").Find(&out).Error; err != nil {
		return nil, wrap("list targets", err)
	}
	return out, nil
}

// EnsureDefault — get-or-create синтетической корзины для конфигов без клиента.
// Гонка двух первых коммитов решается уникальным именем + ON CONFLICT DO NOTHING.
func (s *TargetStore) EnsureDefault(ctx context.Context) (*models.Target, error) {
	db := s.db.WithContext(ctx)
	var t models.Target
	err := db.Where("is_default = ?", true).Order("id asc").First(&t).Error
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, wrap("get default target", err)
	}
	t = models.Target{Name: models.DefaultTargetName, IsDefault: true}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&t).Error; err != nil {
		return nil, wrap("create default target", err)
	}
	var got models.Target
	if err := db.Where("name = ?", models.DefaultTargetName).First(&got).Error; err != nil {
		return nil, wrap("reload default target", err)
	}
	return &got, nil
}
