package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phoneprov/internal/logs"
)

type failing struct{ calls int }

func (f *failing) Record(context.Context, Entry) error {
	f.calls++
	return errors.New("audit db down")
}

func TestBestEffortSwallows(t *testing.T) {
	hook := test.NewLocal(logs.Logger)
	defer hook.Reset()

	f := &failing{}
	err := NewBestEffort(f).Record(context.Background(), Entry{Action: "config.commit", EntityID: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	assert.NoError(t, NewBestEffort(nil).Record(context.Background(), Entry{}))
}

func TestLogRecorderFields(t *testing.T) {
	hook := test.NewLocal(logs.Logger)
	defer hook.Reset()

	require.NoError(t, NewLogRecorder().Record(context.Background(), Entry{
		Actor: "alice", Action: "config.commit", EntityType: "config_version", EntityID: 12,
	}))
	e := hook.LastEntry()
	require.NotNil(t, e)
	assert.Equal(t, "alice", e.Data["actor"])
	assert.Equal(t, uint(12), e.Data["entity_id"])
	assert.Equal(t, "audit", e.Data["component"])
}
