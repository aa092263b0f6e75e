// Package audit — журнал действий пользователей. Запись best-effort:
// её сбой никогда не прерывает основную операцию.
package audit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"phoneprov/internal/logs"
)

type Entry struct {
	Actor      string
	Action     string
	EntityType string
	EntityID   uint
	OldValue   any
	NewValue   any
	At         time.Time
}

type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// LogRecorder пишет записи аудита структурированным логом.
type LogRecorder struct {
	log *logrus.Entry
}

func NewLogRecorder() *LogRecorder { return &LogRecorder{log: logs.Component("audit")} }

func (l *LogRecorder) Record(_ context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	l.log.WithFields(logrus.Fields{
		"actor":       e.Actor,
		"action":      e.Action,
		"entity_type": e.EntityType,
		"entity_id":   e.EntityID,
		"old":         e.OldValue,
		"new":         e.NewValue,
		"at":          e.At.Format(time.RFC3339),
	}).Info("audit")
	return nil
}

// BestEffort глотает ошибки вложенного Recorder, оставляя след в логе.
type BestEffort struct {
	next Recorder
	log  *logrus.Entry
}

func NewBestEffort(next Recorder) *BestEffort {
	return &BestEffort{next: next, log: logs.Component("audit")}
}

func (b *BestEffort) Record(ctx context.Context, e Entry) error {
	if b.next == nil {
		return nil
	}
	if err := b.next.Record(ctx, e); err != nil {
		b.log.WithError(err).WithFields(logrus.Fields{"action": e.Action, "entity_id": e.EntityID}).Warn("audit record dropped")
	}
	return nil
}
