// Package health — /healthz и /readyz.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"phoneprov/internal/logs"
)

// Pinger — зависимость, без которой сервис не готов принимать запросы.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type PingerFunc func(ctx context.Context) error

func (f PingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

type dbPinger struct{ db *gorm.DB }

func (p dbPinger) PingContext(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func DBPinger(db *gorm.DB) Pinger { return dbPinger{db: db} }

// RegisterRoutes — liveness всегда; readiness проверяет все pingers.
func RegisterRoutes(r *mux.Router, pingers map[string]Pinger) {
	r.HandleFunc("/healthz", liveness).Methods(http.MethodGet)
	r.HandleFunc("/readyz", readiness(pingers)).Methods(http.MethodGet)
}

func liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func readiness(pingers map[string]Pinger) http.HandlerFunc {
	log := logs.Component("health")
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for name, p := range pingers {
			if err := p.PingContext(ctx); err != nil {
				log.WithError(err).WithField("dependency", name).Warn("not ready")
				http.Error(w, name+" unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}
}
