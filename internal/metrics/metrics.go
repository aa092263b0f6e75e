// Package metrics — счётчики Prometheus сервиса провижининга.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы обращения телефона.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

var (
	provisioningRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "phoneprov",
			Name:      "provisioning_requests_total",
			Help:      "Provisioning requests by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	versionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "phoneprov",
			Name:      "config_versions_created_total",
			Help:      "Config versions created by wizard commits and rollbacks",
		},
	)

	renderDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "phoneprov",
			Name:      "render_duration_seconds",
			Help:      "Duration of resolve+render of a template",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 10), // 0.5ms .. ~250ms
		},
	)
)

// Register регистрирует коллекторы; повторная регистрация не ошибка.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{provisioningRequests, versionsCreated, renderDuration} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func ProvisioningRequest(stage, outcome string) {
	provisioningRequests.WithLabelValues(stage, outcome).Inc()
}

func VersionCreated() { versionsCreated.Inc() }

// ObserveRender — использовать как defer metrics.ObserveRender(time.Now()).
func ObserveRender(start time.Time) {
	renderDuration.Observe(time.Since(start).Seconds())
}
