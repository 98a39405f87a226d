// Package metrics holds the Prometheus collectors for capture sessions and
// the medicine dashboard.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level collectors. They are registered via Register.
var (
	regOK atomic.Bool

	captureTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medtrack",
			Subsystem: "capture",
			Name:      "state_transitions_total",
			Help:      "Number of capture session state transitions.",
		}, []string{"target", "from", "to"},
	)
	captureOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medtrack",
			Subsystem: "capture",
			Name:      "sessions_total",
			Help:      "Finished capture sessions by final state.",
		}, []string{"target", "outcome"},
	)
	recognitionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medtrack",
			Subsystem: "recognition",
			Name:      "duration_seconds",
			Help:      "Time spent by the recognition provider per request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target", "result"},
	)
	medicinesByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "medtrack",
			Subsystem: "inventory",
			Name:      "medicines",
			Help:      "Medicines per expiry status at the last dashboard computation.",
		}, []string{"status"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	for _, c := range []prometheus.Collector{captureTransitions, captureOutcomes, recognitionDuration, medicinesByStatus} {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	regOK.Store(true)
	return nil
}

// Handler exposes the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordCaptureTransition(target, from, to string) {
	captureTransitions.WithLabelValues(target, from, to).Inc()
}

func RecordCaptureOutcome(target, outcome string) {
	captureOutcomes.WithLabelValues(target, outcome).Inc()
}

func ObserveRecognition(target string, ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "error"
	}
	recognitionDuration.WithLabelValues(target, result).Observe(d.Seconds())
}

// SetStatusCounts publishes the per-status medicine counts.
func SetStatusCounts(counts map[string]int) {
	for status, n := range counts {
		medicinesByStatus.WithLabelValues(status).Set(float64(n))
	}
}
