package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	AuthFailures    *prometheus.CounterVec

	// UpdateChecks counts remote metadata lookups by result: hit, fetched, unavailable.
	UpdateChecks *prometheus.CounterVec
	Installs     *prometheus.CounterVec
}

// New registers the agent collectors on reg. A nil reg gets a private
// registry that is never exposed.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wm_request_duration_seconds",
			Help:    "Histogram of API request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"route", "status"}),

		AuthFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "wm_auth_failures_total",
			Help: "Rejected API requests by reason.",
		}, []string{"reason"}),

		UpdateChecks: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "wm_update_checks_total",
			Help: "Self-update metadata lookups by result.",
		}, []string{"result"}),

		Installs: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "wm_installs_total",
			Help: "Apply-update attempts by artifact kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
}

func (m *Metrics) AuthFailure(reason string) {
	if m == nil {
		return
	}
	m.AuthFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) UpdateCheck(result string) {
	if m == nil {
		return
	}
	m.UpdateChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) Install(kind, outcome string) {
	if m == nil {
		return
	}
	m.Installs.WithLabelValues(kind, outcome).Inc()
}
