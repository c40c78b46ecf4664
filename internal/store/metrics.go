package store

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"eventcal/internal/model"
)

type metrics struct {
	mutations *prometheus.CounterVec
	size      prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventcal_store_mutations_total",
				Help: "Store mutations by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eventcal_store_events",
			Help: "Number of events in the collection after the last write",
		}),
	}
	reg.MustRegister(m.mutations, m.size)
	return m
}

// observe is safe on a nil receiver so the store works without metrics.
func (m *metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, outcome(err)).Inc()
}

func (m *metrics) setSize(n int) {
	if m == nil {
		return
	}
	m.size.Set(float64(n))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
