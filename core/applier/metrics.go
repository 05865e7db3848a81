package applier

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the Prometheus collectors of an applier.
type metrics struct {
	entries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anansi_bootstrap_entries_total",
			Help: "Manifest entries reconciled, by kind and outcome",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "anansi_bootstrap_entry_duration_seconds",
			Help:    "Time spent reconciling a manifest entry",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"kind"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anansi_bootstrap_runs_total",
			Help: "Manifest applications, by result",
		}, []string{"result"}),
	}

	var err error
	if m.entries, err = register(reg, m.entries); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.runs, err = register(reg, m.runs); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds a collector to reg, reusing the collector already registered under
// the same name.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}

func (m *metrics) observeEntry(result EntryResult, elapsed time.Duration) {
	m.entries.WithLabelValues(string(result.Kind), string(result.Outcome)).Inc()
	m.duration.WithLabelValues(string(result.Kind)).Observe(elapsed.Seconds())
}

func (m *metrics) observeRun(result string) {
	m.runs.WithLabelValues(result).Inc()
}
