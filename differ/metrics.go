package differ

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the differ's collectors.
type Metrics struct {
	diffDuration   *prometheus.HistogramVec
	protocolDiffs  *prometheus.CounterVec
	skippedChanges prometheus.Counter
}

// NewMetrics creates the differ collectors and registers them with reg.
// Collectors already registered under the same names are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "state_diff_duration_seconds",
			Help:    "Time taken to diff two consecutive exchange states.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{}),
		protocolDiffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "state_diff_protocols_total",
			Help: "Protocol diffs produced, by schema.",
		}, []string{"schema"}),
		skippedChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "state_diff_unchanged_total",
			Help: "Protocols left out of a diff because their data did not change.",
		}),
	}
	m.diffDuration = register(reg, m.diffDuration)
	m.protocolDiffs = register(reg, m.protocolDiffs)
	m.skippedChanges = register(reg, m.skippedChanges)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
