package exchange

import (
	"math/big"
	"time"

	"github.com/defistate/defistate-amm-go/events"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultCommitted = "committed"
	resultReverted  = "reverted"
)

// Metrics holds the exchange collectors.
type Metrics struct {
	units        *prometheus.CounterVec
	unitDuration prometheus.Histogram
	events       *prometheus.CounterVec
	reserves     *prometheus.GaugeVec
}

// NewMetrics creates the exchange collectors and registers them with reg.
// Collectors already registered under the same names are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amm_units_total",
			Help: "Units of work run against the exchange, by result.",
		}, []string{"result"}),
		unitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "amm_unit_duration_seconds",
			Help:    "Time spent running and committing a unit of work.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amm_events_total",
			Help: "Committed events, by type.",
		}, []string{"type"}),
		reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "amm_pool_reserve",
			Help: "Last synchronized reserve of a pair, in base units.",
		}, []string{"pair", "side"}),
	}
	m.units = register(reg, m.units)
	m.unitDuration = register(reg, m.unitDuration)
	m.events = register(reg, m.events)
	m.reserves = register(reg, m.reserves)
	return m
}

func (m *Metrics) observeUnit(result string, elapsed time.Duration) {
	m.units.WithLabelValues(result).Inc()
	m.unitDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeEvents(evs []events.Event) {
	for _, ev := range evs {
		m.events.WithLabelValues(ev.EventType()).Inc()
		if sync, ok := ev.(events.ReservesUpdated); ok {
			pair := sync.Pair.Hex()
			m.reserves.WithLabelValues(pair, "0").Set(toFloat(sync.Reserve0))
			m.reserves.WithLabelValues(pair, "1").Set(toFloat(sync.Reserve1))
		}
	}
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
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
