package redislot

import "github.com/prometheus/client_golang/prometheus"

// Operations reported by the fallbacks metric.
const (
	opKeySlot     = "key_slot"
	opCommandSlot = "command_slot"
	opPack        = "pack"
)

// Metrics holds the Prometheus metrics of the package. A nil *Metrics
// records nothing.
type Metrics struct {
	fallbacks   *prometheus.CounterVec
	tableLoads  prometheus.Counter
	tableSize   prometheus.Gauge
	movableKeys *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redislot_fastpath_fallbacks_total",
			Help: "Total number of calls handled by the portable implementation while speedups are enabled",
		}, []string{"op"}),

		tableLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redislot_command_table_loads_total",
			Help: "Total number of command tables loaded from a node",
		}),

		tableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redislot_command_table_size",
			Help: "Number of commands in the last loaded command table",
		}),

		movableKeys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redislot_movable_keys_lookups_total",
			Help: "Total number of COMMAND GETKEYS requests",
		}, []string{"success"}),
	}

	reg.MustRegister(m.fallbacks, m.tableLoads, m.tableSize, m.movableKeys)
	return m
}

func (m *Metrics) fallback(op string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(op).Inc()
}

func (m *Metrics) tableLoaded(size int) {
	if m == nil {
		return
	}
	m.tableLoads.Inc()
	m.tableSize.Set(float64(size))
}

func (m *Metrics) movableKeysLookup(success bool) {
	if m == nil {
		return
	}
	if success {
		m.movableKeys.WithLabelValues("true").Inc()
	} else {
		m.movableKeys.WithLabelValues("false").Inc()
	}
}
