package glyphledger

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "glyphledger"

type metrics struct {
	reg        prometheus.Registerer
	operations *prometheus.CounterVec
	glyphs     *prometheus.CounterVec
	collectors []prometheus.Collector
}

func newMetrics(l *Ledger, reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		reg: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Ledger operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		glyphs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "glyphs_total",
			Help:      "Glyphs minted, burned, transferred, staked and unstaked.",
		}, []string{"op"}),
	}
	ranges := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "live_ranges",
		Help:      "Range records currently in the ledger.",
	}, func() float64 { return float64(l.LiveRanges()) })
	staked := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "staked_glyphs",
		Help:      "Glyphs currently staked.",
	}, func() float64 { return float64(l.StakedTotal()) })

	for _, c := range []prometheus.Collector{m.operations, m.glyphs, ranges, staked} {
		if err := reg.Register(c); err != nil {
			m.unregister()
			return nil, err
		}
		m.collectors = append(m.collectors, c)
	}
	return m, nil
}

func (m *metrics) unregister() {
	for _, c := range m.collectors {
		m.reg.Unregister(c)
	}
	m.collectors = nil
}

// observe counts one operation, and its glyphs when it succeeded.
func (m *metrics) observe(op string, glyphs uint64, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	if err == nil && glyphs > 0 {
		m.glyphs.WithLabelValues(op).Add(float64(glyphs))
	}
}
