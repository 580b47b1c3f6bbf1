package obs

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the circulation counters exposed on /metrics.
type Metrics struct {
	BorrowTotal *prometheus.CounterVec // result=success|conflict|not_found|error
	ReturnTotal *prometheus.CounterVec // result=success|not_found|error

	OpLatencyMS *prometheus.HistogramVec // op=borrow|return
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BorrowTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circulation_borrow_total",
				Help: "Total borrow attempts by result",
			},
			[]string{"result"},
		),
		ReturnTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circulation_return_total",
				Help: "Total return attempts by result",
			},
			[]string{"result"},
		),
		OpLatencyMS: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "circulation_op_latency_ms",
				Help:    "Latency of circulation operations (ms)",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1ms .. ~2048ms
			},
			[]string{"op"},
		),
	}

	reg.MustRegister(
		m.BorrowTotal,
		m.ReturnTotal,
		m.OpLatencyMS,
	)

	return m
}

// ObserveBorrow is nil-safe so services can run without metrics wired.
func (m *Metrics) ObserveBorrow(result string, ms float64) {
	if m == nil {
		return
	}
	m.BorrowTotal.WithLabelValues(result).Inc()
	m.OpLatencyMS.WithLabelValues("borrow").Observe(ms)
}

func (m *Metrics) ObserveReturn(result string, ms float64) {
	if m == nil {
		return
	}
	m.ReturnTotal.WithLabelValues(result).Inc()
	m.OpLatencyMS.WithLabelValues("return").Observe(ms)
}
