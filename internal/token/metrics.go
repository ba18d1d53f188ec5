package token

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for token operations.
type Metrics struct {
	issuedTotal     *prometheus.CounterVec
	verifyFailTotal *prometheus.CounterVec
	rotationsTotal  prometheus.Counter
}

// NewMetrics creates a new Metrics instance registered with the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom
// registerer. Useful for tests that need a private registry.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "tenantd"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{}

	m.issuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "issued_total",
			Help:      "Total number of tokens issued",
		},
		[]string{"kind"},
	)

	m.verifyFailTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "verify_failures_total",
			Help:      "Total number of token verification failures",
		},
		[]string{"reason"},
	)

	m.rotationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "refresh_rotations_total",
			Help:      "Total number of refresh token rotations",
		},
	)

	// Register all metrics with the provided registerer, ignoring duplicates.
	// The descriptors are identical when re-registered.
	for _, c := range []prometheus.Collector{m.issuedTotal, m.verifyFailTotal, m.rotationsTotal} {
		_ = registerer.Register(c)
	}

	return m
}

func (m *Metrics) recordIssued(kind Kind) {
	if m == nil {
		return
	}
	m.issuedTotal.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) recordVerifyFailure(reason string) {
	if m == nil {
		return
	}
	m.verifyFailTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) recordRotation() {
	if m == nil {
		return
	}
	m.rotationsTotal.Inc()
}
