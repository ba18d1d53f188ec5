package router

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for routing cache operations.
type Metrics struct {
	resolutionsTotal *prometheus.CounterVec
	opensTotal       prometheus.Counter
	evictionsTotal   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom
// registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "tenantd"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{}

	m.resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "resolutions_total",
			Help:      "Total number of routing key resolutions",
		},
		[]string{"result"},
	)

	m.opensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "store_opens_total",
			Help:      "Total number of tenant store opens",
		},
	)

	m.evictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "evictions_total",
			Help:      "Total number of routing cache evictions",
		},
		[]string{"reason"},
	)

	// Register all metrics with the provided registerer, ignoring duplicates.
	for _, c := range []prometheus.Collector{m.resolutionsTotal, m.opensTotal, m.evictionsTotal} {
		_ = registerer.Register(c)
	}

	return m
}

func (m *Metrics) recordResolution(result string) {
	if m == nil {
		return
	}
	m.resolutionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) recordOpen() {
	if m == nil {
		return
	}
	m.opensTotal.Inc()
}

func (m *Metrics) recordEviction(reason string) {
	if m == nil {
		return
	}
	m.evictionsTotal.WithLabelValues(reason).Inc()
}
