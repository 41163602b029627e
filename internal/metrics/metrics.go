// Package metrics собирает метрики магазина в формате Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmeshcher/gamecodes-store/internal/model"
)

const namespace = "gamestore"

// Metrics реализует сбор метрик оформления заказов.
type Metrics struct {
	registry *prometheus.Registry

	ordersPlaced   *prometheus.CounterVec
	orderFailures  *prometheus.CounterVec
	unitsAllocated prometheus.Counter
	placeDuration  prometheus.Histogram
}

// New создаёт набор метрик в отдельном реестре вместе со стандартными метриками Go и процесса.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Number of completed orders by payment method.",
		}, []string{"payment_method"}),
		orderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_failures_total",
			Help:      "Number of rejected order placements by reason.",
		}, []string{"reason"}),
		unitsAllocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_allocated_total",
			Help:      "Number of inventory units allocated to orders.",
		}),
		placeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_placement_duration_seconds",
			Help:      "Duration of successful order placement transactions.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ordersPlaced,
		m.orderFailures,
		m.unitsAllocated,
		m.placeDuration,
	)
	return m
}

// OrderPlaced учитывает успешно оформленный заказ.
func (m *Metrics) OrderPlaced(method model.PaymentMethod, units int, d time.Duration) {
	m.ordersPlaced.WithLabelValues(string(method)).Inc()
	m.unitsAllocated.Add(float64(units))
	m.placeDuration.Observe(d.Seconds())
}

// OrderFailed учитывает отклонённый заказ.
func (m *Metrics) OrderFailed(reason string) {
	m.orderFailures.WithLabelValues(reason).Inc()
}

// Handler отдаёт метрики реестра.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
