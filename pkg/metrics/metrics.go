package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts the outcomes of the order pipeline and the outbox worker.
type Metrics struct {
	OrdersProcessed  *prometheus.CounterVec
	OutboxDeliveries *prometheus.CounterVec
	RequestLatencyMS *prometheus.HistogramVec
}

func New(service string) *Metrics {
	ordersProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elitearn",
		Subsystem: service,
		Name:      "orders_processed_total",
		Help:      "Order processing attempts by final outcome.",
	}, []string{"outcome"})
	outboxDeliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elitearn",
		Subsystem: service,
		Name:      "outbox_deliveries_total",
		Help:      "Outbox delivery attempts by outcome.",
	}, []string{"outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "elitearn",
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	prometheus.MustRegister(ordersProcessed, outboxDeliveries, latency)
	return &Metrics{
		OrdersProcessed:  ordersProcessed,
		OutboxDeliveries: outboxDeliveries,
		RequestLatencyMS: latency,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
