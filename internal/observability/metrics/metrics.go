package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the billing counters exposed on /metrics.
type Metrics struct {
	WebhookEvents    *prometheus.CounterVec
	CheckoutOutcomes *prometheus.CounterVec
	GatewayRetries   prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		WebhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classbill",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Webhook events by type and processing outcome.",
		}, []string{"type", "outcome"}),
		CheckoutOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classbill",
			Subsystem: "checkout",
			Name:      "outcomes_total",
			Help:      "Checkout results by outcome kind.",
		}, []string{"outcome"}),
		GatewayRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "classbill",
			Subsystem: "gateway",
			Name:      "retries_total",
			Help:      "Retried payment gateway calls.",
		}),
	}
}

func (m *Metrics) ObserveWebhook(eventType, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) ObserveCheckout(outcome string) {
	if m == nil {
		return
	}
	m.CheckoutOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveGatewayRetry() {
	if m == nil {
		return
	}
	m.GatewayRetries.Inc()
}
