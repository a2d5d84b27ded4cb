// Package metrics exports Prometheus counters for the intake pipelines and
// mail deliveries.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "site"

// Metrics holds every collector registered by New.
type Metrics struct {
	registry *prometheus.Registry

	ContactSubmissions   *prometheus.CounterVec
	NewsletterRequests   *prometheus.CounterVec
	MailDeliveries       *prometheus.CounterVec
	RateLimitStoreErrors prometheus.Counter
}

// New registers the collectors on a fresh registry, so tests can build as many
// instances as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ContactSubmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contact_submissions_total",
			Help:      "Contact form submissions by outcome",
		}, []string{"outcome"}),
		NewsletterRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "newsletter_requests_total",
			Help:      "Newsletter subscribe and unsubscribe requests by outcome",
		}, []string{"outcome"}),
		MailDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mail_deliveries_total",
			Help:      "Email delivery attempts by transport and result",
		}, []string{"transport", "result"}),
		RateLimitStoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_store_errors_total",
			Help:      "Rate limit store failures (requests are allowed through)",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveContact counts one contact outcome.
func (m *Metrics) ObserveContact(outcome string) {
	m.ContactSubmissions.WithLabelValues(outcome).Inc()
}

// ObserveNewsletter counts one newsletter outcome.
func (m *Metrics) ObserveNewsletter(outcome string) {
	m.NewsletterRequests.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitError counts one limiter store failure.
func (m *Metrics) ObserveRateLimitError() {
	m.RateLimitStoreErrors.Inc()
}

// ObserveDelivery implements mailer.DeliveryObserver.
func (m *Metrics) ObserveDelivery(transport string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.MailDeliveries.WithLabelValues(transport, result).Inc()
}
