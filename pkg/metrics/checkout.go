package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkout results used as the result label.
const (
	CheckoutResultSuccess    = "success"
	CheckoutResultEmptyCart  = "empty_cart"
	CheckoutResultValidation = "validation"
	CheckoutResultConflict   = "conflict"
	CheckoutResultError      = "error"
)

// CheckoutMetrics instruments order placement.
type CheckoutMetrics struct {
	total    *prometheus.CounterVec
	duration prometheus.Histogram
	items    prometheus.Histogram
}

// NewCheckoutMetrics registers checkout metrics on reg. A nil registerer yields
// a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkout_total",
		Help: "Checkout attempts partitioned by result.",
	}, []string{"result"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_checkout_duration_seconds",
		Help:    "Duration of order placement including lock wait.",
		Buckets: prometheus.DefBuckets,
	})
	items := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_checkout_items",
		Help:    "Number of line items per placed order.",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 50},
	})
	reg.MustRegister(total, duration, items)
	return &CheckoutMetrics{total: total, duration: duration, items: items}
}

// Observe records one checkout attempt.
func (c *CheckoutMetrics) Observe(result string, took time.Duration) {
	if c == nil || c.total == nil {
		return
	}
	c.total.WithLabelValues(normalizeLabel(result)).Inc()
	c.duration.Observe(took.Seconds())
}

// ObserveItems records the line count of a successful order.
func (c *CheckoutMetrics) ObserveItems(n int) {
	if c == nil || c.items == nil {
		return
	}
	c.items.Observe(float64(n))
}
