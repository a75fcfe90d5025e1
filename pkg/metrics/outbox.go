package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay outcomes for one outbox row.
const (
	OutboxPublished = "published"
	OutboxRetry     = "retry"
	OutboxParked    = "parked"
)

// OutboxMetrics tracks the relay loop. The zero value and a nil pointer are
// both no-ops.
type OutboxMetrics struct {
	relayed *prometheus.CounterVec
	parked  *prometheus.CounterVec
	ack     prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	factory := promauto.With(reg)
	return &OutboxMetrics{
		relayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_outbox_relayed_total",
			Help: "Outbox rows handled by the publisher, by outcome.",
		}, []string{"event_type", "outcome"}),
		parked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_outbox_dlq_total",
			Help: "Outbox rows moved to the dead-letter table, by reason.",
		}, []string{"reason"}),
		ack: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_outbox_publish_ack_seconds",
			Help:    "Time from handing a message to Pub/Sub until it was acknowledged.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
}

func (o *OutboxMetrics) Relayed(eventType, outcome string) {
	if o == nil || o.relayed == nil {
		return
	}
	o.relayed.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

func (o *OutboxMetrics) Parked(reason string) {
	if o == nil || o.parked == nil {
		return
	}
	o.parked.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (o *OutboxMetrics) Acked(took time.Duration) {
	if o == nil || o.ack == nil {
		return
	}
	o.ack.Observe(took.Seconds())
}
