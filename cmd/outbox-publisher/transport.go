package main

import (
	"context"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
)

type ackFuture interface {
	Get(ctx context.Context) (serverID string, err error)
}

type transport interface {
	Ping(ctx context.Context) error
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) (ackFuture, error)
}

// pubsubTransport adapts the Pub/Sub client to transport.
type pubsubTransport struct {
	client *pubsub.Client
}

func (t pubsubTransport) Ping(ctx context.Context) error { return t.client.Ping(ctx) }

func (t pubsubTransport) Send(ctx context.Context, topic string, msg *gcppubsub.Message) (ackFuture, error) {
	res, err := t.client.Publish(ctx, topic, msg)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// message carries the raw envelope as data. Attributes let subscribers
// filter without decoding it.
func message(event models.OutboxEvent, envelopeID string) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       envelopeID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

const (
	maxBackoff = 10 * time.Second
	jitter     = 250 * time.Millisecond
)

// pacer spaces out polls: the base interval while healthy, doubling up to
// maxBackoff after consecutive failures.
type pacer struct {
	base    time.Duration
	current time.Duration
}

func newPacer(base time.Duration) pacer {
	return pacer{base: base, current: base}
}

func (p *pacer) success() time.Duration {
	p.current = p.base
	return p.base
}

func (p *pacer) failure() time.Duration {
	p.current = min(p.current*2, maxBackoff)
	return p.current + rand.N(jitter)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
