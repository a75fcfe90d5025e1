package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
	"gorm.io/gorm"
)

// delivery is one row on its way out. Exactly one of ack and err is set
// once dispatch returns.
type delivery struct {
	event  models.OutboxEvent
	topic  string
	sentAt time.Time
	ack    ackFuture
	err    error
}

func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) delivery {
	d := delivery{event: event}
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		d.err = err
		return d
	}
	d.topic = resolved.Descriptor.Topic
	d.sentAt = s.now()
	d.ack, d.err = s.transport.Send(ctx, d.topic, message(event, resolved.Envelope.EventID))
	return d
}

// settle waits for the acknowledgement and records the outcome on the row.
// Only bookkeeping failures are returned; they abort the batch.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, d delivery) error {
	err := d.err
	if err == nil {
		_, err = d.ack.Get(ctx)
	}
	event := d.event
	eventType := string(event.EventType)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    eventType,
		"aggregate_id":  event.AggregateID.String(),
		"topic":         d.topic,
		"attempt_count": event.AttemptCount + 1,
	})

	if err == nil {
		if err := s.rows.MarkPublished(tx, event.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", event.ID, err)
		}
		s.metrics.Relayed(eventType, metrics.OutboxPublished)
		s.metrics.Acked(s.now().Sub(d.sentAt))
		s.logg.Debug(logCtx, "outbox event published")
		return nil
	}

	var permanent registry.NonRetryableError
	switch {
	case errors.As(err, &permanent):
		return s.park(logCtx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	case event.AttemptCount+1 >= s.maxAttempts:
		return s.park(logCtx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("gave up after %d attempts: %w", s.maxAttempts, err))
	}

	s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "outbox publish failed, will retry")
	if err := s.rows.MarkFailed(tx, event.ID, err); err != nil {
		return fmt.Errorf("mark %s failed: %w", event.ID, err)
	}
	s.metrics.Relayed(eventType, metrics.OutboxRetry)
	return nil
}

// park copies the row into outbox_dlq and pins its attempts so it is never
// claimed again.
func (s *Service) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	msg := cause.Error()
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"error": msg, "reason": reason.String()}), "outbox event parked")

	if err := s.dlq.InsertTx(tx, models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now().UTC(),
	}); err != nil {
		return fmt.Errorf("dead-letter %s: %w", event.ID, err)
	}
	if err := s.rows.Park(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark %s terminal: %w", event.ID, err)
	}
	s.metrics.Relayed(string(event.EventType), metrics.OutboxParked)
	s.metrics.Parked(reason.String())
	return nil
}
