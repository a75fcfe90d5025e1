package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const ackTimeout = 15 * time.Second

type store interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRows interface {
	ClaimPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	MarkFailed(tx *gorm.DB, id uuid.UUID, err error) error
	Park(tx *gorm.DB, id uuid.UUID, err error, ceiling int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        store
	Transport transport
	Rows      outboxRows
	Registry  resolver
	DLQ       deadLetters
	Metrics   *metrics.OutboxMetrics
}

// Service relays order events from outbox_events to Pub/Sub. Each batch is
// claimed inside one transaction: every row is handed to its topic first and
// the acknowledgements are collected afterwards, so Pub/Sub can batch the
// sends.
type Service struct {
	logg      *logger.Logger
	db        store
	transport transport
	rows      outboxRows
	registry  resolver
	dlq       deadLetters
	metrics   *metrics.OutboxMetrics

	batch       int
	maxAttempts int
	pace        pacer
	now         func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Config == nil:
		return nil, errors.New("config is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Transport == nil:
		return nil, errors.New("pubsub transport is required")
	case p.Rows == nil || p.DLQ == nil:
		return nil, errors.New("outbox repositories are required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	}
	cfg := p.Config.Outbox
	return &Service{
		logg:        p.Logger,
		db:          p.DB,
		transport:   p.Transport,
		rows:        p.Rows,
		registry:    p.Registry,
		dlq:         p.DLQ,
		metrics:     p.Metrics,
		batch:       max(cfg.BatchSize, 1),
		maxAttempts: max(cfg.MaxAttempts, 1),
		pace:        newPacer(time.Duration(max(cfg.PollIntervalMS, 10)) * time.Millisecond),
		now:         time.Now,
	}, nil
}

// Run polls until ctx is canceled. A full batch is followed by the next one
// straight away; an error stretches the wait exponentially.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	if err := s.transport.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub not ready: %w", err)
	}

	for {
		claimed, err := s.processBatch(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			wait = s.pace.failure()
		case claimed == s.batch:
			s.pace.success()
			continue
		default:
			wait = s.pace.success()
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// processBatch claims up to one batch of rows and settles each. It returns
// the number of rows claimed.
func (s *Service) processBatch(ctx context.Context) (int, error) {
	claimed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.rows.ClaimPending(tx, s.batch, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events)

		inflight := make([]delivery, 0, len(events))
		for _, event := range events {
			inflight = append(inflight, s.dispatch(ctx, event))
		}
		ackCtx, cancel := context.WithTimeout(ctx, ackTimeout)
		defer cancel()
		for _, d := range inflight {
			if err := s.settle(ackCtx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}
