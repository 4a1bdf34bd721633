package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/firmledger/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ServiceConfig holds the collaborators shared by the ledger services
type ServiceConfig struct {
	Scope     TransactionScope
	Publisher shared.EventPublisher
	Logger    *zap.Logger
	Metrics   *telemetry.LedgerMetrics
	// Clock defaults to time.Now
	Clock func() time.Time
}

type serviceBase struct {
	scope     TransactionScope
	publisher shared.EventPublisher
	logger    *zap.Logger
	metrics   *telemetry.LedgerMetrics
	clock     func() time.Time
}

func newServiceBase(cfg ServiceConfig, name string) serviceBase {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return serviceBase{
		scope:     cfg.Scope,
		publisher: cfg.Publisher,
		logger:    logger.Named(name),
		metrics:   cfg.Metrics,
		clock:     clock,
	}
}

func (b *serviceBase) now() time.Time {
	return ledger.NormalizeTime(b.clock())
}

// publish hands committed events to the bus. The write already succeeded, so a
// failing publisher is logged and never reported to the caller.
func (b *serviceBase) publish(ctx context.Context, events ...shared.DomainEvent) {
	if b.publisher == nil || len(events) == 0 {
		return
	}
	if err := b.publisher.Publish(ctx, events...); err != nil {
		b.logger.Error("Failed to publish ledger events",
			zap.Int("count", len(events)),
			zap.Error(err))
	}
}

// observe records rejected writes against sealed records
func (b *serviceBase) observe(ctx context.Context, tenantID uuid.UUID, err error) {
	var iv *shared.ImmutabilityViolation
	if errors.As(err, &iv) {
		b.logger.Warn("Write rejected on sealed record",
			zap.String("tenant_id", tenantID.String()),
			zap.String("kind", string(iv.Kind)),
			zap.String("id", iv.ID.String()),
			zap.String("operation", iv.Operation))
		b.metrics.RecordImmutabilityViolation(ctx, tenantID, string(iv.Kind), iv.Operation)
	}
}

// maxConflictAttempts bounds how often a write re-reads its aggregate after losing a
// version race to a concurrent writer
const maxConflictAttempts = 8

// executeWithConflictRetry runs fn in a transaction and re-runs it from a fresh read
// while it fails with a concurrency conflict. Each run reloads the aggregate, so a
// rule that the winning writer made true, such as a trigger already being billed,
// is reported on the next attempt.
func (b *serviceBase) executeWithConflictRetry(ctx context.Context, operation string, fn func(repos TransactionalRepositories) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = b.scope.Execute(ctx, fn)
		if err == nil || !errors.Is(err, shared.ErrConcurrencyConflict) || attempt >= maxConflictAttempts {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return err
		}
		b.logger.Debug("Version taken by a concurrent write, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt))
	}
}

// takeEvents drains the pending events of an aggregate
func takeEvents(agg shared.AggregateRoot) []shared.DomainEvent {
	events := agg.GetDomainEvents()
	agg.ClearDomainEvents()
	return events
}
