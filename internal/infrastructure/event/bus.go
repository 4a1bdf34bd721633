package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/firmledger/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ErrBusStopped is returned by Publish after Stop
var ErrBusStopped = errors.New("event bus stopped")

// InMemoryEventBus implements EventBus with synchronous in-process dispatch.
// Events are handed to handlers after the producing transaction committed; a failing
// handler is logged and does not affect the others. Derived state that a handler
// failed to write is recovered by its own rebuild path.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	mu       sync.Mutex
	stopped  bool
	inFlight sync.WaitGroup
	failures atomic.Int64
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger.Named("event_bus"),
	}
}

// Publish dispatches each event to its handlers in registration order.
// The write behind the events has committed, so handlers run on a context that
// the caller's cancellation does not reach.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return ErrBusStopped
	}
	b.inFlight.Add(1)
	b.mu.Unlock()
	defer b.inFlight.Done()

	ctx = context.WithoutCancel(ctx)

	for _, event := range events {
		for _, handler := range b.registry.Handlers(event.EventType()) {
			if err := b.dispatch(ctx, handler, event); err != nil {
				b.failures.Add(1)
				b.logger.Error("Event handler failed",
					zap.String("event_type", event.EventType()),
					zap.String("event_id", event.EventID().String()),
					zap.String("tenant_id", event.TenantID().String()),
					zap.String("aggregate_id", event.AggregateID().String()),
					zap.String("handler", handlerName(handler)),
					zap.Error(err))
			}
		}
	}
	return nil
}

// Subscribe registers a handler. Without explicit types the handler's own EventTypes
// are used; an empty list subscribes it to every event.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("Handler subscribed",
		zap.String("handler", handlerName(handler)),
		zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
}

// Start accepts events again after Stop
func (b *InMemoryEventBus) Start(_ context.Context) error {
	b.mu.Lock()
	b.stopped = false
	b.mu.Unlock()
	b.logger.Info("Event bus started", zap.Int("handlers", b.registry.Len()))
	return nil
}

// Stop refuses new events and waits for in-flight dispatches to finish
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	done := make(chan struct{})
	go func() {
		b.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.logger.Info("Event bus stopped", zap.Int64("handler_failures", b.failures.Load()))
	return nil
}

// Failures returns the number of handler errors and panics seen so far
func (b *InMemoryEventBus) Failures() int64 {
	return b.failures.Load()
}

// dispatch runs one handler inside its own span and turns a panic into an error
func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "event."+event.EventType(),
		telemetry.WithAttribute(telemetry.SpanAttrEventID, event.EventID().String()),
		telemetry.WithAttribute(telemetry.SpanAttrEventHandler, handlerName(handler)),
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, event.TenantID().String()))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
		if err != nil {
			telemetry.RecordError(span, err)
		}
		span.End()
	}()

	return handler.Handle(ctx, event)
}

func handlerName(handler shared.EventHandler) string {
	if named, ok := handler.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", handler)
}

// Ensure InMemoryEventBus implements EventBus
var _ shared.EventBus = (*InMemoryEventBus)(nil)
