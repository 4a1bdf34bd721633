package ledger

import (
	"context"
	"fmt"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// LineageProjector keeps the lineage index current from committed ledger events.
// Edges it fails to write are recovered by LineageService.Rebuild.
type LineageProjector struct {
	index   ledger.LineageIndex
	retrier Retrier
	logger  *zap.Logger
}

// NewLineageProjector creates a new LineageProjector. retrier may be nil.
func NewLineageProjector(index ledger.LineageIndex, retrier Retrier, logger *zap.Logger) *LineageProjector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LineageProjector{
		index:   index,
		retrier: retrier,
		logger:  logger.Named("lineage_projector"),
	}
}

// EventTypes returns the event types this handler is interested in
func (p *LineageProjector) EventTypes() []string {
	return []string{
		ledger.EventTypeAcceptanceRecorded,
		ledger.EventTypeInvoiceOpened,
		ledger.EventTypeInvoiceLineGenerated,
		ledger.EventTypeAdjustmentAppended,
		ledger.EventTypeBindingRecorded,
	}
}

// Handle derives the edges an event introduces and adds them to the index
func (p *LineageProjector) Handle(ctx context.Context, event shared.DomainEvent) error {
	edges, err := edgesForEvent(event)
	if err != nil {
		return err
	}
	if len(edges) == 0 {
		return nil
	}

	write := func(ctx context.Context) error {
		return p.index.AddEdges(ctx, edges...)
	}
	if p.retrier != nil {
		err = p.retrier.Do(ctx, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		p.logger.Error("Failed to index lineage edges",
			zap.String("event_type", event.EventType()),
			zap.String("aggregate_id", event.AggregateID().String()),
			zap.Int("edges", len(edges)),
			zap.Error(err))
		return err
	}

	p.logger.Debug("Lineage edges indexed",
		zap.String("event_type", event.EventType()),
		zap.Int("edges", len(edges)))
	return nil
}

func edgesForEvent(event shared.DomainEvent) ([]ledger.Edge, error) {
	tenantID := event.TenantID()
	switch e := event.(type) {
	case *ledger.AcceptanceRecordedEvent:
		return []ledger.Edge{
			ledger.NewEdge(tenantID, shared.KindQuote, e.QuoteID, ledger.EdgeAccepts, shared.KindAcceptance, e.AggregateID()),
		}, nil
	case *ledger.InvoiceOpenedEvent:
		return []ledger.Edge{
			ledger.NewEdge(tenantID, shared.KindAcceptance, e.AcceptanceID, ledger.EdgeJustifies, shared.KindInvoice, e.AggregateID()),
		}, nil
	case *ledger.InvoiceLineGeneratedEvent:
		trigger := ledger.TriggerNode(e.Trigger)
		return []ledger.Edge{
			ledger.NewEdge(tenantID, shared.KindInvoice, e.AggregateID(), ledger.EdgeContains, shared.KindInvoiceLine, e.LineID),
			ledger.NewEdge(tenantID, shared.KindInvoiceLine, e.LineID, ledger.EdgeTriggeredBy, trigger.Kind, trigger.ID),
		}, nil
	case *ledger.AdjustmentAppendedEvent:
		return []ledger.Edge{
			ledger.NewEdge(tenantID, shared.KindInvoice, e.InvoiceID, ledger.EdgeAdjusts, shared.KindAdjustment, e.AggregateID()),
		}, nil
	case *ledger.BindingRecordedEvent:
		return ledger.BindingEdges(&ledger.BindingEvent{
			BaseEntity: shared.BaseEntity{ID: e.AggregateID(), TenantID: tenantID},
			Subject:    e.Subject,
			Supersedes: e.Supersedes,
		}), nil
	}
	return nil, fmt.Errorf("lineage projector: unexpected event %T", event)
}

var _ shared.EventHandler = (*LineageProjector)(nil)
