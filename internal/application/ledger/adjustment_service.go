package ledger

import (
	"context"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdjustmentService appends corrections. It never updates invoices or lines.
type AdjustmentService struct {
	serviceBase
}

// NewAdjustmentService creates a new AdjustmentService
func NewAdjustmentService(cfg ServiceConfig) *AdjustmentService {
	return &AdjustmentService{serviceBase: newServiceBase(cfg, "adjustment")}
}

// AppendAdjustment records a delta against an invoice or one of its lines as the
// next entry of the invoice's adjustment chain
func (s *AdjustmentService) AppendAdjustment(ctx context.Context, tenantID uuid.UUID, invoiceID string, req AppendAdjustmentRequest) (*AdjustmentResponse, error) {
	id, err := shared.ParseID(shared.KindInvoice, invoiceID)
	if err != nil {
		return nil, err
	}
	var lineID *shared.ImmutableID
	if req.LineID != nil && *req.LineID != "" {
		parsed, err := shared.ParseID(shared.KindInvoiceLine, *req.LineID)
		if err != nil {
			return nil, err
		}
		lineID = &parsed
	}
	input := ledger.AppendAdjustmentInput{
		LineID: lineID,
		Delta:  req.Delta,
		Reason: req.Reason,
		Actor:  req.Actor,
	}

	var adj *ledger.Adjustment
	err = s.executeWithConflictRetry(ctx, "append_adjustment", func(repos TransactionalRepositories) error {
		inv, err := repos.Invoices().FindByID(ctx, tenantID, id)
		if err != nil {
			return err
		}
		prev, err := repos.Adjustments().FindLatest(ctx, tenantID, id)
		if err != nil {
			return err
		}
		adj, err = ledger.NewAdjustment(inv, input, prev, s.now())
		if err != nil {
			return err
		}
		return repos.Adjustments().Append(ctx, adj)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Adjustment appended",
		zap.String("tenant_id", tenantID.String()),
		zap.String("invoice_id", id.String()),
		zap.String("adjustment_id", adj.ID.String()),
		zap.Int64("sequence", adj.Sequence),
		zap.String("delta", adj.Delta.String()))
	s.metrics.RecordAdjustment(ctx, tenantID)
	s.publish(ctx, ledger.NewAdjustmentAppendedEvent(adj))

	resp := ToAdjustmentResponse(adj)
	return &resp, nil
}

// ListAdjustments returns the adjustments of an invoice in sequence order
// together with the original and net totals
func (s *AdjustmentService) ListAdjustments(ctx context.Context, tenantID uuid.UUID, invoiceID string) (*AdjustmentListResponse, error) {
	inv, adjs, err := s.load(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	original := inv.Total()
	items := make([]AdjustmentResponse, 0, len(adjs))
	for idx := range adjs {
		items = append(items, ToAdjustmentResponse(&adjs[idx]))
	}
	return &AdjustmentListResponse{
		InvoiceID:     inv.ID.String(),
		Currency:      inv.Currency,
		OriginalTotal: original,
		NetTotal:      ledger.NetTotal(original, adjs),
		Adjustments:   items,
	}, nil
}

// VerifyAdjustmentChain recomputes every link of the invoice's adjustment chain
func (s *AdjustmentService) VerifyAdjustmentChain(ctx context.Context, tenantID uuid.UUID, invoiceID string) (*ChainVerification, error) {
	inv, adjs, err := s.load(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	result := &ChainVerification{InvoiceID: inv.ID.String(), Length: len(adjs), Valid: true}
	if err := ledger.VerifyAdjustmentChain(adjs); err != nil {
		result.Valid = false
		result.Problem = err.Error()
		s.logger.Error("Adjustment chain verification failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err))
	}
	return result, nil
}

func (s *AdjustmentService) load(ctx context.Context, tenantID uuid.UUID, invoiceID string) (*ledger.Invoice, []ledger.Adjustment, error) {
	id, err := shared.ParseID(shared.KindInvoice, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	var (
		inv  *ledger.Invoice
		adjs []ledger.Adjustment
	)
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		inv, err = repos.Invoices().FindByID(ctx, tenantID, id)
		if err != nil {
			return err
		}
		adjs, err = repos.Adjustments().ListByInvoice(ctx, tenantID, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	ledger.SortAdjustments(adjs)
	return inv, adjs, nil
}
