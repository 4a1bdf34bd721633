package ledger

import (
	"context"
	"errors"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/firmledger/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoiceService opens invoices, turns triggers into sealed lines and finalizes invoices
type InvoiceService struct {
	serviceBase
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(cfg ServiceConfig) *InvoiceService {
	return &InvoiceService{serviceBase: newServiceBase(cfg, "invoice")}
}

// OpenInvoice opens a draft invoice justified by exactly one acceptance
func (s *InvoiceService) OpenInvoice(ctx context.Context, tenantID uuid.UUID, req OpenInvoiceRequest) (*InvoiceResponse, error) {
	acceptanceID, err := shared.ParseID(shared.KindAcceptance, req.AcceptanceID)
	if err != nil {
		return nil, err
	}
	var inv *ledger.Invoice
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		acc, err := repos.Acceptances().FindByID(ctx, tenantID, acceptanceID)
		if err != nil {
			return err
		}
		currency := req.Currency
		if currency == "" {
			q, err := repos.Quotes().FindByID(ctx, tenantID, acc.QuoteID)
			if err != nil {
				return err
			}
			currency = q.Currency
		}
		inv, err = ledger.OpenInvoice(acc, currency, req.OpenedBy, s.now())
		if err != nil {
			return err
		}
		return repos.Invoices().Create(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Invoice opened",
		zap.String("tenant_id", tenantID.String()),
		zap.String("invoice_id", inv.ID.String()),
		zap.String("acceptance_id", acceptanceID.String()))
	s.publish(ctx, takeEvents(inv)...)

	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// GenerateLine creates the one invoice line a trigger may ever produce.
// A trigger already referenced by any line of the firm yields a DuplicateTriggerError.
// Losing the draft's version to a concurrent line re-runs the whole check.
func (s *InvoiceService) GenerateLine(ctx context.Context, tenantID uuid.UUID, invoiceID string, req GenerateLineRequest) (*InvoiceLineResponse, error) {
	id, err := shared.ParseID(shared.KindInvoice, invoiceID)
	if err != nil {
		return nil, err
	}
	trigger, err := ledger.NewTriggerRef(ledger.TriggerKind(req.TriggerKind), req.TriggerID)
	if err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "generate_line",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID),
		telemetry.WithAttribute(telemetry.SpanAttrInvoiceID, id.String()),
		telemetry.WithAttribute(telemetry.SpanAttrTriggerKind, string(trigger.Kind)),
		telemetry.WithAttribute(telemetry.SpanAttrTriggerID, trigger.ID.String()))
	defer span.End()

	var (
		inv  *ledger.Invoice
		line *ledger.InvoiceLine
	)
	err = s.executeWithConflictRetry(ctx, "generate_line", func(repos TransactionalRepositories) error {
		inv, err = repos.Invoices().FindByID(ctx, tenantID, id)
		if err != nil {
			return err
		}
		src, err := resolveTrigger(ctx, repos, tenantID, trigger)
		if err != nil {
			return err
		}
		existing, err := repos.Invoices().FindLineByTrigger(ctx, tenantID, trigger)
		if err != nil {
			return err
		}
		if existing != nil {
			return ledger.NewDuplicateTriggerError(trigger, existing.ID)
		}
		expected := inv.Version
		line, err = inv.AddLine(src, s.now())
		if err != nil {
			return err
		}
		return repos.Invoices().InsertLine(ctx, inv, line, expected)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		var dup *ledger.DuplicateTriggerError
		if errors.As(err, &dup) {
			s.logger.Warn("Trigger already used by an invoice line",
				zap.String("tenant_id", tenantID.String()),
				zap.String("trigger", trigger.Key()),
				zap.String("existing_line_id", dup.ExistingLineID.String()))
			s.metrics.RecordDuplicateTrigger(ctx, tenantID, string(trigger.Kind))
		}
		s.observe(ctx, tenantID, err)
		return nil, err
	}

	s.logger.Info("Invoice line generated",
		zap.String("tenant_id", tenantID.String()),
		zap.String("invoice_id", inv.ID.String()),
		zap.String("line_id", line.ID.String()),
		zap.String("trigger", trigger.Key()),
		zap.String("amount", line.Amount.String()))
	s.metrics.RecordLineGenerated(ctx, tenantID, string(trigger.Kind))
	s.publish(ctx, takeEvents(inv)...)

	resp := ToInvoiceLineResponse(line)
	return &resp, nil
}

// FinalizeInvoice seals a draft invoice together with its lines
func (s *InvoiceService) FinalizeInvoice(ctx context.Context, tenantID uuid.UUID, invoiceID string, req FinalizeInvoiceRequest) (*InvoiceResponse, error) {
	id, err := shared.ParseID(shared.KindInvoice, invoiceID)
	if err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "finalize",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID),
		telemetry.WithAttribute(telemetry.SpanAttrInvoiceID, id.String()))
	defer span.End()

	var inv *ledger.Invoice
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		inv, err = repos.Invoices().FindByID(ctx, tenantID, id)
		if err != nil {
			return err
		}
		expected := inv.Version
		if err := inv.Finalize(req.FinalizedBy, s.now()); err != nil {
			return err
		}
		return repos.Invoices().Finalize(ctx, inv, expected)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.observe(ctx, tenantID, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrLineCount, len(inv.Lines),
		telemetry.SpanAttrContentHash, inv.Seal.ContentHash)

	s.logger.Info("Invoice finalized",
		zap.String("tenant_id", tenantID.String()),
		zap.String("invoice_id", inv.ID.String()),
		zap.Int("lines", len(inv.Lines)),
		zap.String("total", inv.Total().String()),
		zap.String("content_hash", inv.Seal.ContentHash))
	s.publish(ctx, takeEvents(inv)...)

	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// GetInvoice returns an invoice with its ordered lines
func (s *InvoiceService) GetInvoice(ctx context.Context, tenantID uuid.UUID, invoiceID string) (*InvoiceResponse, error) {
	inv, err := s.loadInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// VerifyInvoiceSeal recomputes the content hashes of an invoice and its lines
// and compares them with the stored seals
func (s *InvoiceService) VerifyInvoiceSeal(ctx context.Context, tenantID uuid.UUID, invoiceID string) (*SealVerification, error) {
	inv, err := s.loadInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	result, err := verifySealable(inv.ID, inv)
	if err != nil {
		return nil, err
	}
	for idx := range inv.Lines {
		lv, err := verifySealable(inv.Lines[idx].ID, &inv.Lines[idx])
		if err != nil {
			return nil, err
		}
		if !lv.Valid {
			result.Valid = false
		}
		result.Lines = append(result.Lines, lv)
	}
	if result.Sealed && !result.Valid {
		s.logger.Error("Invoice content no longer matches its seal",
			zap.String("tenant_id", tenantID.String()),
			zap.String("invoice_id", inv.ID.String()))
	}
	return &result, nil
}

func (s *InvoiceService) loadInvoice(ctx context.Context, tenantID uuid.UUID, invoiceID string) (*ledger.Invoice, error) {
	id, err := shared.ParseID(shared.KindInvoice, invoiceID)
	if err != nil {
		return nil, err
	}
	var inv *ledger.Invoice
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		inv, err = repos.Invoices().FindByID(ctx, tenantID, id)
		return err
	})
	return inv, err
}

func verifySealable(id shared.ImmutableID, r shared.Sealable) (SealVerification, error) {
	seal := r.SealState()
	v := SealVerification{ID: id.String(), Sealed: seal.IsSealed(), StoredHash: seal.ContentHash}
	if !v.Sealed {
		v.Valid = true
		return v, nil
	}
	ok, err := shared.VerifySeal(r)
	if err != nil {
		return v, err
	}
	v.Valid = ok
	return v, nil
}

// resolveTrigger loads the record a trigger reference points to
func resolveTrigger(ctx context.Context, repos TransactionalRepositories, tenantID uuid.UUID, ref ledger.TriggerRef) (*ledger.TriggerSource, error) {
	switch ref.Kind {
	case ledger.TriggerKindBillableEvent:
		ev, err := repos.Events().FindByID(ctx, tenantID, ref.ID)
		if err != nil {
			return nil, err
		}
		return ev.AsTrigger()
	case ledger.TriggerKindApprovalRecord:
		rec, err := repos.Approvals().FindByID(ctx, tenantID, ref.ID)
		if err != nil {
			return nil, err
		}
		return rec.AsTrigger(), nil
	default:
		return nil, shared.NewValidationError("trigger_kind", string(ref.Kind), "unknown trigger kind")
	}
}
