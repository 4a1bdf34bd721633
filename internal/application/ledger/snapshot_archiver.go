package ledger

import (
	"context"
	"fmt"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SnapshotStore keeps frozen canonical documents addressed by their content hash
type SnapshotStore interface {
	// Put stores body under the hash. Storing an existing hash again is a no-op.
	Put(ctx context.Context, tenantID uuid.UUID, contentHash string, body []byte) error
	// Get returns the body stored under the hash, or shared.ErrNotFound
	Get(ctx context.Context, tenantID uuid.UUID, contentHash string) ([]byte, error)
}

// InvoiceSnapshotArchiver copies the canonical form of every finalized invoice into
// the snapshot store so the sealed content can be reproduced outside the database
type InvoiceSnapshotArchiver struct {
	scope  TransactionScope
	store  SnapshotStore
	logger *zap.Logger
}

// NewInvoiceSnapshotArchiver creates a new InvoiceSnapshotArchiver
func NewInvoiceSnapshotArchiver(scope TransactionScope, store SnapshotStore, logger *zap.Logger) *InvoiceSnapshotArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceSnapshotArchiver{scope: scope, store: store, logger: logger.Named("snapshot_archiver")}
}

// EventTypes returns the event types this handler is interested in
func (a *InvoiceSnapshotArchiver) EventTypes() []string {
	return []string{ledger.EventTypeInvoiceFinalized}
}

// Handle archives the invoice named by an InvoiceFinalized event
func (a *InvoiceSnapshotArchiver) Handle(ctx context.Context, event shared.DomainEvent) error {
	finalized, ok := event.(*ledger.InvoiceFinalizedEvent)
	if !ok {
		return fmt.Errorf("snapshot archiver: unexpected event %T", event)
	}

	var inv *ledger.Invoice
	err := a.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		inv, err = repos.Invoices().FindByID(ctx, finalized.TenantID(), finalized.AggregateID())
		return err
	})
	if err != nil {
		return err
	}

	body, err := shared.Canonicalize(inv.CanonicalView())
	if err != nil {
		return err
	}
	hash := shared.HashBytes(body)
	if hash != inv.Seal.ContentHash {
		a.logger.Error("Finalized invoice does not match its seal, not archived",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("stored_hash", inv.Seal.ContentHash),
			zap.String("computed_hash", hash))
		return shared.NewImmutabilityViolation(shared.KindInvoice, inv.ID, "archive snapshot")
	}

	if err := a.store.Put(ctx, inv.TenantID, hash, body); err != nil {
		return fmt.Errorf("archive invoice %s: %w", inv.ID, err)
	}
	a.logger.Info("Invoice snapshot archived",
		zap.String("tenant_id", inv.TenantID.String()),
		zap.String("invoice_id", inv.ID.String()),
		zap.String("content_hash", hash),
		zap.Int("bytes", len(body)))
	return nil
}

var _ shared.EventHandler = (*InvoiceSnapshotArchiver)(nil)
