package persistence

import (
	"context"
	"fmt"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/firmledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormPortalSource reads the records a client portal may show. Every query filters on
// the client in SQL; the portal service checks the result again.
type GormPortalSource struct {
	db       *gorm.DB
	invoices *GormInvoiceRepository
}

// NewGormPortalSource creates a new GormPortalSource
func NewGormPortalSource(db *gorm.DB) *GormPortalSource {
	return &GormPortalSource{db: db, invoices: NewGormInvoiceRepository(db)}
}

// ListFinalizedByClient returns the finalized invoices of the client
func (s *GormPortalSource) ListFinalizedByClient(ctx context.Context, tenantID uuid.UUID, clientID string) ([]ledger.Invoice, error) {
	return s.invoices.ListFinalizedByClient(ctx, tenantID, clientID)
}

// ListActiveBindingsForClient returns unsuperseded bindings of the client with one of the purposes
func (s *GormPortalSource) ListActiveBindingsForClient(ctx context.Context, tenantID uuid.UUID, clientID string, purposes []ledger.DocumentPurpose) ([]ledger.BindingEvent, error) {
	if len(purposes) == 0 {
		return []ledger.BindingEvent{}, nil
	}
	names := make([]string, len(purposes))
	for i, p := range purposes {
		names[i] = string(p)
	}
	var rows []models.BindingEventModel
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND client_id = ? AND superseded_by IS NULL AND purpose IN ?", tenantID, clientID, names).
		Order("bound_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list portal bindings: %w", err)
	}
	out := make([]ledger.BindingEvent, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// ListAdjustmentsByInvoices returns the adjustment chains of the invoices keyed by invoice id
func (s *GormPortalSource) ListAdjustmentsByInvoices(ctx context.Context, tenantID uuid.UUID, invoiceIDs []shared.ImmutableID) (map[shared.ImmutableID][]ledger.Adjustment, error) {
	out := make(map[shared.ImmutableID][]ledger.Adjustment, len(invoiceIDs))
	if len(invoiceIDs) == 0 {
		return out, nil
	}
	var rows []models.AdjustmentModel
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id IN ?", tenantID, idStrings(invoiceIDs)).
		Order("invoice_id ASC, sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list portal adjustments: %w", err)
	}
	for i := range rows {
		adj := rows[i].ToDomain()
		out[adj.InvoiceID] = append(out[adj.InvoiceID], *adj)
	}
	return out, nil
}

var _ ledger.PortalSource = (*GormPortalSource)(nil)
