package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/firmledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInvoiceRepository implements InvoiceRepository using GORM.
// Lines live in their own table; the unique index on (tenant_id, trigger_kind, trigger_id)
// is what keeps a trigger from backing two lines across concurrent writers.
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormInvoiceRepository) WithTx(tx *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: tx}
}

// FindByID loads the invoice with its lines ordered by position
func (r *GormInvoiceRepository) FindByID(ctx context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*ledger.Invoice, error) {
	model, err := r.find(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	invoices, err := r.withLines(ctx, tenantID, []models.InvoiceModel{*model})
	if err != nil {
		return nil, err
	}
	return &invoices[0], nil
}

func (r *GormInvoiceRepository) find(ctx context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*models.InvoiceModel, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id.String()).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NotFound(shared.KindInvoice, id)
		}
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	return &model, nil
}

// withLines loads the lines of all given invoices in one query and converts them
func (r *GormInvoiceRepository) withLines(ctx context.Context, tenantID uuid.UUID, rows []models.InvoiceModel) ([]ledger.Invoice, error) {
	if len(rows) == 0 {
		return []ledger.Invoice{}, nil
	}
	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	var lines []models.InvoiceLineModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id IN ?", tenantID, ids).
		Order("invoice_id ASC, position ASC").
		Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("failed to load invoice lines: %w", err)
	}
	byInvoice := make(map[string][]models.InvoiceLineModel, len(rows))
	for _, l := range lines {
		byInvoice[l.InvoiceID] = append(byInvoice[l.InvoiceID], l)
	}
	out := make([]ledger.Invoice, len(rows))
	for i := range rows {
		rows[i].Lines = byInvoice[rows[i].ID]
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// Create inserts a new invoice together with any lines it already carries
func (r *GormInvoiceRepository) Create(ctx context.Context, invoice *ledger.Invoice) error {
	db := r.db.WithContext(ctx)
	if err := db.Create(models.InvoiceModelFromDomain(invoice)).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	for i := range invoice.Lines {
		if err := r.insertLine(ctx, &invoice.Lines[i]); err != nil {
			return err
		}
	}
	return nil
}

// FindLineByTrigger returns the line backed by the trigger, or nil when there is none
func (r *GormInvoiceRepository) FindLineByTrigger(ctx context.Context, tenantID uuid.UUID, trigger ledger.TriggerRef) (*ledger.InvoiceLine, error) {
	var model models.InvoiceLineModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND trigger_kind = ? AND trigger_id = ?", tenantID, string(trigger.Kind), trigger.ID.String()).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load invoice line: %w", err)
	}
	return model.ToDomain(), nil
}

// InsertLine bumps the draft invoice from expectedVersion and inserts the sealed line
func (r *GormInvoiceRepository) InsertLine(ctx context.Context, invoice *ledger.Invoice, line *ledger.InvoiceLine, expectedVersion int) error {
	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("tenant_id = ? AND id = ? AND version = ? AND status = ?",
			invoice.TenantID, invoice.ID.String(), expectedVersion, string(ledger.InvoiceStatusDraft)).
		Updates(map[string]any{
			"version":    invoice.Version,
			"updated_at": invoice.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update invoice: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return r.explainRejectedWrite(ctx, invoice, "add line")
	}
	return r.insertLine(ctx, line)
}

// insertLine skips the insert on conflict so the transaction stays usable for the lookup
// of the line that already holds the trigger
func (r *GormInvoiceRepository) insertLine(ctx context.Context, line *ledger.InvoiceLine) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(models.InvoiceLineModelFromDomain(line))
	if result.Error != nil {
		return fmt.Errorf("failed to insert invoice line: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	existing, err := r.FindLineByTrigger(ctx, line.TenantID, line.Trigger)
	if err != nil {
		return err
	}
	if existing == nil {
		return shared.ErrAlreadyExists
	}
	return ledger.NewDuplicateTriggerError(line.Trigger, existing.ID)
}

// Finalize seals a draft invoice that is still at expectedVersion
func (r *GormInvoiceRepository) Finalize(ctx context.Context, invoice *ledger.Invoice, expectedVersion int) error {
	m := models.InvoiceModelFromDomain(invoice)
	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("tenant_id = ? AND id = ? AND version = ? AND status = ? AND sealed_at IS NULL",
			invoice.TenantID, invoice.ID.String(), expectedVersion, string(ledger.InvoiceStatusDraft)).
		Updates(map[string]any{
			"status":       m.Status,
			"finalized_by": m.FinalizedBy,
			"finalized_at": m.FinalizedAt,
			"sealed_at":    m.SealedAt,
			"content_hash": m.ContentHash,
			"updated_at":   m.UpdatedAt,
			"version":      m.Version,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finalize invoice: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return r.explainRejectedWrite(ctx, invoice, "finalize")
	}
	return nil
}

// explainRejectedWrite turns a conditional update that matched no row into the
// error the caller can act on
func (r *GormInvoiceRepository) explainRejectedWrite(ctx context.Context, invoice *ledger.Invoice, operation string) error {
	stored, err := r.find(ctx, invoice.TenantID, invoice.ID)
	if err != nil {
		return err
	}
	if stored.Status != string(ledger.InvoiceStatusDraft) || stored.SealedAt != nil {
		return shared.NewImmutabilityViolation(shared.KindInvoice, invoice.ID, operation)
	}
	return shared.ErrConcurrencyConflict
}

// ListFinalizedByClient returns the finalized invoices of one client, oldest first
func (r *GormInvoiceRepository) ListFinalizedByClient(ctx context.Context, tenantID uuid.UUID, clientID string) ([]ledger.Invoice, error) {
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND client_id = ? AND status = ?", tenantID, clientID, string(ledger.InvoiceStatusFinalized)).
		Order("finalized_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return r.withLines(ctx, tenantID, rows)
}

// ListByTenant returns every invoice of the firm with its lines
func (r *GormInvoiceRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]ledger.Invoice, error) {
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return r.withLines(ctx, tenantID, rows)
}

var _ ledger.InvoiceRepository = (*GormInvoiceRepository)(nil)
