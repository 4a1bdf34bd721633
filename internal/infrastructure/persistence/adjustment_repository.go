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
)

// GormAdjustmentRepository implements AdjustmentRepository using GORM.
// Adjustments are only ever inserted.
type GormAdjustmentRepository struct {
	db *gorm.DB
}

// NewGormAdjustmentRepository creates a new GormAdjustmentRepository
func NewGormAdjustmentRepository(db *gorm.DB) *GormAdjustmentRepository {
	return &GormAdjustmentRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormAdjustmentRepository) WithTx(tx *gorm.DB) *GormAdjustmentRepository {
	return &GormAdjustmentRepository{db: tx}
}

// Append inserts the adjustment. Two writers racing for the same sequence collide on
// the unique index and the loser gets ErrConcurrencyConflict.
func (r *GormAdjustmentRepository) Append(ctx context.Context, adjustment *ledger.Adjustment) error {
	if err := r.db.WithContext(ctx).Create(models.AdjustmentModelFromDomain(adjustment)).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrConcurrencyConflict
		}
		return fmt.Errorf("failed to append adjustment: %w", err)
	}
	return nil
}

// FindLatest returns the adjustment with the highest sequence, or nil
func (r *GormAdjustmentRepository) FindLatest(ctx context.Context, tenantID uuid.UUID, invoiceID shared.ImmutableID) (*ledger.Adjustment, error) {
	var model models.AdjustmentModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID.String()).
		Order("sequence DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load latest adjustment: %w", err)
	}
	return model.ToDomain(), nil
}

// ListByInvoice returns the adjustment chain of an invoice
func (r *GormAdjustmentRepository) ListByInvoice(ctx context.Context, tenantID uuid.UUID, invoiceID shared.ImmutableID) ([]ledger.Adjustment, error) {
	return r.list(ctx, r.db.Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID.String()))
}

// ListByTenant returns every adjustment of the firm grouped by invoice
func (r *GormAdjustmentRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]ledger.Adjustment, error) {
	return r.list(ctx, r.db.Where("tenant_id = ?", tenantID))
}

func (r *GormAdjustmentRepository) list(ctx context.Context, scope *gorm.DB) ([]ledger.Adjustment, error) {
	var rows []models.AdjustmentModel
	if err := scope.WithContext(ctx).
		Order("invoice_id ASC, sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list adjustments: %w", err)
	}
	out := make([]ledger.Adjustment, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

var _ ledger.AdjustmentRepository = (*GormAdjustmentRepository)(nil)
