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

// GormQuoteRepository implements QuoteRepository using GORM
type GormQuoteRepository struct {
	db *gorm.DB
}

// NewGormQuoteRepository creates a new GormQuoteRepository
func NewGormQuoteRepository(db *gorm.DB) *GormQuoteRepository {
	return &GormQuoteRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormQuoteRepository) WithTx(tx *gorm.DB) *GormQuoteRepository {
	return &GormQuoteRepository{db: tx}
}

// FindByID finds a quote by its ID
func (r *GormQuoteRepository) FindByID(ctx context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*ledger.Quote, error) {
	model, err := r.find(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormQuoteRepository) find(ctx context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*models.QuoteModel, error) {
	var model models.QuoteModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id.String()).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NotFound(shared.KindQuote, id)
		}
		return nil, fmt.Errorf("failed to load quote: %w", err)
	}
	return &model, nil
}

// Create inserts a new quote
func (r *GormQuoteRepository) Create(ctx context.Context, quote *ledger.Quote) error {
	if err := r.db.WithContext(ctx).Create(models.QuoteModelFromDomain(quote)).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert quote: %w", err)
	}
	return nil
}

// Update writes the quote if the stored row is unsealed and still at expectedVersion
func (r *GormQuoteRepository) Update(ctx context.Context, quote *ledger.Quote, expectedVersion int) error {
	m := models.QuoteModelFromDomain(quote)
	result := r.db.WithContext(ctx).
		Model(&models.QuoteModel{}).
		Where("tenant_id = ? AND id = ? AND version = ? AND sealed_at IS NULL", quote.TenantID, quote.ID.String(), expectedVersion).
		Updates(map[string]any{
			"snapshot":     m.Snapshot,
			"status":       m.Status,
			"issued_by":    m.IssuedBy,
			"issued_at":    m.IssuedAt,
			"sealed_at":    m.SealedAt,
			"content_hash": m.ContentHash,
			"updated_at":   m.UpdatedAt,
			"version":      m.Version,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update quote: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	stored, err := r.find(ctx, quote.TenantID, quote.ID)
	if err != nil {
		return err
	}
	if stored.SealedAt != nil {
		return shared.NewImmutabilityViolation(shared.KindQuote, quote.ID, "update")
	}
	return shared.ErrConcurrencyConflict
}

// GormAcceptanceRepository implements AcceptanceRepository using GORM
type GormAcceptanceRepository struct {
	db *gorm.DB
}

// NewGormAcceptanceRepository creates a new GormAcceptanceRepository
func NewGormAcceptanceRepository(db *gorm.DB) *GormAcceptanceRepository {
	return &GormAcceptanceRepository{db: db}
}

// FindByID finds an acceptance by its ID
func (r *GormAcceptanceRepository) FindByID(ctx context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*ledger.Acceptance, error) {
	var model models.AcceptanceModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id.String()).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NotFound(shared.KindAcceptance, id)
		}
		return nil, fmt.Errorf("failed to load acceptance: %w", err)
	}
	return model.ToDomain(), nil
}

// FindByQuoteID returns the acceptance of a quote, or nil when there is none
func (r *GormAcceptanceRepository) FindByQuoteID(ctx context.Context, tenantID uuid.UUID, quoteID shared.ImmutableID) (*ledger.Acceptance, error) {
	var model models.AcceptanceModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND quote_id = ?", tenantID, quoteID.String()).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load acceptance: %w", err)
	}
	return model.ToDomain(), nil
}

// Create inserts a sealed acceptance. The unique index on quote_id rejects a second acceptance.
func (r *GormAcceptanceRepository) Create(ctx context.Context, acceptance *ledger.Acceptance) error {
	if err := r.db.WithContext(ctx).Create(models.AcceptanceModelFromDomain(acceptance)).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert acceptance: %w", err)
	}
	return nil
}

// ListByTenant returns every acceptance of the firm
func (r *GormAcceptanceRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]ledger.Acceptance, error) {
	var rows []models.AcceptanceModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list acceptances: %w", err)
	}
	out := make([]ledger.Acceptance, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

var (
	_ ledger.QuoteRepository      = (*GormQuoteRepository)(nil)
	_ ledger.AcceptanceRepository = (*GormAcceptanceRepository)(nil)
)
