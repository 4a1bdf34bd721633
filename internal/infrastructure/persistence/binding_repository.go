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

// GormBindingRepository implements BindingRepository using GORM
type GormBindingRepository struct {
	db *gorm.DB
}

// NewGormBindingRepository creates a new GormBindingRepository
func NewGormBindingRepository(db *gorm.DB) *GormBindingRepository {
	return &GormBindingRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormBindingRepository) WithTx(tx *gorm.DB) *GormBindingRepository {
	return &GormBindingRepository{db: tx}
}

// FindByID finds a binding event by its ID
func (r *GormBindingRepository) FindByID(ctx context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*ledger.BindingEvent, error) {
	var model models.BindingEventModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id.String()).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NotFound(shared.KindBindingEvent, id)
		}
		return nil, fmt.Errorf("failed to load binding: %w", err)
	}
	return model.ToDomain(), nil
}

// FindByDeliveryID returns the binding stored for a feed delivery, or nil
func (r *GormBindingRepository) FindByDeliveryID(ctx context.Context, tenantID uuid.UUID, deliveryID string) (*ledger.BindingEvent, error) {
	var model models.BindingEventModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND delivery_id = ?", tenantID, deliveryID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load binding: %w", err)
	}
	return model.ToDomain(), nil
}

// Create inserts a sealed binding event
func (r *GormBindingRepository) Create(ctx context.Context, binding *ledger.BindingEvent) error {
	if err := r.db.WithContext(ctx).Create(models.BindingEventModelFromDomain(binding)).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert binding: %w", err)
	}
	return nil
}

// MarkSuperseded sets the superseded_by pointer if it is still empty. No other column
// of a binding is ever updated.
func (r *GormBindingRepository) MarkSuperseded(ctx context.Context, tenantID uuid.UUID, id, next shared.ImmutableID) error {
	result := r.db.WithContext(ctx).
		Model(&models.BindingEventModel{}).
		Where("tenant_id = ? AND id = ? AND superseded_by IS NULL", tenantID, id.String()).
		Update("superseded_by", next.String())
	if result.Error != nil {
		return fmt.Errorf("failed to supersede binding: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, tenantID, id); err != nil {
		return err
	}
	return shared.NewImmutabilityViolation(shared.KindBindingEvent, id, "set superseded_by")
}

// ListBySubjects returns the bindings attached to any of the subjects
func (r *GormBindingRepository) ListBySubjects(ctx context.Context, tenantID uuid.UUID, subjects []shared.ImmutableID) ([]ledger.BindingEvent, error) {
	if len(subjects) == 0 {
		return []ledger.BindingEvent{}, nil
	}
	return r.list(ctx, r.db.Where("tenant_id = ? AND subject IN ?", tenantID, idStrings(subjects)))
}

// ListByTenant returns every binding of the firm
func (r *GormBindingRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]ledger.BindingEvent, error) {
	return r.list(ctx, r.db.Where("tenant_id = ?", tenantID))
}

func (r *GormBindingRepository) list(ctx context.Context, scope *gorm.DB) ([]ledger.BindingEvent, error) {
	var rows []models.BindingEventModel
	if err := scope.WithContext(ctx).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list bindings: %w", err)
	}
	out := make([]ledger.BindingEvent, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

func idStrings(ids []shared.ImmutableID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

var _ ledger.BindingRepository = (*GormBindingRepository)(nil)
