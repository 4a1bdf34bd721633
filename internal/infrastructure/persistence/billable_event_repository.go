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

// GormBillableEventRepository implements BillableEventRepository using GORM
type GormBillableEventRepository struct {
	db *gorm.DB
}

// NewGormBillableEventRepository creates a new GormBillableEventRepository
func NewGormBillableEventRepository(db *gorm.DB) *GormBillableEventRepository {
	return &GormBillableEventRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormBillableEventRepository) WithTx(tx *gorm.DB) *GormBillableEventRepository {
	return &GormBillableEventRepository{db: tx}
}

// FindByID finds a billable event by its ID
func (r *GormBillableEventRepository) FindByID(ctx context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*ledger.BillableEvent, error) {
	var model models.BillableEventModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id.String()).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NotFound(shared.KindBillableEvent, id)
		}
		return nil, fmt.Errorf("failed to load billable event: %w", err)
	}
	return model.ToDomain()
}

// InsertIfAbsent inserts the event unless the id is already stored
func (r *GormBillableEventRepository) InsertIfAbsent(ctx context.Context, event *ledger.BillableEvent) (bool, error) {
	model, err := models.BillableEventModelFromDomain(event)
	if err != nil {
		return false, fmt.Errorf("failed to encode billable event: %w", err)
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert billable event: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// GormApprovalRecordRepository implements ApprovalRecordRepository using GORM
type GormApprovalRecordRepository struct {
	db *gorm.DB
}

// NewGormApprovalRecordRepository creates a new GormApprovalRecordRepository
func NewGormApprovalRecordRepository(db *gorm.DB) *GormApprovalRecordRepository {
	return &GormApprovalRecordRepository{db: db}
}

// FindByID finds an approval record by its ID
func (r *GormApprovalRecordRepository) FindByID(ctx context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*ledger.ApprovalRecord, error) {
	var model models.ApprovalRecordModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id.String()).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NotFound(shared.KindApprovalRecord, id)
		}
		return nil, fmt.Errorf("failed to load approval record: %w", err)
	}
	return model.ToDomain(), nil
}

// Create inserts a sealed approval record
func (r *GormApprovalRecordRepository) Create(ctx context.Context, record *ledger.ApprovalRecord) error {
	if err := r.db.WithContext(ctx).Create(models.ApprovalRecordModelFromDomain(record)).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert approval record: %w", err)
	}
	return nil
}

var (
	_ ledger.BillableEventRepository  = (*GormBillableEventRepository)(nil)
	_ ledger.ApprovalRecordRepository = (*GormApprovalRecordRepository)(nil)
)
