package shared

import (
	"time"

	"github.com/google/uuid"
)

// Entity is the base interface for all ledger records
type Entity interface {
	GetID() ImmutableID
	GetTenantID() uuid.UUID
	GetCreatedAt() time.Time
}

// BaseEntity provides common fields for all ledger records.
// TenantID identifies the firm that owns the record.
type BaseEntity struct {
	ID        ImmutableID
	TenantID  uuid.UUID
	CreatedAt time.Time
}

// GetID returns the entity ID
func (e *BaseEntity) GetID() ImmutableID {
	return e.ID
}

// GetTenantID returns the owning firm
func (e *BaseEntity) GetTenantID() uuid.UUID {
	return e.TenantID
}

// GetCreatedAt returns the creation timestamp
func (e *BaseEntity) GetCreatedAt() time.Time {
	return e.CreatedAt
}

// NewBaseEntity creates a base entity with a freshly allocated ID
func NewBaseEntity(kind IDKind, tenantID uuid.UUID, now time.Time) BaseEntity {
	return BaseEntity{
		ID:        AllocateID(kind),
		TenantID:  tenantID,
		CreatedAt: now,
	}
}
