package models

import (
	"time"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// BaseModel provides the key and creation time of every ledger table.
// Identifiers are unique per firm, so the primary key is (tenant_id, id).
type BaseModel struct {
	TenantID  uuid.UUID `gorm:"type:varchar(36);primaryKey"`
	ID        string    `gorm:"type:varchar(160);primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

// ToDomain converts BaseModel to domain BaseEntity
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{
		ID:        shared.ImmutableID(m.ID),
		TenantID:  m.TenantID,
		CreatedAt: ledger.NormalizeTime(m.CreatedAt),
	}
}

// FromDomainBaseEntity populates BaseModel from domain BaseEntity
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.TenantID = e.TenantID
	m.ID = e.ID.String()
	m.CreatedAt = e.CreatedAt
}

// AggregateModel adds the optimistic locking version of mutable aggregates
type AggregateModel struct {
	BaseModel
	UpdatedAt time.Time `gorm:"not null"`
	Version   int       `gorm:"not null;default:1"`
}

// FromDomainAggregateRoot populates AggregateModel from domain BaseAggregateRoot
func (m *AggregateModel) FromDomainAggregateRoot(a shared.BaseAggregateRoot) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.UpdatedAt = a.UpdatedAt
	m.Version = a.Version
}

// ToDomainAggregateRoot converts AggregateModel to domain BaseAggregateRoot
func (m *AggregateModel) ToDomainAggregateRoot() shared.BaseAggregateRoot {
	return shared.BaseAggregateRoot{
		BaseEntity: m.BaseModel.ToDomain(),
		UpdatedAt:  ledger.NormalizeTime(m.UpdatedAt),
		Version:    m.Version,
	}
}

// SealColumns persist a shared.Seal
type SealColumns struct {
	SealedAt    *time.Time `gorm:"index"`
	ContentHash string     `gorm:"type:varchar(80)"`
}

// ToDomain converts the columns to a seal
func (s SealColumns) ToDomain() shared.Seal {
	seal := shared.Seal{ContentHash: s.ContentHash}
	if s.SealedAt != nil {
		at := ledger.NormalizeTime(*s.SealedAt)
		seal.SealedAt = &at
	}
	return seal
}

// SealColumnsFromDomain converts a seal to its columns
func SealColumnsFromDomain(s shared.Seal) SealColumns {
	return SealColumns{SealedAt: s.SealedAt, ContentHash: s.ContentHash}
}

func normalizePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	n := ledger.NormalizeTime(*t)
	return &n
}

func idPtr(s *string) *shared.ImmutableID {
	if s == nil || *s == "" {
		return nil
	}
	id := shared.ImmutableID(*s)
	return &id
}

func stringPtr(id *shared.ImmutableID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
