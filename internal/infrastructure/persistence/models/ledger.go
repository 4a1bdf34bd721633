package models

import (
	"encoding/json"
	"time"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillableEventModel is the persistence model for the BillableEvent record
type BillableEventModel struct {
	TenantID     uuid.UUID `gorm:"type:varchar(36);primaryKey"`
	ID           string    `gorm:"type:varchar(160);primaryKey"`
	ClientID     string    `gorm:"type:varchar(100);not null;index"`
	EngagementID string    `gorm:"type:varchar(100)"`
	ProjectID    string    `gorm:"type:varchar(100)"`
	WorkItemRef  string    `gorm:"type:varchar(200)"`
	EventType    string    `gorm:"type:varchar(30);not null"`
	Payload      string    `gorm:"type:text;not null"`
	ApprovedBy   string    `gorm:"type:varchar(100);not null"`
	ApprovedAt   time.Time `gorm:"not null"`
	Overrides    *string   `gorm:"type:text"`
	IngestedAt   time.Time `gorm:"not null"`
	SealColumns
}

// TableName returns the table name for GORM
func (BillableEventModel) TableName() string {
	return "billable_events"
}

type overridesRecord struct {
	Allowed       bool             `json:"allowed"`
	Justification string           `json:"justification,omitempty"`
	ApprovedBy    string           `json:"approved_by,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
}

// ToDomain converts the persistence model to a domain BillableEvent
func (m *BillableEventModel) ToDomain() (*ledger.BillableEvent, error) {
	ev := &ledger.BillableEvent{
		ID:           shared.ImmutableID(m.ID),
		TenantID:     m.TenantID,
		ClientID:     m.ClientID,
		EngagementID: m.EngagementID,
		ProjectID:    m.ProjectID,
		WorkItemRef:  m.WorkItemRef,
		EventType:    ledger.EventType(m.EventType),
		Payload:      json.RawMessage(m.Payload),
		ApprovedBy:   m.ApprovedBy,
		ApprovedAt:   ledger.NormalizeTime(m.ApprovedAt),
		IngestedAt:   ledger.NormalizeTime(m.IngestedAt),
		Seal:         m.SealColumns.ToDomain(),
	}
	if m.Overrides != nil {
		var rec overridesRecord
		if err := json.Unmarshal([]byte(*m.Overrides), &rec); err != nil {
			return nil, err
		}
		ev.Overrides = &ledger.Overrides{
			Allowed:       rec.Allowed,
			Justification: rec.Justification,
			ApprovedBy:    rec.ApprovedBy,
			Amount:        rec.Amount,
		}
	}
	return ev, nil
}

// BillableEventModelFromDomain creates a persistence model from a domain BillableEvent
func BillableEventModelFromDomain(e *ledger.BillableEvent) (*BillableEventModel, error) {
	m := &BillableEventModel{
		TenantID:     e.TenantID,
		ID:           e.ID.String(),
		ClientID:     e.ClientID,
		EngagementID: e.EngagementID,
		ProjectID:    e.ProjectID,
		WorkItemRef:  e.WorkItemRef,
		EventType:    string(e.EventType),
		Payload:      string(e.Payload),
		ApprovedBy:   e.ApprovedBy,
		ApprovedAt:   e.ApprovedAt,
		IngestedAt:   e.IngestedAt,
		SealColumns:  SealColumnsFromDomain(e.Seal),
	}
	if e.Overrides != nil {
		raw, err := json.Marshal(overridesRecord{
			Allowed:       e.Overrides.Allowed,
			Justification: e.Overrides.Justification,
			ApprovedBy:    e.Overrides.ApprovedBy,
			Amount:        e.Overrides.Amount,
		})
		if err != nil {
			return nil, err
		}
		s := string(raw)
		m.Overrides = &s
	}
	return m, nil
}

// ApprovalRecordModel is the persistence model for the ApprovalRecord record
type ApprovalRecordModel struct {
	BaseModel
	ClientID     string          `gorm:"type:varchar(100);not null;index"`
	EngagementID string          `gorm:"type:varchar(100);not null"`
	Description  string          `gorm:"type:varchar(500);not null"`
	Quantity     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency     string          `gorm:"type:varchar(3);not null"`
	Reason       string          `gorm:"type:varchar(500);not null"`
	ApprovedBy   string          `gorm:"type:varchar(100);not null"`
	ApprovedAt   time.Time       `gorm:"not null"`
	SealColumns
}

// TableName returns the table name for GORM
func (ApprovalRecordModel) TableName() string {
	return "approval_records"
}

// ToDomain converts the persistence model to a domain ApprovalRecord
func (m *ApprovalRecordModel) ToDomain() *ledger.ApprovalRecord {
	return &ledger.ApprovalRecord{
		BaseEntity:   m.BaseModel.ToDomain(),
		ClientID:     m.ClientID,
		EngagementID: m.EngagementID,
		Description:  m.Description,
		Quantity:     m.Quantity,
		UnitPrice:    m.UnitPrice,
		Currency:     m.Currency,
		Reason:       m.Reason,
		ApprovedBy:   m.ApprovedBy,
		ApprovedAt:   ledger.NormalizeTime(m.ApprovedAt),
		Seal:         m.SealColumns.ToDomain(),
	}
}

// ApprovalRecordModelFromDomain creates a persistence model from a domain ApprovalRecord
func ApprovalRecordModelFromDomain(r *ledger.ApprovalRecord) *ApprovalRecordModel {
	m := &ApprovalRecordModel{
		ClientID:     r.ClientID,
		EngagementID: r.EngagementID,
		Description:  r.Description,
		Quantity:     r.Quantity,
		UnitPrice:    r.UnitPrice,
		Currency:     r.Currency,
		Reason:       r.Reason,
		ApprovedBy:   r.ApprovedBy,
		ApprovedAt:   r.ApprovedAt,
		SealColumns:  SealColumnsFromDomain(r.Seal),
	}
	m.FromDomainBaseEntity(r.BaseEntity)
	return m
}

// QuoteModel is the persistence model for the Quote aggregate
type QuoteModel struct {
	AggregateModel
	ClientID     string     `gorm:"type:varchar(100);not null;index"`
	EngagementID string     `gorm:"type:varchar(100);not null"`
	Currency     string     `gorm:"type:varchar(3);not null"`
	Snapshot     string     `gorm:"type:text;not null"`
	Status       string     `gorm:"type:varchar(20);not null"`
	CreatedBy    string     `gorm:"type:varchar(100);not null"`
	IssuedBy     string     `gorm:"type:varchar(100)"`
	IssuedAt     *time.Time
	SealColumns
}

// TableName returns the table name for GORM
func (QuoteModel) TableName() string {
	return "quotes"
}

// ToDomain converts the persistence model to a domain Quote
func (m *QuoteModel) ToDomain() *ledger.Quote {
	return &ledger.Quote{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		ClientID:          m.ClientID,
		EngagementID:      m.EngagementID,
		Currency:          m.Currency,
		Snapshot:          json.RawMessage(m.Snapshot),
		Status:            ledger.QuoteStatus(m.Status),
		CreatedBy:         m.CreatedBy,
		IssuedBy:          m.IssuedBy,
		IssuedAt:          normalizePtr(m.IssuedAt),
		Seal:              m.SealColumns.ToDomain(),
	}
}

// QuoteModelFromDomain creates a persistence model from a domain Quote
func QuoteModelFromDomain(q *ledger.Quote) *QuoteModel {
	m := &QuoteModel{
		ClientID:     q.ClientID,
		EngagementID: q.EngagementID,
		Currency:     q.Currency,
		Snapshot:     string(q.Snapshot),
		Status:       string(q.Status),
		CreatedBy:    q.CreatedBy,
		IssuedBy:     q.IssuedBy,
		IssuedAt:     q.IssuedAt,
		SealColumns:  SealColumnsFromDomain(q.Seal),
	}
	m.FromDomainAggregateRoot(q.BaseAggregateRoot)
	return m
}

// AcceptanceModel is the persistence model for the Acceptance record.
// A quote has at most one acceptance.
type AcceptanceModel struct {
	TenantID   uuid.UUID `gorm:"type:varchar(36);primaryKey;uniqueIndex:uq_acceptances_quote,priority:1"`
	ID         string    `gorm:"type:varchar(160);primaryKey"`
	QuoteID    string    `gorm:"type:varchar(160);not null;uniqueIndex:uq_acceptances_quote,priority:2"`
	ClientID   string    `gorm:"type:varchar(100);not null"`
	AcceptedBy string    `gorm:"type:varchar(200);not null"`
	AcceptedAt time.Time `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
	SealColumns
}

// TableName returns the table name for GORM
func (AcceptanceModel) TableName() string {
	return "acceptances"
}

// ToDomain converts the persistence model to a domain Acceptance
func (m *AcceptanceModel) ToDomain() *ledger.Acceptance {
	return &ledger.Acceptance{
		BaseEntity: shared.BaseEntity{
			ID:        shared.ImmutableID(m.ID),
			TenantID:  m.TenantID,
			CreatedAt: ledger.NormalizeTime(m.CreatedAt),
		},
		QuoteID:    shared.ImmutableID(m.QuoteID),
		ClientID:   m.ClientID,
		AcceptedBy: m.AcceptedBy,
		AcceptedAt: ledger.NormalizeTime(m.AcceptedAt),
		Seal:       m.SealColumns.ToDomain(),
	}
}

// AcceptanceModelFromDomain creates a persistence model from a domain Acceptance
func AcceptanceModelFromDomain(a *ledger.Acceptance) *AcceptanceModel {
	return &AcceptanceModel{
		TenantID:    a.TenantID,
		ID:          a.ID.String(),
		QuoteID:     a.QuoteID.String(),
		ClientID:    a.ClientID,
		AcceptedBy:  a.AcceptedBy,
		AcceptedAt:  a.AcceptedAt,
		CreatedAt:   a.CreatedAt,
		SealColumns: SealColumnsFromDomain(a.Seal),
	}
}

// InvoiceModel is the persistence model for the Invoice aggregate
type InvoiceModel struct {
	AggregateModel
	ClientID     string             `gorm:"type:varchar(100);not null;index:idx_invoices_client"`
	AcceptanceID string             `gorm:"type:varchar(160);not null"`
	Currency     string             `gorm:"type:varchar(3);not null"`
	Status       string             `gorm:"type:varchar(20);not null;index:idx_invoices_client"`
	OpenedBy     string             `gorm:"type:varchar(100);not null"`
	FinalizedBy  string             `gorm:"type:varchar(100)"`
	FinalizedAt  *time.Time
	Lines        []InvoiceLineModel `gorm:"-"`
	SealColumns
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice with its lines
func (m *InvoiceModel) ToDomain() *ledger.Invoice {
	inv := &ledger.Invoice{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		ClientID:          m.ClientID,
		AcceptanceID:      shared.ImmutableID(m.AcceptanceID),
		Currency:          m.Currency,
		Status:            ledger.InvoiceStatus(m.Status),
		OpenedBy:          m.OpenedBy,
		FinalizedBy:       m.FinalizedBy,
		FinalizedAt:       normalizePtr(m.FinalizedAt),
		Lines:             make([]ledger.InvoiceLine, len(m.Lines)),
		Seal:              m.SealColumns.ToDomain(),
	}
	for i := range m.Lines {
		inv.Lines[i] = *m.Lines[i].ToDomain()
	}
	return inv
}

// InvoiceModelFromDomain creates a persistence model from a domain Invoice, without lines.
// Lines are written one by one through InvoiceLineModelFromDomain.
func InvoiceModelFromDomain(i *ledger.Invoice) *InvoiceModel {
	m := &InvoiceModel{
		ClientID:     i.ClientID,
		AcceptanceID: i.AcceptanceID.String(),
		Currency:     i.Currency,
		Status:       string(i.Status),
		OpenedBy:     i.OpenedBy,
		FinalizedBy:  i.FinalizedBy,
		FinalizedAt:  i.FinalizedAt,
		SealColumns:  SealColumnsFromDomain(i.Seal),
	}
	m.FromDomainAggregateRoot(i.BaseAggregateRoot)
	return m
}

// InvoiceLineModel is the persistence model for the InvoiceLine record.
// The trigger columns carry the firm-wide uniqueness of triggers.
type InvoiceLineModel struct {
	TenantID              uuid.UUID        `gorm:"type:varchar(36);primaryKey;uniqueIndex:uq_invoice_lines_trigger,priority:1"`
	ID                    string           `gorm:"type:varchar(160);primaryKey"`
	InvoiceID             string           `gorm:"type:varchar(160);not null;index"`
	Position              int              `gorm:"not null"`
	TriggerKind           string           `gorm:"type:varchar(30);not null;uniqueIndex:uq_invoice_lines_trigger,priority:2"`
	TriggerID             string           `gorm:"type:varchar(160);not null;uniqueIndex:uq_invoice_lines_trigger,priority:3"`
	Description           string           `gorm:"type:varchar(500);not null"`
	Quantity              decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	UnitPrice             decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	Amount                decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	Currency              string           `gorm:"type:varchar(3);not null"`
	ApprovedBy            string           `gorm:"type:varchar(100);not null"`
	ApprovedAt            time.Time        `gorm:"not null"`
	OverrideJustification string           `gorm:"type:varchar(500)"`
	OverrideApprovedBy    string           `gorm:"type:varchar(100)"`
	PayloadAmount         *decimal.Decimal `gorm:"type:decimal(18,4)"`
	CreatedAt             time.Time        `gorm:"not null"`
	SealColumns
}

// TableName returns the table name for GORM
func (InvoiceLineModel) TableName() string {
	return "invoice_lines"
}

// ToDomain converts the persistence model to a domain InvoiceLine
func (m *InvoiceLineModel) ToDomain() *ledger.InvoiceLine {
	line := &ledger.InvoiceLine{
		ID:          shared.ImmutableID(m.ID),
		TenantID:    m.TenantID,
		InvoiceID:   shared.ImmutableID(m.InvoiceID),
		Position:    m.Position,
		Trigger:     ledger.TriggerRef{Kind: ledger.TriggerKind(m.TriggerKind), ID: shared.ImmutableID(m.TriggerID)},
		Description: m.Description,
		Quantity:    m.Quantity,
		UnitPrice:   m.UnitPrice,
		Amount:      m.Amount,
		Currency:    m.Currency,
		ApprovedBy:  m.ApprovedBy,
		ApprovedAt:  ledger.NormalizeTime(m.ApprovedAt),
		CreatedAt:   ledger.NormalizeTime(m.CreatedAt),
		Seal:        m.SealColumns.ToDomain(),
	}
	if m.PayloadAmount != nil {
		line.Override = &ledger.AppliedOverride{
			Justification:  m.OverrideJustification,
			ApprovedBy:     m.OverrideApprovedBy,
			PayloadAmount:  *m.PayloadAmount,
			OverrideAmount: m.Amount,
		}
	}
	return line
}

// InvoiceLineModelFromDomain creates a persistence model from a domain InvoiceLine
func InvoiceLineModelFromDomain(l *ledger.InvoiceLine) *InvoiceLineModel {
	m := &InvoiceLineModel{
		TenantID:    l.TenantID,
		ID:          l.ID.String(),
		InvoiceID:   l.InvoiceID.String(),
		Position:    l.Position,
		TriggerKind: string(l.Trigger.Kind),
		TriggerID:   l.Trigger.ID.String(),
		Description: l.Description,
		Quantity:    l.Quantity,
		UnitPrice:   l.UnitPrice,
		Amount:      l.Amount,
		Currency:    l.Currency,
		ApprovedBy:  l.ApprovedBy,
		ApprovedAt:  l.ApprovedAt,
		CreatedAt:   l.CreatedAt,
		SealColumns: SealColumnsFromDomain(l.Seal),
	}
	if l.Override != nil {
		payload := l.Override.PayloadAmount
		m.OverrideJustification = l.Override.Justification
		m.OverrideApprovedBy = l.Override.ApprovedBy
		m.PayloadAmount = &payload
	}
	return m
}

// AdjustmentModel is the persistence model for the Adjustment record.
// (tenant_id, invoice_id, sequence) is unique, which serializes concurrent appends.
type AdjustmentModel struct {
	TenantID  uuid.UUID       `gorm:"type:varchar(36);primaryKey;uniqueIndex:uq_adjustments_sequence,priority:1"`
	ID        string          `gorm:"type:varchar(160);primaryKey"`
	InvoiceID string          `gorm:"type:varchar(160);not null;uniqueIndex:uq_adjustments_sequence,priority:2"`
	Sequence  int64           `gorm:"not null;uniqueIndex:uq_adjustments_sequence,priority:3"`
	LineID    *string         `gorm:"type:varchar(160)"`
	Delta     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency  string          `gorm:"type:varchar(3);not null"`
	Reason    string          `gorm:"type:varchar(500);not null"`
	Actor     string          `gorm:"type:varchar(100);not null"`
	PrevHash  string          `gorm:"type:varchar(80)"`
	CreatedAt time.Time       `gorm:"not null"`
	SealColumns
}

// TableName returns the table name for GORM
func (AdjustmentModel) TableName() string {
	return "adjustments"
}

// ToDomain converts the persistence model to a domain Adjustment
func (m *AdjustmentModel) ToDomain() *ledger.Adjustment {
	return &ledger.Adjustment{
		BaseEntity: shared.BaseEntity{
			ID:        shared.ImmutableID(m.ID),
			TenantID:  m.TenantID,
			CreatedAt: ledger.NormalizeTime(m.CreatedAt),
		},
		InvoiceID: shared.ImmutableID(m.InvoiceID),
		LineID:    idPtr(m.LineID),
		Delta:     m.Delta,
		Currency:  m.Currency,
		Reason:    m.Reason,
		Actor:     m.Actor,
		Sequence:  m.Sequence,
		PrevHash:  m.PrevHash,
		Seal:      m.SealColumns.ToDomain(),
	}
}

// AdjustmentModelFromDomain creates a persistence model from a domain Adjustment
func AdjustmentModelFromDomain(a *ledger.Adjustment) *AdjustmentModel {
	return &AdjustmentModel{
		TenantID:    a.TenantID,
		ID:          a.ID.String(),
		InvoiceID:   a.InvoiceID.String(),
		Sequence:    a.Sequence,
		LineID:      stringPtr(a.LineID),
		Delta:       a.Delta,
		Currency:    a.Currency,
		Reason:      a.Reason,
		Actor:       a.Actor,
		PrevHash:    a.PrevHash,
		CreatedAt:   a.CreatedAt,
		SealColumns: SealColumnsFromDomain(a.Seal),
	}
}

// BindingEventModel is the persistence model for the BindingEvent record.
// DeliveryID is NULL for bindings that did not arrive through the feed, so the
// unique index only constrains feed deliveries.
type BindingEventModel struct {
	TenantID     uuid.UUID `gorm:"type:varchar(36);primaryKey;uniqueIndex:uq_binding_events_delivery,priority:1;index:idx_binding_events_client,priority:1"`
	ID           string    `gorm:"type:varchar(160);primaryKey"`
	ArtifactKind string    `gorm:"type:varchar(30);not null"`
	ArtifactID   string    `gorm:"type:varchar(160);not null"`
	ClientID     string    `gorm:"type:varchar(100);not null;index:idx_binding_events_client,priority:2"`
	Purpose      string    `gorm:"type:varchar(30);not null"`
	Subject      string    `gorm:"type:varchar(160);index"`
	Actor        string    `gorm:"type:varchar(100);not null"`
	BoundAt      time.Time `gorm:"not null"`
	DeliveryID   *string   `gorm:"type:varchar(200);uniqueIndex:uq_binding_events_delivery,priority:2"`
	Supersedes   *string   `gorm:"type:varchar(160)"`
	SupersededBy *string   `gorm:"type:varchar(160)"`
	CreatedAt    time.Time `gorm:"not null"`
	SealColumns
}

// TableName returns the table name for GORM
func (BindingEventModel) TableName() string {
	return "binding_events"
}

// ToDomain converts the persistence model to a domain BindingEvent
func (m *BindingEventModel) ToDomain() *ledger.BindingEvent {
	b := &ledger.BindingEvent{
		BaseEntity: shared.BaseEntity{
			ID:        shared.ImmutableID(m.ID),
			TenantID:  m.TenantID,
			CreatedAt: ledger.NormalizeTime(m.CreatedAt),
		},
		Artifact:     ledger.ArtifactRef{Kind: ledger.ArtifactKind(m.ArtifactKind), ID: shared.ImmutableID(m.ArtifactID)},
		ClientID:     m.ClientID,
		Purpose:      ledger.DocumentPurpose(m.Purpose),
		Subject:      shared.ImmutableID(m.Subject),
		Actor:        m.Actor,
		BoundAt:      ledger.NormalizeTime(m.BoundAt),
		Supersedes:   idPtr(m.Supersedes),
		SupersededBy: idPtr(m.SupersededBy),
		Seal:         m.SealColumns.ToDomain(),
	}
	if m.DeliveryID != nil {
		b.DeliveryID = *m.DeliveryID
	}
	return b
}

// BindingEventModelFromDomain creates a persistence model from a domain BindingEvent
func BindingEventModelFromDomain(b *ledger.BindingEvent) *BindingEventModel {
	m := &BindingEventModel{
		TenantID:     b.TenantID,
		ID:           b.ID.String(),
		ArtifactKind: string(b.Artifact.Kind),
		ArtifactID:   b.Artifact.ID.String(),
		ClientID:     b.ClientID,
		Purpose:      string(b.Purpose),
		Subject:      b.Subject.String(),
		Actor:        b.Actor,
		BoundAt:      b.BoundAt,
		Supersedes:   stringPtr(b.Supersedes),
		SupersededBy: stringPtr(b.SupersededBy),
		CreatedAt:    b.CreatedAt,
		SealColumns:  SealColumnsFromDomain(b.Seal),
	}
	if b.DeliveryID != "" {
		d := b.DeliveryID
		m.DeliveryID = &d
	}
	return m
}

// LineageEdgeModel is one row of the derived lineage index
type LineageEdgeModel struct {
	TenantID uuid.UUID `gorm:"type:varchar(36);primaryKey"`
	FromID   string    `gorm:"type:varchar(160);primaryKey"`
	EdgeType string    `gorm:"type:varchar(20);primaryKey"`
	ToID     string    `gorm:"type:varchar(160);primaryKey;index:idx_lineage_edges_to"`
	FromKind string    `gorm:"type:varchar(30);not null"`
	ToKind   string    `gorm:"type:varchar(30);not null"`
}

// TableName returns the table name for GORM
func (LineageEdgeModel) TableName() string {
	return "lineage_edges"
}

// ToDomain converts the row to a domain Edge
func (m *LineageEdgeModel) ToDomain() ledger.Edge {
	return ledger.Edge{
		TenantID: m.TenantID,
		From:     ledger.NodeRef{Kind: shared.IDKind(m.FromKind), ID: shared.ImmutableID(m.FromID)},
		To:       ledger.NodeRef{Kind: shared.IDKind(m.ToKind), ID: shared.ImmutableID(m.ToID)},
		Type:     ledger.EdgeType(m.EdgeType),
	}
}

// LineageEdgeModelFromDomain creates a row from a domain Edge
func LineageEdgeModelFromDomain(e ledger.Edge) LineageEdgeModel {
	return LineageEdgeModel{
		TenantID: e.TenantID,
		FromID:   e.From.ID.String(),
		EdgeType: string(e.Type),
		ToID:     e.To.ID.String(),
		FromKind: string(e.From.Kind),
		ToKind:   string(e.To.Kind),
	}
}

// LedgerModels lists every ledger table for AutoMigrate in tests
func LedgerModels() []any {
	return []any{
		&BillableEventModel{},
		&ApprovalRecordModel{},
		&QuoteModel{},
		&AcceptanceModel{},
		&InvoiceModel{},
		&InvoiceLineModel{},
		&AdjustmentModel{},
		&BindingEventModel{},
		&LineageEdgeModel{},
	}
}
