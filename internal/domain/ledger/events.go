package ledger

import (
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Aggregate type constants
const (
	AggregateTypeBillableEvent  = "BillableEvent"
	AggregateTypeApprovalRecord = "ApprovalRecord"
	AggregateTypeQuote          = "Quote"
	AggregateTypeAcceptance     = "Acceptance"
	AggregateTypeInvoice        = "Invoice"
	AggregateTypeAdjustment     = "Adjustment"
	AggregateTypeBindingEvent   = "BindingEvent"
)

// Event type constants
const (
	EventTypeBillableEventIngested = "ledger.billable_event.ingested"
	EventTypeApprovalRecorded      = "ledger.approval.recorded"
	EventTypeQuoteIssued           = "ledger.quote.issued"
	EventTypeAcceptanceRecorded    = "ledger.acceptance.recorded"
	EventTypeInvoiceOpened         = "ledger.invoice.opened"
	EventTypeInvoiceLineGenerated  = "ledger.invoice.line_generated"
	EventTypeInvoiceFinalized      = "ledger.invoice.finalized"
	EventTypeAdjustmentAppended    = "ledger.adjustment.appended"
	EventTypeBindingRecorded       = "ledger.binding.recorded"
)

// BillableEventIngestedEvent is raised when a new billable event is stored
type BillableEventIngestedEvent struct {
	shared.BaseDomainEvent
	ClientID     string `json:"client_id"`
	BillableType string `json:"event_type"`
	ContentHash  string `json:"content_hash"`
}

// NewBillableEventIngestedEvent creates a BillableEventIngestedEvent
func NewBillableEventIngestedEvent(e *BillableEvent) *BillableEventIngestedEvent {
	return &BillableEventIngestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBillableEventIngested, AggregateTypeBillableEvent, e.ID, e.TenantID),
		ClientID:        e.ClientID,
		BillableType:    string(e.EventType),
		ContentHash:     e.Seal.ContentHash,
	}
}

// ApprovalRecordedEvent is raised when an internal approval record is stored
type ApprovalRecordedEvent struct {
	shared.BaseDomainEvent
	ClientID string `json:"client_id"`
}

// NewApprovalRecordedEvent creates an ApprovalRecordedEvent
func NewApprovalRecordedEvent(r *ApprovalRecord) *ApprovalRecordedEvent {
	return &ApprovalRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeApprovalRecorded, AggregateTypeApprovalRecord, r.ID, r.TenantID),
		ClientID:        r.ClientID,
	}
}

// QuoteIssuedEvent is raised when a quote is frozen
type QuoteIssuedEvent struct {
	shared.BaseDomainEvent
	ClientID    string `json:"client_id"`
	ContentHash string `json:"content_hash"`
}

// NewQuoteIssuedEvent creates a QuoteIssuedEvent
func NewQuoteIssuedEvent(q *Quote) *QuoteIssuedEvent {
	return &QuoteIssuedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeQuoteIssued, AggregateTypeQuote, q.ID, q.TenantID),
		ClientID:        q.ClientID,
		ContentHash:     q.Seal.ContentHash,
	}
}

// AcceptanceRecordedEvent is raised when a quote is accepted
type AcceptanceRecordedEvent struct {
	shared.BaseDomainEvent
	QuoteID  shared.ImmutableID `json:"quote_id"`
	ClientID string             `json:"client_id"`
}

// NewAcceptanceRecordedEvent creates an AcceptanceRecordedEvent
func NewAcceptanceRecordedEvent(a *Acceptance) *AcceptanceRecordedEvent {
	return &AcceptanceRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAcceptanceRecorded, AggregateTypeAcceptance, a.ID, a.TenantID),
		QuoteID:         a.QuoteID,
		ClientID:        a.ClientID,
	}
}

// InvoiceOpenedEvent is raised when a draft invoice is created
type InvoiceOpenedEvent struct {
	shared.BaseDomainEvent
	AcceptanceID shared.ImmutableID `json:"acceptance_id"`
	ClientID     string             `json:"client_id"`
}

// NewInvoiceOpenedEvent creates an InvoiceOpenedEvent
func NewInvoiceOpenedEvent(inv *Invoice) *InvoiceOpenedEvent {
	return &InvoiceOpenedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceOpened, AggregateTypeInvoice, inv.ID, inv.TenantID),
		AcceptanceID:    inv.AcceptanceID,
		ClientID:        inv.ClientID,
	}
}

// InvoiceLineGeneratedEvent is raised when a line is attached to a draft invoice
type InvoiceLineGeneratedEvent struct {
	shared.BaseDomainEvent
	LineID  shared.ImmutableID `json:"line_id"`
	Trigger TriggerRef         `json:"trigger"`
	Amount  decimal.Decimal    `json:"amount"`
}

// NewInvoiceLineGeneratedEvent creates an InvoiceLineGeneratedEvent
func NewInvoiceLineGeneratedEvent(inv *Invoice, line *InvoiceLine) *InvoiceLineGeneratedEvent {
	return &InvoiceLineGeneratedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceLineGenerated, AggregateTypeInvoice, inv.ID, inv.TenantID),
		LineID:          line.ID,
		Trigger:         line.Trigger,
		Amount:          line.Amount,
	}
}

// InvoiceFinalizedEvent is raised when an invoice is sealed
type InvoiceFinalizedEvent struct {
	shared.BaseDomainEvent
	ClientID    string          `json:"client_id"`
	Total       decimal.Decimal `json:"total"`
	LineCount   int             `json:"line_count"`
	ContentHash string          `json:"content_hash"`
}

// NewInvoiceFinalizedEvent creates an InvoiceFinalizedEvent
func NewInvoiceFinalizedEvent(inv *Invoice) *InvoiceFinalizedEvent {
	return &InvoiceFinalizedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceFinalized, AggregateTypeInvoice, inv.ID, inv.TenantID),
		ClientID:        inv.ClientID,
		Total:           inv.Total(),
		LineCount:       len(inv.Lines),
		ContentHash:     inv.Seal.ContentHash,
	}
}

// AdjustmentAppendedEvent is raised when a correction is recorded
type AdjustmentAppendedEvent struct {
	shared.BaseDomainEvent
	InvoiceID shared.ImmutableID  `json:"invoice_id"`
	LineID    *shared.ImmutableID `json:"line_id,omitempty"`
	Delta     decimal.Decimal     `json:"delta"`
	Sequence  int64               `json:"sequence"`
}

// NewAdjustmentAppendedEvent creates an AdjustmentAppendedEvent
func NewAdjustmentAppendedEvent(a *Adjustment) *AdjustmentAppendedEvent {
	return &AdjustmentAppendedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAdjustmentAppended, AggregateTypeAdjustment, a.ID, a.TenantID),
		InvoiceID:       a.InvoiceID,
		LineID:          a.LineID,
		Delta:           a.Delta,
		Sequence:        a.Sequence,
	}
}

// BindingRecordedEvent is raised when a binding is stored
type BindingRecordedEvent struct {
	shared.BaseDomainEvent
	Artifact   ArtifactRef         `json:"artifact"`
	Subject    shared.ImmutableID  `json:"subject,omitempty"`
	Supersedes *shared.ImmutableID `json:"supersedes,omitempty"`
	ClientID   string              `json:"client_id"`
}

// NewBindingRecordedEvent creates a BindingRecordedEvent
func NewBindingRecordedEvent(b *BindingEvent) *BindingRecordedEvent {
	return &BindingRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBindingRecorded, AggregateTypeBindingEvent, b.ID, b.TenantID),
		Artifact:        b.Artifact,
		Subject:         b.Subject,
		Supersedes:      b.Supersedes,
		ClientID:        b.ClientID,
	}
}
