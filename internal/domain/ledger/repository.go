package ledger

import (
	"context"

	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// BillableEventRepository stores ingested billable events. Records are insert-only.
type BillableEventRepository interface {
	// FindByID returns shared.ErrNotFound when the event does not exist
	FindByID(ctx context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*BillableEvent, error)
	// InsertIfAbsent stores the event unless one with the same id exists.
	// It reports whether this call inserted the record.
	InsertIfAbsent(ctx context.Context, event *BillableEvent) (bool, error)
}

// ApprovalRecordRepository stores internal approval records. Records are insert-only.
type ApprovalRecordRepository interface {
	FindByID(ctx context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*ApprovalRecord, error)
	Create(ctx context.Context, record *ApprovalRecord) error
}

// QuoteRepository stores quotes
type QuoteRepository interface {
	FindByID(ctx context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*Quote, error)
	Create(ctx context.Context, quote *Quote) error
	// Update writes a quote that was unsealed at expectedVersion. The check and the write
	// happen in one statement; a sealed quote yields an ImmutabilityViolation.
	Update(ctx context.Context, quote *Quote, expectedVersion int) error
}

// AcceptanceRepository stores acceptances. Records are insert-only.
type AcceptanceRepository interface {
	FindByID(ctx context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*Acceptance, error)
	// FindByQuoteID returns nil, nil when the quote has no acceptance
	FindByQuoteID(ctx context.Context, tenantID uuid.UUID, quoteID shared.ImmutableID) (*Acceptance, error)
	// Create returns shared.ErrAlreadyExists when the quote is already accepted
	Create(ctx context.Context, acceptance *Acceptance) error
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]Acceptance, error)
}

// InvoiceRepository stores invoices and their lines
type InvoiceRepository interface {
	// FindByID loads the invoice with its lines ordered by position
	FindByID(ctx context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*Invoice, error)
	Create(ctx context.Context, invoice *Invoice) error
	// FindLineByTrigger returns nil, nil when no line references the trigger
	FindLineByTrigger(ctx context.Context, tenantID uuid.UUID, trigger TriggerRef) (*InvoiceLine, error)
	// InsertLine inserts a sealed line and bumps the invoice version from expectedVersion,
	// provided the invoice is still a draft. A unique violation on the trigger yields a
	// DuplicateTriggerError; a finalized invoice yields an ImmutabilityViolation.
	InsertLine(ctx context.Context, invoice *Invoice, line *InvoiceLine, expectedVersion int) error
	// Finalize seals a draft invoice at expectedVersion
	Finalize(ctx context.Context, invoice *Invoice, expectedVersion int) error
	ListFinalizedByClient(ctx context.Context, tenantID uuid.UUID, clientID string) ([]Invoice, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]Invoice, error)
}

// AdjustmentRepository stores adjustments. Records are append-only.
type AdjustmentRepository interface {
	// Append inserts the adjustment. A sequence already taken for the invoice yields
	// shared.ErrConcurrencyConflict.
	Append(ctx context.Context, adjustment *Adjustment) error
	// FindLatest returns nil, nil when the invoice has no adjustments
	FindLatest(ctx context.Context, tenantID uuid.UUID, invoiceID shared.ImmutableID) (*Adjustment, error)
	// ListByInvoice returns adjustments ordered by sequence
	ListByInvoice(ctx context.Context, tenantID uuid.UUID, invoiceID shared.ImmutableID) ([]Adjustment, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]Adjustment, error)
}

// BindingRepository stores binding events. Records are insert-only apart from the
// superseded_by pointer, which is set once.
type BindingRepository interface {
	FindByID(ctx context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*BindingEvent, error)
	// FindByDeliveryID returns nil, nil when no binding came from the delivery
	FindByDeliveryID(ctx context.Context, tenantID uuid.UUID, deliveryID string) (*BindingEvent, error)
	// Create returns shared.ErrAlreadyExists when the delivery id was already stored
	Create(ctx context.Context, binding *BindingEvent) error
	// MarkSuperseded sets superseded_by only if it is still empty
	MarkSuperseded(ctx context.Context, tenantID uuid.UUID, id, next shared.ImmutableID) error
	ListBySubjects(ctx context.Context, tenantID uuid.UUID, subjects []shared.ImmutableID) ([]BindingEvent, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]BindingEvent, error)
}

// PortalSource is the only data access the portal filter has: finalized invoices and
// active client-facing bindings of one client
type PortalSource interface {
	ListFinalizedByClient(ctx context.Context, tenantID uuid.UUID, clientID string) ([]Invoice, error)
	ListActiveBindingsForClient(ctx context.Context, tenantID uuid.UUID, clientID string, purposes []DocumentPurpose) ([]BindingEvent, error)
	ListAdjustmentsByInvoices(ctx context.Context, tenantID uuid.UUID, invoiceIDs []shared.ImmutableID) (map[shared.ImmutableID][]Adjustment, error)
}

// LineageIndex stores derived lineage edges. It owns no primary data.
type LineageIndex interface {
	// AddEdges inserts edges, ignoring ones already present
	AddEdges(ctx context.Context, edges ...Edge) error
	EdgesTo(ctx context.Context, tenantID uuid.UUID, to shared.ImmutableID, edgeType EdgeType) ([]Edge, error)
	EdgesFrom(ctx context.Context, tenantID uuid.UUID, from []shared.ImmutableID, edgeTypes ...EdgeType) ([]Edge, error)
	// Replace atomically swaps every edge of the tenant for the given set
	Replace(ctx context.Context, tenantID uuid.UUID, edges []Edge) error
}
