package ledger

import (
	"encoding/json"
	"time"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// OverridesRequest is the override block of an inbound billable event
type OverridesRequest struct {
	Allowed       bool             `json:"allowed"`
	Justification string           `json:"justification"`
	ApprovedBy    string           `json:"approved_by"`
	Amount        *decimal.Decimal `json:"amount"`
}

// IngestBillableEventRequest is an approved work-completion event from project management
type IngestBillableEventRequest struct {
	ID           string            `json:"billable_event_id" binding:"required,max=160"`
	ClientID     string            `json:"client_id" binding:"required,max=100"`
	EngagementID string            `json:"engagement_id" binding:"max=100"`
	ProjectID    string            `json:"project_id" binding:"max=100"`
	WorkItemRef  string            `json:"work_item_ref" binding:"max=200"`
	EventType    string            `json:"event_type" binding:"required,oneof=time_entry milestone expense fixed_fee"`
	EventPayload json.RawMessage   `json:"event_payload" binding:"required"`
	ApprovedBy   string            `json:"approved_by" binding:"required,max=100"`
	ApprovedAt   *time.Time        `json:"approved_at" binding:"required"`
	Overrides    *OverridesRequest `json:"overrides"`
}

func (r IngestBillableEventRequest) toDomain() ledger.NewBillableEventInput {
	in := ledger.NewBillableEventInput{
		ID:           r.ID,
		ClientID:     r.ClientID,
		EngagementID: r.EngagementID,
		ProjectID:    r.ProjectID,
		WorkItemRef:  r.WorkItemRef,
		EventType:    r.EventType,
		Payload:      r.EventPayload,
		ApprovedBy:   r.ApprovedBy,
		ApprovedAt:   r.ApprovedAt,
	}
	if r.Overrides != nil {
		in.Overrides = &ledger.Overrides{
			Allowed:       r.Overrides.Allowed,
			Justification: r.Overrides.Justification,
			ApprovedBy:    r.Overrides.ApprovedBy,
			Amount:        r.Overrides.Amount,
		}
	}
	return in
}

// RecordApprovalRequest creates an internal approval record
type RecordApprovalRequest struct {
	ClientID     string          `json:"client_id" binding:"required,max=100"`
	EngagementID string          `json:"engagement_id" binding:"required,max=100"`
	Description  string          `json:"description" binding:"required,max=500"`
	Quantity     decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice    decimal.Decimal `json:"unit_price" binding:"required"`
	Currency     string          `json:"currency" binding:"required,len=3"`
	Reason       string          `json:"reason" binding:"required,max=500"`
	ApprovedBy   string          `json:"approved_by" binding:"required,max=100"`
	ApprovedAt   *time.Time      `json:"approved_at" binding:"required"`
}

// CreateQuoteRequest creates a draft quote
type CreateQuoteRequest struct {
	ClientID     string          `json:"client_id" binding:"required,max=100"`
	EngagementID string          `json:"engagement_id" binding:"required,max=100"`
	Currency     string          `json:"currency" binding:"required,len=3"`
	Snapshot     json.RawMessage `json:"snapshot" binding:"required"`
	CreatedBy    string          `json:"created_by" binding:"required,max=100"`
}

// ReviseQuoteRequest replaces the snapshot of a draft quote
type ReviseQuoteRequest struct {
	Snapshot json.RawMessage `json:"snapshot" binding:"required"`
}

// IssueQuoteRequest freezes a quote
type IssueQuoteRequest struct {
	IssuedBy string `json:"issued_by" binding:"required,max=100"`
}

// AcceptQuoteRequest records the client's acceptance of an issued quote
type AcceptQuoteRequest struct {
	AcceptedBy string     `json:"accepted_by" binding:"required,max=100"`
	AcceptedAt *time.Time `json:"accepted_at" binding:"required"`
}

// OpenInvoiceRequest opens a draft invoice. Currency defaults to the quote's.
type OpenInvoiceRequest struct {
	AcceptanceID string `json:"acceptance_id" binding:"required"`
	Currency     string `json:"currency" binding:"omitempty,len=3"`
	OpenedBy     string `json:"opened_by" binding:"required,max=100"`
}

// GenerateLineRequest names the trigger a line is generated from
type GenerateLineRequest struct {
	TriggerKind string `json:"trigger_kind" binding:"required,oneof=billable_event approval_record"`
	TriggerID   string `json:"trigger_id" binding:"required"`
}

// FinalizeInvoiceRequest seals a draft invoice
type FinalizeInvoiceRequest struct {
	FinalizedBy string `json:"finalized_by" binding:"required,max=100"`
}

// AppendAdjustmentRequest records a correction against an invoice or one of its lines
type AppendAdjustmentRequest struct {
	LineID *string         `json:"line_id"`
	Delta  decimal.Decimal `json:"delta" binding:"required"`
	Reason string          `json:"reason" binding:"required,max=500"`
	Actor  string          `json:"actor" binding:"required,max=100"`
}

// BindRequest binds a business artifact to an immutable document identifier
type BindRequest struct {
	ArtifactKind string     `json:"artifact_kind" binding:"required,oneof=document_version frozen_artifact"`
	ArtifactRef  string     `json:"artifact_ref" binding:"required"`
	ClientID     string     `json:"client_id" binding:"required,max=100"`
	Purpose      string     `json:"purpose" binding:"required"`
	Subject      string     `json:"subject"`
	Actor        string     `json:"actor" binding:"required,max=100"`
	BoundAt      *time.Time `json:"bound_at"`
}

// RebindRequest replaces the document of an active binding
type RebindRequest struct {
	ArtifactKind string `json:"artifact_kind" binding:"required,oneof=document_version frozen_artifact"`
	ArtifactRef  string `json:"artifact_ref" binding:"required"`
	Actor        string `json:"actor" binding:"required,max=100"`
}

// DMSBindingFeedEvent is one delivery of the document management binding feed.
// Exactly one of the three document fields is set.
type DMSBindingFeedEvent struct {
	DeliveryID         string     `json:"delivery_id" binding:"required,max=200"`
	DocumentVersionID  string     `json:"document_version_id" binding:"omitempty,max=160"`
	FrozenArtifactID   string     `json:"frozen_artifact_id" binding:"omitempty,max=160"`
	FrozenArtifactHash string     `json:"frozen_artifact_hash" binding:"omitempty,max=160"`
	ClientID           string     `json:"client_id" binding:"required,max=100"`
	Purpose            string     `json:"purpose" binding:"required"`
	Subject            string     `json:"subject" binding:"omitempty,max=160"`
	Actor              string     `json:"actor" binding:"required,max=100"`
	BoundAt            *time.Time `json:"bound_at"`
	Supersedes         string     `json:"supersedes" binding:"omitempty,max=160"`
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// SealResponse shows the write-once state of a record
type SealResponse struct {
	SealedAt    *time.Time `json:"sealed_at,omitempty"`
	ContentHash string     `json:"content_hash,omitempty"`
}

func toSealResponse(seal shared.Seal) SealResponse {
	if !seal.IsSealed() {
		return SealResponse{}
	}
	return SealResponse{SealedAt: seal.SealedAt, ContentHash: seal.ContentHash}
}

// BillableEventResponse is a stored billable event
type BillableEventResponse struct {
	ID           string          `json:"id"`
	ClientID     string          `json:"client_id"`
	EngagementID string          `json:"engagement_id,omitempty"`
	ProjectID    string          `json:"project_id,omitempty"`
	WorkItemRef  string          `json:"work_item_ref,omitempty"`
	EventType    string          `json:"event_type"`
	EventPayload json.RawMessage `json:"event_payload"`
	ApprovedBy   string          `json:"approved_by"`
	ApprovedAt   time.Time       `json:"approved_at"`
	IngestedAt   time.Time       `json:"ingested_at"`
	Seal         SealResponse    `json:"seal"`
}

// IngestResult reports the stored event and whether this call was a replay
type IngestResult struct {
	Event    BillableEventResponse `json:"event"`
	Replayed bool                  `json:"replayed"`
}

// ToBillableEventResponse converts a domain event to its response
func ToBillableEventResponse(e *ledger.BillableEvent) BillableEventResponse {
	return BillableEventResponse{
		ID:           e.ID.String(),
		ClientID:     e.ClientID,
		EngagementID: e.EngagementID,
		ProjectID:    e.ProjectID,
		WorkItemRef:  e.WorkItemRef,
		EventType:    string(e.EventType),
		EventPayload: e.Payload,
		ApprovedBy:   e.ApprovedBy,
		ApprovedAt:   e.ApprovedAt,
		IngestedAt:   e.IngestedAt,
		Seal:         toSealResponse(e.Seal),
	}
}

// ApprovalRecordResponse is a stored approval record
type ApprovalRecordResponse struct {
	ID           string          `json:"id"`
	ClientID     string          `json:"client_id"`
	EngagementID string          `json:"engagement_id"`
	Description  string          `json:"description"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Currency     string          `json:"currency"`
	Reason       string          `json:"reason"`
	ApprovedBy   string          `json:"approved_by"`
	ApprovedAt   time.Time       `json:"approved_at"`
	Seal         SealResponse    `json:"seal"`
}

// ToApprovalRecordResponse converts an approval record to its response
func ToApprovalRecordResponse(r *ledger.ApprovalRecord) ApprovalRecordResponse {
	return ApprovalRecordResponse{
		ID:           r.ID.String(),
		ClientID:     r.ClientID,
		EngagementID: r.EngagementID,
		Description:  r.Description,
		Quantity:     r.Quantity,
		UnitPrice:    r.UnitPrice,
		Currency:     r.Currency,
		Reason:       r.Reason,
		ApprovedBy:   r.ApprovedBy,
		ApprovedAt:   r.ApprovedAt,
		Seal:         toSealResponse(r.Seal),
	}
}

// QuoteResponse is a quote
type QuoteResponse struct {
	ID           string          `json:"id"`
	ClientID     string          `json:"client_id"`
	EngagementID string          `json:"engagement_id"`
	Currency     string          `json:"currency"`
	Snapshot     json.RawMessage `json:"snapshot"`
	Status       string          `json:"status"`
	CreatedBy    string          `json:"created_by"`
	IssuedBy     string          `json:"issued_by,omitempty"`
	IssuedAt     *time.Time      `json:"issued_at,omitempty"`
	Version      int             `json:"version"`
	Seal         SealResponse    `json:"seal"`
}

// ToQuoteResponse converts a quote to its response
func ToQuoteResponse(q *ledger.Quote) QuoteResponse {
	return QuoteResponse{
		ID:           q.ID.String(),
		ClientID:     q.ClientID,
		EngagementID: q.EngagementID,
		Currency:     q.Currency,
		Snapshot:     q.Snapshot,
		Status:       string(q.Status),
		CreatedBy:    q.CreatedBy,
		IssuedBy:     q.IssuedBy,
		IssuedAt:     q.IssuedAt,
		Version:      q.Version,
		Seal:         toSealResponse(q.Seal),
	}
}

// AcceptanceResponse is an acceptance
type AcceptanceResponse struct {
	ID         string       `json:"id"`
	QuoteID    string       `json:"quote_id"`
	ClientID   string       `json:"client_id"`
	AcceptedBy string       `json:"accepted_by"`
	AcceptedAt time.Time    `json:"accepted_at"`
	Seal       SealResponse `json:"seal"`
}

// ToAcceptanceResponse converts an acceptance to its response
func ToAcceptanceResponse(a *ledger.Acceptance) AcceptanceResponse {
	return AcceptanceResponse{
		ID:         a.ID.String(),
		QuoteID:    a.QuoteID.String(),
		ClientID:   a.ClientID,
		AcceptedBy: a.AcceptedBy,
		AcceptedAt: a.AcceptedAt,
		Seal:       toSealResponse(a.Seal),
	}
}

// OverrideResponse is the audit trail of an applied override
type OverrideResponse struct {
	Justification  string          `json:"justification"`
	ApprovedBy     string          `json:"approved_by"`
	PayloadAmount  decimal.Decimal `json:"payload_amount"`
	OverrideAmount decimal.Decimal `json:"override_amount"`
}

// InvoiceLineResponse is one invoice line
type InvoiceLineResponse struct {
	ID          string            `json:"id"`
	Position    int               `json:"position"`
	TriggerKind string            `json:"trigger_kind"`
	TriggerID   string            `json:"trigger_id"`
	Description string            `json:"description"`
	Quantity    decimal.Decimal   `json:"quantity"`
	UnitPrice   decimal.Decimal   `json:"unit_price"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency"`
	ApprovedBy  string            `json:"approved_by"`
	ApprovedAt  time.Time         `json:"approved_at"`
	Override    *OverrideResponse `json:"override,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Seal        SealResponse      `json:"seal"`
}

// ToInvoiceLineResponse converts a line to its response
func ToInvoiceLineResponse(l *ledger.InvoiceLine) InvoiceLineResponse {
	resp := InvoiceLineResponse{
		ID:          l.ID.String(),
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
		Seal:        toSealResponse(l.Seal),
	}
	if l.Override != nil {
		resp.Override = &OverrideResponse{
			Justification:  l.Override.Justification,
			ApprovedBy:     l.Override.ApprovedBy,
			PayloadAmount:  l.Override.PayloadAmount,
			OverrideAmount: l.Override.OverrideAmount,
		}
	}
	return resp
}

// InvoiceResponse is an invoice with its ordered lines
type InvoiceResponse struct {
	ID           string                `json:"id"`
	ClientID     string                `json:"client_id"`
	AcceptanceID string                `json:"acceptance_id"`
	Currency     string                `json:"currency"`
	Status       string                `json:"status"`
	OpenedBy     string                `json:"opened_by"`
	FinalizedBy  string                `json:"finalized_by,omitempty"`
	FinalizedAt  *time.Time            `json:"finalized_at,omitempty"`
	Total        decimal.Decimal       `json:"total"`
	Lines        []InvoiceLineResponse `json:"lines"`
	Version      int                   `json:"version"`
	CreatedAt    time.Time             `json:"created_at"`
	Seal         SealResponse          `json:"seal"`
}

// ToInvoiceResponse converts an invoice to its response
func ToInvoiceResponse(inv *ledger.Invoice) InvoiceResponse {
	lines := make([]InvoiceLineResponse, 0, len(inv.Lines))
	for idx := range inv.Lines {
		lines = append(lines, ToInvoiceLineResponse(&inv.Lines[idx]))
	}
	return InvoiceResponse{
		ID:           inv.ID.String(),
		ClientID:     inv.ClientID,
		AcceptanceID: inv.AcceptanceID.String(),
		Currency:     inv.Currency,
		Status:       string(inv.Status),
		OpenedBy:     inv.OpenedBy,
		FinalizedBy:  inv.FinalizedBy,
		FinalizedAt:  inv.FinalizedAt,
		Total:        inv.Total(),
		Lines:        lines,
		Version:      inv.Version,
		CreatedAt:    inv.CreatedAt,
		Seal:         toSealResponse(inv.Seal),
	}
}

// SealVerification reports whether stored content still matches its seal
type SealVerification struct {
	ID         string             `json:"id"`
	Sealed     bool               `json:"sealed"`
	Valid      bool               `json:"valid"`
	StoredHash string             `json:"stored_hash,omitempty"`
	Lines      []SealVerification `json:"lines,omitempty"`
}

// AdjustmentResponse is one adjustment
type AdjustmentResponse struct {
	ID        string          `json:"id"`
	InvoiceID string          `json:"invoice_id"`
	LineID    *string         `json:"line_id,omitempty"`
	Delta     decimal.Decimal `json:"delta"`
	Currency  string          `json:"currency"`
	Reason    string          `json:"reason"`
	Actor     string          `json:"actor"`
	Sequence  int64           `json:"sequence"`
	PrevHash  string          `json:"prev_hash,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Seal      SealResponse    `json:"seal"`
}

// ToAdjustmentResponse converts an adjustment to its response
func ToAdjustmentResponse(a *ledger.Adjustment) AdjustmentResponse {
	resp := AdjustmentResponse{
		ID:        a.ID.String(),
		InvoiceID: a.InvoiceID.String(),
		Delta:     a.Delta,
		Currency:  a.Currency,
		Reason:    a.Reason,
		Actor:     a.Actor,
		Sequence:  a.Sequence,
		PrevHash:  a.PrevHash,
		CreatedAt: a.CreatedAt,
		Seal:      toSealResponse(a.Seal),
	}
	if a.LineID != nil {
		line := a.LineID.String()
		resp.LineID = &line
	}
	return resp
}

// AdjustmentListResponse lists the adjustments of an invoice with its totals
type AdjustmentListResponse struct {
	InvoiceID     string               `json:"invoice_id"`
	Currency      string               `json:"currency"`
	OriginalTotal decimal.Decimal      `json:"original_total"`
	NetTotal      decimal.Decimal      `json:"net_total"`
	Adjustments   []AdjustmentResponse `json:"adjustments"`
}

// ChainVerification reports the result of recomputing an adjustment chain
type ChainVerification struct {
	InvoiceID string `json:"invoice_id"`
	Length    int    `json:"length"`
	Valid     bool   `json:"valid"`
	Problem   string `json:"problem,omitempty"`
}

// ArtifactRefResponse is a bound document reference
type ArtifactRefResponse struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// BindingResponse is a binding event
type BindingResponse struct {
	ID           string              `json:"id"`
	Artifact     ArtifactRefResponse `json:"artifact"`
	ClientID     string              `json:"client_id"`
	Purpose      string              `json:"purpose"`
	Subject      string              `json:"subject,omitempty"`
	Actor        string              `json:"actor"`
	BoundAt      time.Time           `json:"bound_at"`
	DeliveryID   string              `json:"delivery_id,omitempty"`
	Supersedes   *string             `json:"supersedes,omitempty"`
	SupersededBy *string             `json:"superseded_by,omitempty"`
	Seal         SealResponse        `json:"seal"`
}

// ToBindingResponse converts a binding to its response
func ToBindingResponse(b *ledger.BindingEvent) BindingResponse {
	resp := BindingResponse{
		ID:         b.ID.String(),
		Artifact:   ArtifactRefResponse{Kind: string(b.Artifact.Kind), ID: b.Artifact.ID.String()},
		ClientID:   b.ClientID,
		Purpose:    string(b.Purpose),
		Subject:    b.Subject.String(),
		Actor:      b.Actor,
		BoundAt:    b.BoundAt,
		DeliveryID: b.DeliveryID,
		Seal:       toSealResponse(b.Seal),
	}
	if b.Supersedes != nil {
		s := b.Supersedes.String()
		resp.Supersedes = &s
	}
	if b.SupersededBy != nil {
		s := b.SupersededBy.String()
		resp.SupersededBy = &s
	}
	return resp
}

// FeedResult reports the binding stored for a feed delivery
type FeedResult struct {
	Binding     BindingResponse `json:"binding"`
	Redelivered bool            `json:"redelivered"`
}

// PortalArtifactResponse is a client-visible artifact
type PortalArtifactResponse struct {
	Type     string               `json:"type"`
	SourceID string               `json:"source_id"`
	ClientID string               `json:"client_id"`
	Document *ArtifactRefResponse `json:"document,omitempty"`
	IssuedAt time.Time            `json:"issued_at"`
	Currency string               `json:"currency,omitempty"`
	Total    *decimal.Decimal     `json:"total,omitempty"`
	NetTotal *decimal.Decimal     `json:"net_total,omitempty"`
}

// ToPortalArtifactResponse converts a portal artifact to its response
func ToPortalArtifactResponse(a *ledger.PortalArtifact) PortalArtifactResponse {
	resp := PortalArtifactResponse{
		Type:     string(a.Type),
		SourceID: a.SourceID.String(),
		ClientID: a.ClientID,
		IssuedAt: a.IssuedAt,
		Currency: a.Currency,
		Total:    a.Total,
		NetTotal: a.NetTotal,
	}
	if a.DocumentRef != nil {
		resp.Document = &ArtifactRefResponse{Kind: string(a.DocumentRef.Kind), ID: a.DocumentRef.ID.String()}
	}
	return resp
}

// LineageGraphResponse is the resolved lineage of one invoice
type LineageGraphResponse struct {
	InvoiceID   string                `json:"invoice_id"`
	Consistent  bool                  `json:"consistent"`
	Quote       *QuoteResponse        `json:"quote,omitempty"`
	Acceptance  *AcceptanceResponse   `json:"acceptance,omitempty"`
	Invoice     *InvoiceResponse      `json:"invoice,omitempty"`
	Triggers    []LineTriggerResponse `json:"triggers"`
	Adjustments []AdjustmentResponse  `json:"adjustments"`
	Bindings    []BindingResponse     `json:"bindings"`
	Edges       []ledger.Edge         `json:"edges"`
	Faults      []ledger.LineageFault `json:"faults"`
}

// LineTriggerResponse pairs a line with the trigger it was resolved to
type LineTriggerResponse struct {
	LineID      string    `json:"line_id"`
	TriggerKind string    `json:"trigger_kind"`
	TriggerID   string    `json:"trigger_id"`
	ClientID    string    `json:"client_id"`
	ApprovedBy  string    `json:"approved_by"`
	ApprovedAt  time.Time `json:"approved_at"`
}

// ToLineageGraphResponse converts a graph to its response
func ToLineageGraphResponse(g *ledger.LineageGraph) LineageGraphResponse {
	resp := LineageGraphResponse{
		InvoiceID:   g.InvoiceID.String(),
		Consistent:  g.Consistent(),
		Triggers:    make([]LineTriggerResponse, 0, len(g.Triggers)),
		Adjustments: make([]AdjustmentResponse, 0, len(g.Adjustments)),
		Bindings:    make([]BindingResponse, 0, len(g.Bindings)),
		Edges:       g.Edges,
		Faults:      g.Faults,
	}
	if resp.Edges == nil {
		resp.Edges = []ledger.Edge{}
	}
	if resp.Faults == nil {
		resp.Faults = []ledger.LineageFault{}
	}
	if g.Quote != nil {
		q := ToQuoteResponse(g.Quote)
		resp.Quote = &q
	}
	if g.Acceptance != nil {
		a := ToAcceptanceResponse(g.Acceptance)
		resp.Acceptance = &a
	}
	if g.Invoice != nil {
		inv := ToInvoiceResponse(g.Invoice)
		resp.Invoice = &inv
		for _, line := range g.Invoice.Lines {
			src, ok := g.Triggers[line.ID]
			if !ok {
				continue
			}
			resp.Triggers = append(resp.Triggers, LineTriggerResponse{
				LineID:      line.ID.String(),
				TriggerKind: string(src.Ref.Kind),
				TriggerID:   src.Ref.ID.String(),
				ClientID:    src.ClientID,
				ApprovedBy:  src.ApprovedBy,
				ApprovedAt:  src.ApprovedAt,
			})
		}
	}
	for idx := range g.Adjustments {
		resp.Adjustments = append(resp.Adjustments, ToAdjustmentResponse(&g.Adjustments[idx]))
	}
	for idx := range g.Bindings {
		resp.Bindings = append(resp.Bindings, ToBindingResponse(&g.Bindings[idx]))
	}
	return resp
}

// RebuildResult reports a lineage index rebuild
type RebuildResult struct {
	TenantID string `json:"tenant_id"`
	Edges    int    `json:"edges"`
}
