package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the lifecycle of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusFinalized InvoiceStatus = "FINALIZED"
)

// Invoice references the acceptance that justified it and holds ordered lines.
// Lines accumulate while the invoice is a draft; finalizing seals the invoice and all its lines.
type Invoice struct {
	shared.BaseAggregateRoot
	ClientID     string
	AcceptanceID shared.ImmutableID
	Currency     string
	Status       InvoiceStatus
	OpenedBy     string
	FinalizedBy  string
	FinalizedAt  *time.Time
	Lines        []InvoiceLine
	Seal         shared.Seal
}

// OpenInvoice creates a draft invoice justified by an acceptance
func OpenInvoice(acc *Acceptance, currency, actor string, now time.Time) (*Invoice, error) {
	if acc == nil {
		return nil, shared.NewValidationError("acceptance_id", "", "required")
	}
	var errs shared.ValidationErrors
	if len(currency) != 3 || strings.ToUpper(currency) != currency {
		errs = append(errs, shared.NewValidationError("currency", currency, "must be an ISO-4217 code"))
	}
	if strings.TrimSpace(actor) == "" {
		errs = append(errs, shared.NewValidationError("opened_by", "", "required"))
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(shared.KindInvoice, acc.TenantID, NormalizeTime(now)),
		ClientID:          acc.ClientID,
		AcceptanceID:      acc.ID,
		Currency:          currency,
		Status:            InvoiceStatusDraft,
		OpenedBy:          actor,
		Lines:             make([]InvoiceLine, 0),
	}
	inv.AddDomainEvent(NewInvoiceOpenedEvent(inv))
	return inv, nil
}

// IsDraft reports whether lines may still be added
func (i *Invoice) IsDraft() bool {
	return i.Status == InvoiceStatusDraft
}

// IsFinalized reports whether the invoice is sealed
func (i *Invoice) IsFinalized() bool {
	return i.Status == InvoiceStatusFinalized
}

// NextPosition returns the position of the next line
func (i *Invoice) NextPosition() int {
	return len(i.Lines) + 1
}

// AddLine prices a trigger into a new sealed line and attaches it to the draft invoice
func (i *Invoice) AddLine(src *TriggerSource, now time.Time) (*InvoiceLine, error) {
	if err := i.Seal.EnsureWritable(shared.KindInvoice, i.ID, "add line"); err != nil {
		return nil, err
	}
	if !i.IsDraft() {
		return nil, shared.NewImmutabilityViolation(shared.KindInvoice, i.ID, "add line")
	}
	if src.ClientID != i.ClientID {
		return nil, shared.NewValidationError("trigger", src.Ref.Key(),
			fmt.Sprintf("trigger belongs to client %s, invoice belongs to client %s", src.ClientID, i.ClientID))
	}
	if src.Basis.Currency != i.Currency {
		return nil, shared.NewValidationError("trigger", src.Ref.Key(),
			fmt.Sprintf("trigger currency %s does not match invoice currency %s", src.Basis.Currency, i.Currency))
	}
	for _, l := range i.Lines {
		if l.Trigger == src.Ref {
			return nil, NewDuplicateTriggerError(src.Ref, l.ID)
		}
	}

	line, err := newInvoiceLine(i, src, i.NextPosition(), now)
	if err != nil {
		return nil, err
	}
	i.Lines = append(i.Lines, *line)
	i.UpdatedAt = line.CreatedAt
	i.IncrementVersion()
	i.AddDomainEvent(NewInvoiceLineGeneratedEvent(i, line))
	return line, nil
}

// Finalize seals the invoice together with its lines
func (i *Invoice) Finalize(actor string, now time.Time) error {
	if err := i.Seal.EnsureWritable(shared.KindInvoice, i.ID, "finalize"); err != nil {
		return err
	}
	if strings.TrimSpace(actor) == "" {
		return shared.NewValidationError("finalized_by", "", "required")
	}
	if len(i.Lines) == 0 {
		return shared.NewValidationError("lines", i.ID.String(), "cannot finalize an invoice without lines")
	}
	now = NormalizeTime(now)
	i.Status = InvoiceStatusFinalized
	i.FinalizedBy = actor
	i.FinalizedAt = &now
	i.UpdatedAt = now
	if err := shared.SealRecord(shared.KindInvoice, i.ID, &i.Seal, i.CanonicalView(), now); err != nil {
		return err
	}
	i.IncrementVersion()
	i.AddDomainEvent(NewInvoiceFinalizedEvent(i))
	return nil
}

// Total returns the sum of the line amounts
func (i *Invoice) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range i.Lines {
		total = total.Add(l.Amount)
	}
	return total
}

// Line returns the line with the given id
func (i *Invoice) Line(id shared.ImmutableID) (*InvoiceLine, bool) {
	for idx := range i.Lines {
		if i.Lines[idx].ID == id {
			return &i.Lines[idx], true
		}
	}
	return nil, false
}

type invoiceView struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	ClientID     string     `json:"client_id"`
	AcceptanceID string     `json:"acceptance_id"`
	Currency     string     `json:"currency"`
	OpenedBy     string     `json:"opened_by"`
	FinalizedBy  string     `json:"finalized_by"`
	FinalizedAt  string     `json:"finalized_at"`
	Total        string     `json:"total"`
	Lines        []lineView `json:"lines"`
}

// CanonicalView returns the hashed content of the invoice and its ordered lines
func (i *Invoice) CanonicalView() any {
	lines := make([]lineView, 0, len(i.Lines))
	for idx := range i.Lines {
		lines = append(lines, i.Lines[idx].view())
	}
	return invoiceView{
		ID:           i.ID.String(),
		TenantID:     i.TenantID.String(),
		ClientID:     i.ClientID,
		AcceptanceID: i.AcceptanceID.String(),
		Currency:     i.Currency,
		OpenedBy:     i.OpenedBy,
		FinalizedBy:  i.FinalizedBy,
		FinalizedAt:  formatTimePtr(i.FinalizedAt),
		Total:        i.Total().String(),
		Lines:        lines,
	}
}

// SealState returns the seal of the invoice
func (i *Invoice) SealState() shared.Seal {
	return i.Seal
}

// AppliedOverride records an override the generator applied, as audit trail
type AppliedOverride struct {
	Justification  string
	ApprovedBy     string
	PayloadAmount  decimal.Decimal
	OverrideAmount decimal.Decimal
}

// InvoiceLine belongs to exactly one invoice and carries exactly one trigger reference
type InvoiceLine struct {
	ID          shared.ImmutableID
	TenantID    uuid.UUID
	InvoiceID   shared.ImmutableID
	Position    int
	Trigger     TriggerRef
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal
	Currency    string
	ApprovedBy  string
	ApprovedAt  time.Time
	Override    *AppliedOverride
	CreatedAt   time.Time
	Seal        shared.Seal
}

func newInvoiceLine(inv *Invoice, src *TriggerSource, position int, now time.Time) (*InvoiceLine, error) {
	now = NormalizeTime(now)
	line := &InvoiceLine{
		ID:          shared.AllocateID(shared.KindInvoiceLine),
		TenantID:    inv.TenantID,
		InvoiceID:   inv.ID,
		Position:    position,
		Trigger:     src.Ref,
		Description: src.Basis.Description,
		Quantity:    src.Basis.Quantity,
		UnitPrice:   src.Basis.UnitPrice,
		Amount:      src.Basis.Amount(),
		Currency:    src.Basis.Currency,
		ApprovedBy:  src.ApprovedBy,
		ApprovedAt:  src.ApprovedAt,
		CreatedAt:   now,
	}
	if src.Override.Applicable() {
		line.Override = &AppliedOverride{
			Justification:  src.Override.Justification,
			ApprovedBy:     src.Override.ApprovedBy,
			PayloadAmount:  line.Amount,
			OverrideAmount: *src.Override.Amount,
		}
		line.Amount = *src.Override.Amount
	}
	if err := shared.SealRecord(shared.KindInvoiceLine, line.ID, &line.Seal, line.view(), now); err != nil {
		return nil, err
	}
	return line, nil
}

type lineView struct {
	ID                    string `json:"id"`
	InvoiceID             string `json:"invoice_id"`
	Position              int    `json:"position"`
	TriggerKind           string `json:"trigger_kind"`
	TriggerID             string `json:"trigger_id"`
	Description           string `json:"description"`
	Quantity              string `json:"quantity"`
	UnitPrice             string `json:"unit_price"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	ApprovedBy            string `json:"approved_by"`
	ApprovedAt            string `json:"approved_at"`
	OverrideJustification string `json:"override_justification,omitempty"`
	OverrideApprovedBy    string `json:"override_approved_by,omitempty"`
	PayloadAmount         string `json:"payload_amount,omitempty"`
}

func (l *InvoiceLine) view() lineView {
	v := lineView{
		ID:          l.ID.String(),
		InvoiceID:   l.InvoiceID.String(),
		Position:    l.Position,
		TriggerKind: string(l.Trigger.Kind),
		TriggerID:   l.Trigger.ID.String(),
		Description: l.Description,
		Quantity:    l.Quantity.String(),
		UnitPrice:   l.UnitPrice.String(),
		Amount:      l.Amount.String(),
		Currency:    l.Currency,
		ApprovedBy:  l.ApprovedBy,
		ApprovedAt:  formatTime(l.ApprovedAt),
	}
	if l.Override != nil {
		v.OverrideJustification = l.Override.Justification
		v.OverrideApprovedBy = l.Override.ApprovedBy
		v.PayloadAmount = l.Override.PayloadAmount.String()
	}
	return v
}

// CanonicalView returns the hashed content of the line
func (l *InvoiceLine) CanonicalView() any {
	return l.view()
}

// SealState returns the seal of the line
func (l *InvoiceLine) SealState() shared.Seal {
	return l.Seal
}
