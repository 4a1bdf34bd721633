package ledger

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Overrides carries an explicitly approved deviation from payload pricing.
// The generator applies it only as encoded here.
type Overrides struct {
	Allowed       bool
	Justification string
	ApprovedBy    string
	Amount        *decimal.Decimal
}

// validate rejects incomplete or ambiguous override encodings
func (o *Overrides) validate() shared.ValidationErrors {
	var errs shared.ValidationErrors
	if o == nil {
		return nil
	}
	if o.Allowed {
		if strings.TrimSpace(o.Justification) == "" {
			errs = append(errs, shared.NewValidationError("overrides.justification", "", "required when override is allowed"))
		}
		if strings.TrimSpace(o.ApprovedBy) == "" {
			errs = append(errs, shared.NewValidationError("overrides.approved_by", "", "required when override is allowed"))
		}
	} else if o.Amount != nil {
		errs = append(errs, shared.NewValidationError("overrides.amount", o.Amount.String(), "amount present but override not allowed"))
	}
	if o.Amount != nil {
		if o.Amount.IsNegative() {
			errs = append(errs, shared.NewValidationError("overrides.amount", o.Amount.String(), "must not be negative"))
		}
		if ve := checkScale("overrides.amount", *o.Amount); ve != nil {
			errs = append(errs, ve)
		}
	}
	return errs
}

// Applicable reports whether the override carries an explicit, approved amount
func (o *Overrides) Applicable() bool {
	return o != nil && o.Allowed && o.Amount != nil
}

// BillableEvent is an approved trigger emitted by project work. It is sealed on ingestion.
type BillableEvent struct {
	ID           shared.ImmutableID
	TenantID     uuid.UUID
	ClientID     string
	EngagementID string
	ProjectID    string
	WorkItemRef  string
	EventType    EventType
	Payload      json.RawMessage
	ApprovedBy   string
	ApprovedAt   time.Time
	Overrides    *Overrides
	IngestedAt   time.Time
	Seal         shared.Seal
}

// NewBillableEventInput holds the fields of an inbound PM event
type NewBillableEventInput struct {
	ID           string
	ClientID     string
	EngagementID string
	ProjectID    string
	WorkItemRef  string
	EventType    string
	Payload      json.RawMessage
	ApprovedBy   string
	ApprovedAt   *time.Time
	Overrides    *Overrides
}

// NewBillableEvent validates an inbound event and returns it sealed
func NewBillableEvent(tenantID uuid.UUID, in NewBillableEventInput, now time.Time) (*BillableEvent, error) {
	var errs shared.ValidationErrors

	id, err := shared.ParseID(shared.KindBillableEvent, in.ID)
	if err != nil {
		errs = append(errs, err.(*shared.ValidationError))
	}
	if tenantID == uuid.Nil {
		errs = append(errs, shared.NewValidationError("tenant_id", "", "firm is required"))
	}
	if strings.TrimSpace(in.ClientID) == "" {
		errs = append(errs, shared.NewValidationError("client_id", "", "client anchor is required"))
	}
	if strings.TrimSpace(in.EngagementID) == "" && strings.TrimSpace(in.ProjectID) == "" {
		errs = append(errs, shared.NewValidationError("engagement_id", "", "engagement or project anchor is required"))
	}
	if strings.TrimSpace(in.ApprovedBy) == "" {
		errs = append(errs, shared.NewValidationError("approved_by", "", "approval is required"))
	}
	if in.ApprovedAt == nil || in.ApprovedAt.IsZero() {
		errs = append(errs, shared.NewValidationError("approved_at", "", "approval timestamp is required"))
	}
	eventType := EventType(in.EventType)
	if err := ValidatePayload(eventType, in.Payload); err != nil {
		if ve, ok := err.(*shared.ValidationError); ok {
			errs = append(errs, ve)
		} else {
			return nil, err
		}
	}
	errs = append(errs, in.Overrides.validate()...)
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	canonicalPayload, err := shared.Canonicalize(in.Payload)
	if err != nil {
		return nil, err
	}

	ev := &BillableEvent{
		ID:           id,
		TenantID:     tenantID,
		ClientID:     strings.TrimSpace(in.ClientID),
		EngagementID: strings.TrimSpace(in.EngagementID),
		ProjectID:    strings.TrimSpace(in.ProjectID),
		WorkItemRef:  strings.TrimSpace(in.WorkItemRef),
		EventType:    eventType,
		Payload:      canonicalPayload,
		ApprovedBy:   strings.TrimSpace(in.ApprovedBy),
		ApprovedAt:   NormalizeTime(*in.ApprovedAt),
		Overrides:    in.Overrides,
		IngestedAt:   NormalizeTime(now),
	}
	if err := shared.SealRecord(shared.KindBillableEvent, ev.ID, &ev.Seal, ev.CanonicalView(), ev.IngestedAt); err != nil {
		return nil, err
	}
	return ev, nil
}

type overridesView struct {
	Allowed       bool   `json:"allowed"`
	Justification string `json:"justification,omitempty"`
	ApprovedBy    string `json:"approved_by,omitempty"`
	Amount        string `json:"amount,omitempty"`
}

type billableEventView struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	ClientID     string          `json:"client_id"`
	EngagementID string          `json:"engagement_id,omitempty"`
	ProjectID    string          `json:"project_id,omitempty"`
	WorkItemRef  string          `json:"work_item_ref,omitempty"`
	EventType    string          `json:"event_type"`
	Payload      json.RawMessage `json:"payload"`
	ApprovedBy   string          `json:"approved_by"`
	ApprovedAt   string          `json:"approved_at"`
	Overrides    *overridesView  `json:"overrides,omitempty"`
}

// CanonicalView returns the hashed content of the event. Ingestion time is not content.
func (e *BillableEvent) CanonicalView() any {
	v := billableEventView{
		ID:           e.ID.String(),
		TenantID:     e.TenantID.String(),
		ClientID:     e.ClientID,
		EngagementID: e.EngagementID,
		ProjectID:    e.ProjectID,
		WorkItemRef:  e.WorkItemRef,
		EventType:    string(e.EventType),
		Payload:      e.Payload,
		ApprovedBy:   e.ApprovedBy,
		ApprovedAt:   formatTime(e.ApprovedAt),
	}
	if e.Overrides != nil {
		ov := &overridesView{
			Allowed:       e.Overrides.Allowed,
			Justification: e.Overrides.Justification,
			ApprovedBy:    e.Overrides.ApprovedBy,
		}
		if e.Overrides.Amount != nil {
			ov.Amount = e.Overrides.Amount.String()
		}
		v.Overrides = ov
	}
	return v
}

// SealState returns the seal of the event
func (e *BillableEvent) SealState() shared.Seal {
	return e.Seal
}

// Anchor returns the engagement, falling back to the project
func (e *BillableEvent) Anchor() string {
	if e.EngagementID != "" {
		return e.EngagementID
	}
	return e.ProjectID
}

// AsTrigger resolves the event into a line-generation source
func (e *BillableEvent) AsTrigger() (*TriggerSource, error) {
	basis, err := DecodeLineBasis(e.EventType, e.Payload)
	if err != nil {
		return nil, err
	}
	return &TriggerSource{
		Ref:        TriggerRef{Kind: TriggerKindBillableEvent, ID: e.ID},
		ClientID:   e.ClientID,
		Basis:      basis,
		ApprovedBy: e.ApprovedBy,
		ApprovedAt: e.ApprovedAt,
		Override:   e.Overrides,
	}, nil
}
