package ledger

import (
	"strings"
	"time"

	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApprovalRecord is an internal approval that may justify one invoice line
// without an upstream billable event. It is sealed on creation.
type ApprovalRecord struct {
	shared.BaseEntity
	ClientID     string
	EngagementID string
	Description  string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	Currency     string
	Reason       string
	ApprovedBy   string
	ApprovedAt   time.Time
	Seal         shared.Seal
}

// NewApprovalRecordInput holds the fields of an internal approval
type NewApprovalRecordInput struct {
	ClientID     string
	EngagementID string
	Description  string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	Currency     string
	Reason       string
	ApprovedBy   string
	ApprovedAt   *time.Time
}

// NewApprovalRecord validates and seals an internal approval record
func NewApprovalRecord(tenantID uuid.UUID, in NewApprovalRecordInput, now time.Time) (*ApprovalRecord, error) {
	var errs shared.ValidationErrors
	if strings.TrimSpace(in.ClientID) == "" {
		errs = append(errs, shared.NewValidationError("client_id", "", "client anchor is required"))
	}
	if strings.TrimSpace(in.EngagementID) == "" {
		errs = append(errs, shared.NewValidationError("engagement_id", "", "engagement anchor is required"))
	}
	if strings.TrimSpace(in.Description) == "" {
		errs = append(errs, shared.NewValidationError("description", "", "required"))
	}
	if !in.Quantity.IsPositive() {
		errs = append(errs, shared.NewValidationError("quantity", in.Quantity.String(), "must be positive"))
	}
	if in.UnitPrice.IsNegative() {
		errs = append(errs, shared.NewValidationError("unit_price", in.UnitPrice.String(), "must not be negative"))
	}
	if ve := checkScale("quantity", in.Quantity); ve != nil {
		errs = append(errs, ve)
	}
	if ve := checkScale("unit_price", in.UnitPrice); ve != nil {
		errs = append(errs, ve)
	}
	if len(in.Currency) != 3 || strings.ToUpper(in.Currency) != in.Currency {
		errs = append(errs, shared.NewValidationError("currency", in.Currency, "must be an ISO-4217 code"))
	}
	if strings.TrimSpace(in.Reason) == "" {
		errs = append(errs, shared.NewValidationError("reason", "", "required"))
	}
	if strings.TrimSpace(in.ApprovedBy) == "" {
		errs = append(errs, shared.NewValidationError("approved_by", "", "approval is required"))
	}
	if in.ApprovedAt == nil || in.ApprovedAt.IsZero() {
		errs = append(errs, shared.NewValidationError("approved_at", "", "approval timestamp is required"))
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	now = NormalizeTime(now)
	rec := &ApprovalRecord{
		BaseEntity:   shared.NewBaseEntity(shared.KindApprovalRecord, tenantID, now),
		ClientID:     strings.TrimSpace(in.ClientID),
		EngagementID: strings.TrimSpace(in.EngagementID),
		Description:  strings.TrimSpace(in.Description),
		Quantity:     in.Quantity,
		UnitPrice:    in.UnitPrice,
		Currency:     in.Currency,
		Reason:       strings.TrimSpace(in.Reason),
		ApprovedBy:   strings.TrimSpace(in.ApprovedBy),
		ApprovedAt:   NormalizeTime(*in.ApprovedAt),
	}
	if err := shared.SealRecord(shared.KindApprovalRecord, rec.ID, &rec.Seal, rec.CanonicalView(), now); err != nil {
		return nil, err
	}
	return rec, nil
}

// CanonicalView returns the hashed content of the record
func (r *ApprovalRecord) CanonicalView() any {
	return map[string]string{
		"id":            r.ID.String(),
		"tenant_id":     r.TenantID.String(),
		"client_id":     r.ClientID,
		"engagement_id": r.EngagementID,
		"description":   r.Description,
		"quantity":      r.Quantity.String(),
		"unit_price":    r.UnitPrice.String(),
		"currency":      r.Currency,
		"reason":        r.Reason,
		"approved_by":   r.ApprovedBy,
		"approved_at":   formatTime(r.ApprovedAt),
	}
}

// SealState returns the seal of the record
func (r *ApprovalRecord) SealState() shared.Seal {
	return r.Seal
}

// AsTrigger resolves the record into a line-generation source
func (r *ApprovalRecord) AsTrigger() *TriggerSource {
	return &TriggerSource{
		Ref:      TriggerRef{Kind: TriggerKindApprovalRecord, ID: r.ID},
		ClientID: r.ClientID,
		Basis: LineBasis{
			Description: r.Description,
			Quantity:    r.Quantity,
			UnitPrice:   r.UnitPrice,
			Currency:    r.Currency,
		},
		ApprovedBy: r.ApprovedBy,
		ApprovedAt: r.ApprovedAt,
	}
}
