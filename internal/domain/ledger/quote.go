package ledger

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// QuoteStatus represents the lifecycle of a quote
type QuoteStatus string

const (
	QuoteStatusDraft  QuoteStatus = "DRAFT"
	QuoteStatusIssued QuoteStatus = "ISSUED"
)

// Quote is created before acceptance and frozen at issuance
type Quote struct {
	shared.BaseAggregateRoot
	ClientID     string
	EngagementID string
	Currency     string
	Snapshot     json.RawMessage
	Status       QuoteStatus
	CreatedBy    string
	IssuedBy     string
	IssuedAt     *time.Time
	Seal         shared.Seal
}

// NewQuote creates a draft quote
func NewQuote(tenantID uuid.UUID, clientID, engagementID, currency string, snapshot json.RawMessage, createdBy string, now time.Time) (*Quote, error) {
	var errs shared.ValidationErrors
	if strings.TrimSpace(clientID) == "" {
		errs = append(errs, shared.NewValidationError("client_id", "", "required"))
	}
	if strings.TrimSpace(engagementID) == "" {
		errs = append(errs, shared.NewValidationError("engagement_id", "", "required"))
	}
	if len(currency) != 3 {
		errs = append(errs, shared.NewValidationError("currency", currency, "must be an ISO-4217 code"))
	}
	if strings.TrimSpace(createdBy) == "" {
		errs = append(errs, shared.NewValidationError("created_by", "", "required"))
	}
	canonical, err := canonicalSnapshot(snapshot)
	if err != nil {
		errs = append(errs, err)
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	q := &Quote{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(shared.KindQuote, tenantID, NormalizeTime(now)),
		ClientID:          strings.TrimSpace(clientID),
		EngagementID:      strings.TrimSpace(engagementID),
		Currency:          currency,
		Snapshot:          canonical,
		Status:            QuoteStatusDraft,
		CreatedBy:         createdBy,
	}
	return q, nil
}

func canonicalSnapshot(snapshot json.RawMessage) (json.RawMessage, *shared.ValidationError) {
	var decoded map[string]any
	if len(snapshot) == 0 || json.Unmarshal(snapshot, &decoded) != nil {
		return nil, shared.NewValidationError("snapshot", "", "must be a JSON object")
	}
	out, err := shared.Canonicalize(snapshot)
	if err != nil {
		return nil, shared.NewValidationError("snapshot", "", "cannot be canonicalized")
	}
	return out, nil
}

// Revise replaces the content snapshot of a draft quote
func (q *Quote) Revise(snapshot json.RawMessage, now time.Time) error {
	if err := q.Seal.EnsureWritable(shared.KindQuote, q.ID, "revise"); err != nil {
		return err
	}
	canonical, verr := canonicalSnapshot(snapshot)
	if verr != nil {
		return verr
	}
	q.Snapshot = canonical
	q.UpdatedAt = NormalizeTime(now)
	q.IncrementVersion()
	return nil
}

// Issue freezes the quote. Its snapshot can never change afterwards.
func (q *Quote) Issue(actor string, now time.Time) error {
	if strings.TrimSpace(actor) == "" {
		return shared.NewValidationError("issued_by", "", "required")
	}
	if err := q.Seal.EnsureWritable(shared.KindQuote, q.ID, "issue"); err != nil {
		return err
	}
	now = NormalizeTime(now)
	q.Status = QuoteStatusIssued
	q.IssuedBy = actor
	q.IssuedAt = &now
	q.UpdatedAt = now
	if err := shared.SealRecord(shared.KindQuote, q.ID, &q.Seal, q.CanonicalView(), now); err != nil {
		return err
	}
	q.IncrementVersion()
	q.AddDomainEvent(NewQuoteIssuedEvent(q))
	return nil
}

// IsIssued reports whether the quote has been frozen
func (q *Quote) IsIssued() bool {
	return q.Status == QuoteStatusIssued
}

type quoteView struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	ClientID     string          `json:"client_id"`
	EngagementID string          `json:"engagement_id"`
	Currency     string          `json:"currency"`
	Snapshot     json.RawMessage `json:"snapshot"`
	IssuedBy     string          `json:"issued_by"`
	IssuedAt     string          `json:"issued_at"`
}

// CanonicalView returns the hashed content of the quote
func (q *Quote) CanonicalView() any {
	return quoteView{
		ID:           q.ID.String(),
		TenantID:     q.TenantID.String(),
		ClientID:     q.ClientID,
		EngagementID: q.EngagementID,
		Currency:     q.Currency,
		Snapshot:     q.Snapshot,
		IssuedBy:     q.IssuedBy,
		IssuedAt:     formatTimePtr(q.IssuedAt),
	}
}

// SealState returns the seal of the quote
func (q *Quote) SealState() shared.Seal {
	return q.Seal
}
