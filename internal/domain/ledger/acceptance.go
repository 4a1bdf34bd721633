package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/firmledger/backend/internal/domain/shared"
)

// Acceptance records the client's approval of one issued quote. At most one exists per quote.
type Acceptance struct {
	shared.BaseEntity
	QuoteID    shared.ImmutableID
	ClientID   string
	AcceptedBy string
	AcceptedAt time.Time
	Seal       shared.Seal
}

// NewAcceptance accepts an issued quote and seals the acceptance
func NewAcceptance(q *Quote, acceptedBy string, acceptedAt *time.Time, now time.Time) (*Acceptance, error) {
	if !q.IsIssued() {
		return nil, shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("quote %s must be issued before it can be accepted", q.ID))
	}
	var errs shared.ValidationErrors
	if strings.TrimSpace(acceptedBy) == "" {
		errs = append(errs, shared.NewValidationError("accepted_by", "", "required"))
	}
	if acceptedAt == nil || acceptedAt.IsZero() {
		errs = append(errs, shared.NewValidationError("accepted_at", "", "required"))
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	now = NormalizeTime(now)
	a := &Acceptance{
		BaseEntity: shared.NewBaseEntity(shared.KindAcceptance, q.TenantID, now),
		QuoteID:    q.ID,
		ClientID:   q.ClientID,
		AcceptedBy: strings.TrimSpace(acceptedBy),
		AcceptedAt: NormalizeTime(*acceptedAt),
	}
	if err := shared.SealRecord(shared.KindAcceptance, a.ID, &a.Seal, a.CanonicalView(), now); err != nil {
		return nil, err
	}
	return a, nil
}

// CanonicalView returns the hashed content of the acceptance
func (a *Acceptance) CanonicalView() any {
	return map[string]string{
		"id":          a.ID.String(),
		"tenant_id":   a.TenantID.String(),
		"quote_id":    a.QuoteID.String(),
		"client_id":   a.ClientID,
		"accepted_by": a.AcceptedBy,
		"accepted_at": formatTime(a.AcceptedAt),
	}
}

// SealState returns the seal of the acceptance
func (a *Acceptance) SealState() shared.Seal {
	return a.Seal
}
