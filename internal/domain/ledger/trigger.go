package ledger

import (
	"fmt"
	"time"

	"github.com/firmledger/backend/internal/domain/shared"
)

// TriggerKind is the closed set of records that may justify an invoice line
type TriggerKind string

const (
	TriggerKindBillableEvent  TriggerKind = "billable_event"
	TriggerKindApprovalRecord TriggerKind = "approval_record"
)

// IDKind returns the identifier kind of the trigger's record
func (k TriggerKind) IDKind() (shared.IDKind, bool) {
	switch k {
	case TriggerKindBillableEvent:
		return shared.KindBillableEvent, true
	case TriggerKindApprovalRecord:
		return shared.KindApprovalRecord, true
	}
	return "", false
}

// TriggerRef points from an invoice line back to exactly one trigger record.
// It is set when the line is created and never changes.
type TriggerRef struct {
	Kind TriggerKind
	ID   shared.ImmutableID
}

// NewTriggerRef validates a trigger reference
func NewTriggerRef(kind TriggerKind, raw string) (TriggerRef, error) {
	idKind, ok := kind.IDKind()
	if !ok {
		return TriggerRef{}, shared.NewValidationError("trigger.kind", string(kind), "unknown trigger kind")
	}
	id, err := shared.ParseID(idKind, raw)
	if err != nil {
		return TriggerRef{}, err
	}
	return TriggerRef{Kind: kind, ID: id}, nil
}

// ParseTriggerRef infers the trigger kind from the identifier prefix
func ParseTriggerRef(raw string) (TriggerRef, error) {
	kind, ok := shared.KindOf(raw)
	switch {
	case ok && kind == shared.KindBillableEvent:
		return TriggerRef{Kind: TriggerKindBillableEvent, ID: shared.ImmutableID(raw)}, nil
	case ok && kind == shared.KindApprovalRecord:
		return TriggerRef{Kind: TriggerKindApprovalRecord, ID: shared.ImmutableID(raw)}, nil
	}
	return TriggerRef{}, shared.NewValidationError("trigger", raw, "not a billable event or approval record id")
}

// Key is the globally unique key of the trigger
func (r TriggerRef) Key() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// String implements fmt.Stringer
func (r TriggerRef) String() string {
	return r.Key()
}

// TriggerSource is a resolved trigger carrying what a line is priced and audited from
type TriggerSource struct {
	Ref        TriggerRef
	ClientID   string
	Basis      LineBasis
	ApprovedBy string
	ApprovedAt time.Time
	Override   *Overrides
}
