package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Adjustment is the only legal way to correct a financial outcome after issuance.
// It stores a delta and never touches the invoice or line it references.
// Adjustments of one invoice form a hash chain ordered by Sequence.
type Adjustment struct {
	shared.BaseEntity
	InvoiceID shared.ImmutableID
	LineID    *shared.ImmutableID
	Delta     decimal.Decimal
	Currency  string
	Reason    string
	Actor     string
	Sequence  int64
	PrevHash  string
	Seal      shared.Seal
}

// AppendAdjustmentInput holds the fields of a correction
type AppendAdjustmentInput struct {
	LineID *shared.ImmutableID
	Delta  decimal.Decimal
	Reason string
	Actor  string
}

// NewAdjustment builds the next adjustment of an invoice's chain.
// prev is the latest existing adjustment of the invoice, or nil.
// The creation time is kept strictly after prev's so audit replay order is monotonic.
func NewAdjustment(inv *Invoice, in AppendAdjustmentInput, prev *Adjustment, now time.Time) (*Adjustment, error) {
	var errs shared.ValidationErrors
	if in.Delta.IsZero() {
		errs = append(errs, shared.NewValidationError("delta", in.Delta.String(), "must be non-zero"))
	} else if ve := checkScale("delta", in.Delta); ve != nil {
		errs = append(errs, ve)
	}
	if strings.TrimSpace(in.Reason) == "" {
		errs = append(errs, shared.NewValidationError("reason", "", "required"))
	}
	if strings.TrimSpace(in.Actor) == "" {
		errs = append(errs, shared.NewValidationError("actor", "", "required"))
	}
	if in.LineID != nil {
		if _, ok := inv.Line(*in.LineID); !ok {
			errs = append(errs, shared.NewValidationError("line_id", in.LineID.String(),
				fmt.Sprintf("line does not belong to invoice %s", inv.ID)))
		}
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}
	if prev != nil && prev.InvoiceID != inv.ID {
		return nil, fmt.Errorf("adjustment chain: previous adjustment %s belongs to invoice %s", prev.ID, prev.InvoiceID)
	}

	createdAt := NormalizeTime(now)
	seq := int64(1)
	prevHash := ""
	if prev != nil {
		seq = prev.Sequence + 1
		prevHash = prev.Seal.ContentHash
		if !createdAt.After(prev.CreatedAt) {
			createdAt = prev.CreatedAt.Add(time.Microsecond)
		}
	}

	adj := &Adjustment{
		BaseEntity: shared.BaseEntity{
			ID:        shared.AllocateID(shared.KindAdjustment),
			TenantID:  inv.TenantID,
			CreatedAt: createdAt,
		},
		InvoiceID: inv.ID,
		LineID:    in.LineID,
		Delta:     in.Delta,
		Currency:  inv.Currency,
		Reason:    strings.TrimSpace(in.Reason),
		Actor:     strings.TrimSpace(in.Actor),
		Sequence:  seq,
		PrevHash:  prevHash,
	}
	if err := shared.SealRecord(shared.KindAdjustment, adj.ID, &adj.Seal, adj.CanonicalView(), createdAt); err != nil {
		return nil, err
	}
	return adj, nil
}

// CanonicalView returns the hashed content, which links to the previous entry's hash
func (a *Adjustment) CanonicalView() any {
	line := ""
	if a.LineID != nil {
		line = a.LineID.String()
	}
	return map[string]any{
		"id":         a.ID.String(),
		"tenant_id":  a.TenantID.String(),
		"invoice_id": a.InvoiceID.String(),
		"line_id":    line,
		"delta":      a.Delta.String(),
		"currency":   a.Currency,
		"reason":     a.Reason,
		"actor":      a.Actor,
		"sequence":   a.Sequence,
		"prev_hash":  a.PrevHash,
		"created_at": formatTime(a.CreatedAt),
	}
}

// SealState returns the seal of the adjustment
func (a *Adjustment) SealState() shared.Seal {
	return a.Seal
}

// NetTotal returns original plus the sum of the deltas.
// Summation is order independent, so contradictory adjustments are all counted.
func NetTotal(original decimal.Decimal, adjustments []Adjustment) decimal.Decimal {
	total := original
	for _, a := range adjustments {
		total = total.Add(a.Delta)
	}
	return total
}

// NetLineTotal returns a line amount plus the deltas that target that line
func NetLineTotal(line InvoiceLine, adjustments []Adjustment) decimal.Decimal {
	total := line.Amount
	for _, a := range adjustments {
		if a.LineID != nil && *a.LineID == line.ID {
			total = total.Add(a.Delta)
		}
	}
	return total
}

// SortAdjustments orders adjustments by sequence, the creation order
func SortAdjustments(adjustments []Adjustment) {
	sort.SliceStable(adjustments, func(i, j int) bool {
		return adjustments[i].Sequence < adjustments[j].Sequence
	})
}

// VerifyAdjustmentChain checks sequence continuity, monotonic timestamps and every link hash
func VerifyAdjustmentChain(adjustments []Adjustment) error {
	prevHash := ""
	var prevAt time.Time
	for idx := range adjustments {
		a := &adjustments[idx]
		if a.Sequence != int64(idx+1) {
			return fmt.Errorf("adjustment %s: sequence %d, expected %d", a.ID, a.Sequence, idx+1)
		}
		if a.PrevHash != prevHash {
			return fmt.Errorf("adjustment %s: previous hash mismatch", a.ID)
		}
		if idx > 0 && !a.CreatedAt.After(prevAt) {
			return fmt.Errorf("adjustment %s: creation time not after previous entry", a.ID)
		}
		ok, err := shared.VerifySeal(a)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("adjustment %s: content hash mismatch", a.ID)
		}
		prevHash = a.Seal.ContentHash
		prevAt = a.CreatedAt
	}
	return nil
}
