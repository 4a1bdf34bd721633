package ledger

import (
	"fmt"

	"github.com/firmledger/backend/internal/domain/shared"
)

// DuplicateTriggerError is returned when a trigger already backs an invoice line.
// Retrying with a different trigger is safe.
type DuplicateTriggerError struct {
	*shared.DomainError
	Trigger        TriggerRef
	ExistingLineID shared.ImmutableID
}

// Unwrap exposes the embedded domain error
func (e *DuplicateTriggerError) Unwrap() error {
	return e.DomainError
}

// NewDuplicateTriggerError builds a DuplicateTriggerError. existing may be empty when
// the conflicting line was committed by a concurrent writer.
func NewDuplicateTriggerError(trigger TriggerRef, existing shared.ImmutableID) *DuplicateTriggerError {
	msg := fmt.Sprintf("trigger %s is already referenced by an invoice line", trigger.Key())
	if !existing.IsZero() {
		msg = fmt.Sprintf("trigger %s is already referenced by invoice line %s", trigger.Key(), existing)
	}
	return &DuplicateTriggerError{
		DomainError:    shared.NewDomainError(shared.CodeDuplicateTrigger, msg),
		Trigger:        trigger,
		ExistingLineID: existing,
	}
}

// LineageInconsistencyError carries the faults found while resolving an invoice's lineage,
// together with the partial graph
type LineageInconsistencyError struct {
	*shared.DomainError
	InvoiceID shared.ImmutableID
	Graph     *LineageGraph
}

// Unwrap exposes the embedded domain error
func (e *LineageInconsistencyError) Unwrap() error {
	return e.DomainError
}

// NewLineageInconsistencyError builds the error from a graph with faults
func NewLineageInconsistencyError(g *LineageGraph) *LineageInconsistencyError {
	msg := fmt.Sprintf("lineage of invoice %s has %d fault(s)", g.InvoiceID, len(g.Faults))
	if len(g.Faults) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, g.Faults[0].Detail)
	}
	return &LineageInconsistencyError{
		DomainError: shared.NewDomainError(shared.CodeLineageInconsistency, msg),
		InvoiceID:   g.InvoiceID,
		Graph:       g,
	}
}
