package ledger

import (
	"fmt"

	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// EdgeType names a directed relation of the lineage index
type EdgeType string

const (
	EdgeAccepts     EdgeType = "accepts"      // Quote -> Acceptance
	EdgeJustifies   EdgeType = "justifies"    // Acceptance -> Invoice
	EdgeContains    EdgeType = "contains"     // Invoice -> InvoiceLine
	EdgeTriggeredBy EdgeType = "triggered_by" // InvoiceLine -> BillableEvent | ApprovalRecord
	EdgeAdjusts     EdgeType = "adjusts"      // Invoice -> Adjustment
	EdgeBinds       EdgeType = "binds"        // Quote | Acceptance | Invoice -> BindingEvent
	EdgeSupersedes  EdgeType = "supersedes"   // BindingEvent -> BindingEvent
)

// NodeRef identifies a lineage node
type NodeRef struct {
	Kind shared.IDKind      `json:"kind"`
	ID   shared.ImmutableID `json:"id"`
}

// Edge is one derived lineage relation. Edges own no primary data and can be rebuilt.
type Edge struct {
	TenantID uuid.UUID `json:"-"`
	From     NodeRef   `json:"from"`
	To       NodeRef   `json:"to"`
	Type     EdgeType  `json:"type"`
}

// NewEdge builds an edge between two records
func NewEdge(tenantID uuid.UUID, fromKind shared.IDKind, fromID shared.ImmutableID, edgeType EdgeType, toKind shared.IDKind, toID shared.ImmutableID) Edge {
	return Edge{
		TenantID: tenantID,
		From:     NodeRef{Kind: fromKind, ID: fromID},
		To:       NodeRef{Kind: toKind, ID: toID},
		Type:     edgeType,
	}
}

// TriggerNode maps a trigger reference to its lineage node
func TriggerNode(ref TriggerRef) NodeRef {
	kind, _ := ref.Kind.IDKind()
	return NodeRef{Kind: kind, ID: ref.ID}
}

// FaultCode classifies a lineage resolution failure
type FaultCode string

const (
	FaultMissingAcceptance   FaultCode = "MISSING_ACCEPTANCE"
	FaultMultipleAcceptances FaultCode = "MULTIPLE_ACCEPTANCES"
	FaultOrphanedAcceptance  FaultCode = "ORPHANED_ACCEPTANCE"
	FaultUnindexedLine       FaultCode = "UNINDEXED_LINE"
	FaultMissingTrigger      FaultCode = "MISSING_TRIGGER"
	FaultMultipleTriggers    FaultCode = "MULTIPLE_TRIGGERS"
	FaultOrphanedTrigger     FaultCode = "ORPHANED_TRIGGER"
	// FaultEdgeMismatch marks an index edge that names a different record than the
	// sealed record it was derived from
	FaultEdgeMismatch FaultCode = "EDGE_MISMATCH"
)

// LineageFault is one resolution failure, reported with the node it concerns
type LineageFault struct {
	Code    FaultCode `json:"code"`
	Subject NodeRef   `json:"subject"`
	Detail  string    `json:"detail"`
}

// NewLineageFault builds a fault
func NewLineageFault(code FaultCode, subject NodeRef, format string, args ...any) LineageFault {
	return LineageFault{Code: code, Subject: subject, Detail: fmt.Sprintf(format, args...)}
}

// LineageGraph is the ancestor and descendant chain of one invoice
type LineageGraph struct {
	InvoiceID   shared.ImmutableID                   `json:"invoice_id"`
	Quote       *Quote                               `json:"-"`
	Acceptance  *Acceptance                          `json:"-"`
	Invoice     *Invoice                             `json:"-"`
	Triggers    map[shared.ImmutableID]TriggerSource `json:"-"`
	Adjustments []Adjustment                         `json:"-"`
	Bindings    []BindingEvent                       `json:"-"`
	Edges       []Edge                               `json:"edges"`
	Faults      []LineageFault                       `json:"faults"`
}

// Consistent reports whether every resolution rule held
func (g *LineageGraph) Consistent() bool {
	return len(g.Faults) == 0
}

// AddFault records a fault
func (g *LineageGraph) AddFault(f LineageFault) {
	g.Faults = append(g.Faults, f)
}

// EdgesOfType returns the edges of one type
func (g *LineageGraph) EdgesOfType(t EdgeType) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
