package ledger

import (
	"github.com/firmledger/backend/internal/domain/shared"
)

// AcceptanceEdges derives Quote -> Acceptance
func AcceptanceEdges(a *Acceptance) []Edge {
	return []Edge{
		NewEdge(a.TenantID, shared.KindQuote, a.QuoteID, EdgeAccepts, shared.KindAcceptance, a.ID),
	}
}

// InvoiceEdges derives Acceptance -> Invoice and, for each line, Invoice -> Line -> Trigger
func InvoiceEdges(inv *Invoice) []Edge {
	edges := make([]Edge, 0, 1+2*len(inv.Lines))
	edges = append(edges, NewEdge(inv.TenantID, shared.KindAcceptance, inv.AcceptanceID, EdgeJustifies, shared.KindInvoice, inv.ID))
	for idx := range inv.Lines {
		edges = append(edges, LineEdges(&inv.Lines[idx])...)
	}
	return edges
}

// LineEdges derives Invoice -> Line and Line -> Trigger
func LineEdges(line *InvoiceLine) []Edge {
	trigger := TriggerNode(line.Trigger)
	return []Edge{
		NewEdge(line.TenantID, shared.KindInvoice, line.InvoiceID, EdgeContains, shared.KindInvoiceLine, line.ID),
		NewEdge(line.TenantID, shared.KindInvoiceLine, line.ID, EdgeTriggeredBy, trigger.Kind, trigger.ID),
	}
}

// AdjustmentEdges derives Invoice -> Adjustment
func AdjustmentEdges(a *Adjustment) []Edge {
	return []Edge{
		NewEdge(a.TenantID, shared.KindInvoice, a.InvoiceID, EdgeAdjusts, shared.KindAdjustment, a.ID),
	}
}

// BindingEdges derives Subject -> Binding and, for a rebinding, Binding -> superseded Binding
func BindingEdges(b *BindingEvent) []Edge {
	var edges []Edge
	if !b.Subject.IsZero() {
		if kind, ok := shared.KindOf(b.Subject.String()); ok {
			edges = append(edges, NewEdge(b.TenantID, kind, b.Subject, EdgeBinds, shared.KindBindingEvent, b.ID))
		}
	}
	if b.Supersedes != nil {
		edges = append(edges, NewEdge(b.TenantID, shared.KindBindingEvent, b.ID, EdgeSupersedes, shared.KindBindingEvent, *b.Supersedes))
	}
	return edges
}
