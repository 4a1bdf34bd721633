package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/firmledger/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LineageService resolves the chain Quote -> Acceptance -> Invoice -> Line -> Trigger
// of an invoice from the lineage index and rebuilds that index from primary records
type LineageService struct {
	serviceBase
}

// NewLineageService creates a new LineageService
func NewLineageService(cfg ServiceConfig) *LineageService {
	return &LineageService{serviceBase: newServiceBase(cfg, "lineage")}
}

// Trace resolves the lineage of an invoice. When a resolution rule fails the partial
// graph is returned together with a *ledger.LineageInconsistencyError listing every fault.
func (s *LineageService) Trace(ctx context.Context, tenantID uuid.UUID, invoiceID string) (*LineageGraphResponse, error) {
	id, err := shared.ParseID(shared.KindInvoice, invoiceID)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "lineage", "trace",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID),
		telemetry.WithAttribute(telemetry.SpanAttrInvoiceID, id.String()))
	defer span.End()

	start := time.Now()
	var graph *ledger.LineageGraph
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		graph, err = s.resolve(ctx, repos, tenantID, id)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.metrics.RecordTraceDuration(ctx, tenantID, time.Since(start), graph.Consistent())
	telemetry.SetAttributes(span,
		telemetry.SpanAttrEdgeCount, len(graph.Edges),
		telemetry.SpanAttrFaultCount, len(graph.Faults))

	resp := ToLineageGraphResponse(graph)
	if graph.Consistent() {
		return &resp, nil
	}
	for _, f := range graph.Faults {
		s.logger.Error("Lineage fault",
			zap.String("tenant_id", tenantID.String()),
			zap.String("invoice_id", id.String()),
			zap.String("code", string(f.Code)),
			zap.String("subject", f.Subject.ID.String()),
			zap.String("detail", f.Detail))
		s.metrics.RecordLineageFault(ctx, tenantID, string(f.Code))
	}
	return &resp, ledger.NewLineageInconsistencyError(graph)
}

func (s *LineageService) resolve(ctx context.Context, repos TransactionalRepositories, tenantID uuid.UUID, id shared.ImmutableID) (*ledger.LineageGraph, error) {
	inv, err := repos.Invoices().FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	graph := &ledger.LineageGraph{
		InvoiceID: inv.ID,
		Invoice:   inv,
		Triggers:  make(map[shared.ImmutableID]ledger.TriggerSource, len(inv.Lines)),
	}
	invNode := ledger.NodeRef{Kind: shared.KindInvoice, ID: inv.ID}
	index := repos.Lineage()

	// Acceptance -> Invoice must resolve to exactly one acceptance
	justifies, err := index.EdgesTo(ctx, tenantID, inv.ID, ledger.EdgeJustifies)
	if err != nil {
		return nil, err
	}
	graph.Edges = append(graph.Edges, justifies...)
	switch len(justifies) {
	case 0:
		graph.AddFault(ledger.NewLineageFault(ledger.FaultMissingAcceptance, invNode,
			"invoice %s has no justifying acceptance", inv.ID))
	case 1:
		if from := justifies[0].From.ID; from != inv.AcceptanceID {
			graph.AddFault(ledger.NewLineageFault(ledger.FaultEdgeMismatch, invNode,
				"invoice %s is justified by %s in the index but by %s in its record", inv.ID, from, inv.AcceptanceID))
		}
		if err := s.resolveAcceptance(ctx, repos, graph, inv.AcceptanceID); err != nil {
			return nil, err
		}
	default:
		graph.AddFault(ledger.NewLineageFault(ledger.FaultMultipleAcceptances, invNode,
			"invoice %s is justified by %d acceptances", inv.ID, len(justifies)))
	}

	// Invoice -> Line and Invoice -> Adjustment
	children, err := index.EdgesFrom(ctx, tenantID, []shared.ImmutableID{inv.ID}, ledger.EdgeContains, ledger.EdgeAdjusts)
	if err != nil {
		return nil, err
	}
	graph.Edges = append(graph.Edges, children...)
	contained := make(map[shared.ImmutableID]bool, len(inv.Lines))
	for _, e := range children {
		if e.Type == ledger.EdgeContains {
			contained[e.To.ID] = true
		}
	}

	lineIDs := make([]shared.ImmutableID, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		lineIDs = append(lineIDs, line.ID)
		if !contained[line.ID] {
			graph.AddFault(ledger.NewLineageFault(ledger.FaultUnindexedLine,
				ledger.NodeRef{Kind: shared.KindInvoiceLine, ID: line.ID},
				"line %s of invoice %s is missing from the lineage index", line.ID, inv.ID))
		}
	}

	// Line -> Trigger must resolve to exactly one stored trigger record
	triggerEdges, err := index.EdgesFrom(ctx, tenantID, lineIDs, ledger.EdgeTriggeredBy)
	if err != nil {
		return nil, err
	}
	graph.Edges = append(graph.Edges, triggerEdges...)
	byLine := make(map[shared.ImmutableID][]ledger.Edge, len(lineIDs))
	for _, e := range triggerEdges {
		byLine[e.From.ID] = append(byLine[e.From.ID], e)
	}
	for _, line := range inv.Lines {
		if err := s.resolveLineTrigger(ctx, repos, graph, line, byLine[line.ID]); err != nil {
			return nil, err
		}
	}

	adjs, err := repos.Adjustments().ListByInvoice(ctx, tenantID, inv.ID)
	if err != nil {
		return nil, err
	}
	ledger.SortAdjustments(adjs)
	graph.Adjustments = adjs

	subjects := []shared.ImmutableID{inv.ID}
	if graph.Acceptance != nil {
		subjects = append(subjects, graph.Acceptance.ID)
	}
	if graph.Quote != nil {
		subjects = append(subjects, graph.Quote.ID)
	}
	bindingEdges, err := index.EdgesFrom(ctx, tenantID, subjects, ledger.EdgeBinds)
	if err != nil {
		return nil, err
	}
	graph.Edges = append(graph.Edges, bindingEdges...)
	bindings, err := repos.Bindings().ListBySubjects(ctx, tenantID, subjects)
	if err != nil {
		return nil, err
	}
	graph.Bindings = bindings
	if len(bindings) > 0 {
		ids := make([]shared.ImmutableID, 0, len(bindings))
		for _, b := range bindings {
			ids = append(ids, b.ID)
		}
		supersedes, err := index.EdgesFrom(ctx, tenantID, ids, ledger.EdgeSupersedes)
		if err != nil {
			return nil, err
		}
		graph.Edges = append(graph.Edges, supersedes...)
	}

	return graph, nil
}

func (s *LineageService) resolveAcceptance(ctx context.Context, repos TransactionalRepositories, graph *ledger.LineageGraph, acceptanceID shared.ImmutableID) error {
	tenantID := graph.Invoice.TenantID
	acc, err := repos.Acceptances().FindByID(ctx, tenantID, acceptanceID)
	if errors.Is(err, shared.ErrNotFound) {
		graph.AddFault(ledger.NewLineageFault(ledger.FaultOrphanedAcceptance,
			ledger.NodeRef{Kind: shared.KindAcceptance, ID: acceptanceID},
			"acceptance %s referenced by invoice %s does not exist", acceptanceID, graph.InvoiceID))
		return nil
	}
	if err != nil {
		return err
	}
	graph.Acceptance = acc

	accepts, err := repos.Lineage().EdgesTo(ctx, tenantID, acc.ID, ledger.EdgeAccepts)
	if err != nil {
		return err
	}
	graph.Edges = append(graph.Edges, accepts...)

	q, err := repos.Quotes().FindByID(ctx, tenantID, acc.QuoteID)
	if errors.Is(err, shared.ErrNotFound) {
		graph.AddFault(ledger.NewLineageFault(ledger.FaultOrphanedAcceptance,
			ledger.NodeRef{Kind: shared.KindAcceptance, ID: acc.ID},
			"quote %s accepted by %s does not exist", acc.QuoteID, acc.ID))
		return nil
	}
	if err != nil {
		return err
	}
	graph.Quote = q
	return nil
}

func (s *LineageService) resolveLineTrigger(ctx context.Context, repos TransactionalRepositories, graph *ledger.LineageGraph, line ledger.InvoiceLine, edges []ledger.Edge) error {
	lineNode := ledger.NodeRef{Kind: shared.KindInvoiceLine, ID: line.ID}
	switch len(edges) {
	case 0:
		graph.AddFault(ledger.NewLineageFault(ledger.FaultMissingTrigger, lineNode,
			"line %s has no trigger", line.ID))
		return nil
	case 1:
	default:
		graph.AddFault(ledger.NewLineageFault(ledger.FaultMultipleTriggers, lineNode,
			"line %s resolves to %d triggers", line.ID, len(edges)))
		return nil
	}

	ref, err := ledger.ParseTriggerRef(edges[0].To.ID.String())
	if err != nil {
		graph.AddFault(ledger.NewLineageFault(ledger.FaultOrphanedTrigger, edges[0].To,
			"line %s points at %s, which is not a trigger", line.ID, edges[0].To.ID))
		return nil
	}
	if ref != line.Trigger {
		graph.AddFault(ledger.NewLineageFault(ledger.FaultEdgeMismatch, lineNode,
			"line %s is triggered by %s in the index but by %s in its record", line.ID, ref.Key(), line.Trigger.Key()))
	}
	src, err := resolveTrigger(ctx, repos, graph.Invoice.TenantID, line.Trigger)
	if errors.Is(err, shared.ErrNotFound) {
		graph.AddFault(ledger.NewLineageFault(ledger.FaultOrphanedTrigger, ledger.TriggerNode(line.Trigger),
			"trigger %s of line %s does not exist", line.Trigger.Key(), line.ID))
		return nil
	}
	if err != nil {
		return err
	}
	graph.Triggers[line.ID] = *src
	return nil
}

// Rebuild derives every lineage edge of the firm from its primary records and
// swaps the index contents for them
func (s *LineageService) Rebuild(ctx context.Context, tenantID uuid.UUID) (*RebuildResult, error) {
	var edges []ledger.Edge
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		edges = edges[:0]
		acceptances, err := repos.Acceptances().ListByTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		for idx := range acceptances {
			edges = append(edges, ledger.AcceptanceEdges(&acceptances[idx])...)
		}
		invoices, err := repos.Invoices().ListByTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		for idx := range invoices {
			edges = append(edges, ledger.InvoiceEdges(&invoices[idx])...)
		}
		adjustments, err := repos.Adjustments().ListByTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		for idx := range adjustments {
			edges = append(edges, ledger.AdjustmentEdges(&adjustments[idx])...)
		}
		bindings, err := repos.Bindings().ListByTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		for idx := range bindings {
			edges = append(edges, ledger.BindingEdges(&bindings[idx])...)
		}
		return repos.Lineage().Replace(ctx, tenantID, edges)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Lineage index rebuilt",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("edges", len(edges)))
	return &RebuildResult{TenantID: tenantID.String(), Edges: len(edges)}, nil
}
