package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu       sync.Mutex
	events   []shared.DomainEvent
	handlers []shared.EventHandler
}

func NewMockEventPublisher(handlers ...shared.EventHandler) *MockEventPublisher {
	return &MockEventPublisher{
		events:   make([]shared.DomainEvent, 0),
		handlers: handlers,
	}
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	m.mu.Lock()
	m.events = append(m.events, events...)
	handlers := m.handlers
	m.mu.Unlock()
	for _, e := range events {
		for _, h := range handlers {
			for _, t := range h.EventTypes() {
				if t == e.EventType() {
					_ = h.Handle(ctx, e)
				}
			}
		}
	}
	return nil
}

func (m *MockEventPublisher) GetEventsByType(eventType string) []shared.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]shared.DomainEvent, 0)
	for _, e := range m.events {
		if e.EventType() == eventType {
			result = append(result, e)
		}
	}
	return result
}

// memStore is an in-memory ledger honoring the conditional write contracts of the
// repository ports
type memStore struct {
	mu          sync.Mutex
	events      map[string]ledger.BillableEvent
	approvals   map[string]ledger.ApprovalRecord
	quotes      map[string]ledger.Quote
	acceptances map[string]ledger.Acceptance
	invoices    map[string]ledger.Invoice
	adjustments []ledger.Adjustment
	bindings    map[string]ledger.BindingEvent
	edges       []ledger.Edge

	// appendConflicts makes the next n adjustment appends lose a sequence race
	appendConflicts int
	// lineConflicts makes the next n line inserts lose the invoice version race.
	// beforeLineConflict runs once, unlocked, as the concurrent winner.
	lineConflicts      int
	beforeLineConflict func()
}

func newMemStore() *memStore {
	return &memStore{
		events:      make(map[string]ledger.BillableEvent),
		approvals:   make(map[string]ledger.ApprovalRecord),
		quotes:      make(map[string]ledger.Quote),
		acceptances: make(map[string]ledger.Acceptance),
		invoices:    make(map[string]ledger.Invoice),
		bindings:    make(map[string]ledger.BindingEvent),
	}
}

func key(tenantID uuid.UUID, id shared.ImmutableID) string {
	return tenantID.String() + "|" + id.String()
}

func (s *memStore) Events() ledger.BillableEventRepository     { return memEvents{s} }
func (s *memStore) Approvals() ledger.ApprovalRecordRepository { return memApprovals{s} }
func (s *memStore) Quotes() ledger.QuoteRepository             { return memQuotes{s} }
func (s *memStore) Acceptances() ledger.AcceptanceRepository   { return memAcceptances{s} }
func (s *memStore) Invoices() ledger.InvoiceRepository         { return memInvoices{s} }
func (s *memStore) Adjustments() ledger.AdjustmentRepository   { return memAdjustments{s} }
func (s *memStore) Bindings() ledger.BindingRepository         { return memBindings{s} }
func (s *memStore) Lineage() ledger.LineageIndex               { return memLineage{s} }
func (s *memStore) Portal() ledger.PortalSource                { return memPortal{s} }
func (s *memStore) Scope() TransactionScope                    { return NewNoOpTransactionScope(s) }

func (s *memStore) edgeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.edges)
}

func (s *memStore) addRawEdges(edges ...ledger.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = append(s.edges, edges...)
}

func (s *memStore) deleteEvent(tenantID uuid.UUID, id shared.ImmutableID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, key(tenantID, id))
}

func (s *memStore) filterEdges(drop func(e ledger.Edge) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.edges[:0]
	for _, e := range s.edges {
		if !drop(e) {
			kept = append(kept, e)
		}
	}
	s.edges = kept
}

func copyInvoice(inv ledger.Invoice) ledger.Invoice {
	lines := make([]ledger.InvoiceLine, len(inv.Lines))
	copy(lines, inv.Lines)
	inv.Lines = lines
	inv.ClearDomainEvents()
	return inv
}

type memEvents struct{ s *memStore }

func (r memEvents) FindByID(_ context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*ledger.BillableEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ev, ok := r.s.events[key(tenantID, id)]
	if !ok {
		return nil, shared.NotFound(shared.KindBillableEvent, id)
	}
	return &ev, nil
}

func (r memEvents) InsertIfAbsent(_ context.Context, event *ledger.BillableEvent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := key(event.TenantID, event.ID)
	if _, ok := r.s.events[k]; ok {
		return false, nil
	}
	r.s.events[k] = *event
	return true, nil
}

type memApprovals struct{ s *memStore }

func (r memApprovals) FindByID(_ context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*ledger.ApprovalRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.approvals[key(tenantID, id)]
	if !ok {
		return nil, shared.NotFound(shared.KindApprovalRecord, id)
	}
	return &rec, nil
}

func (r memApprovals) Create(_ context.Context, record *ledger.ApprovalRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.approvals[key(record.TenantID, record.ID)] = *record
	return nil
}

type memQuotes struct{ s *memStore }

func (r memQuotes) FindByID(_ context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*ledger.Quote, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	q, ok := r.s.quotes[key(tenantID, id)]
	if !ok {
		return nil, shared.NotFound(shared.KindQuote, id)
	}
	q.ClearDomainEvents()
	return &q, nil
}

func (r memQuotes) Create(_ context.Context, quote *ledger.Quote) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.quotes[key(quote.TenantID, quote.ID)] = *quote
	return nil
}

func (r memQuotes) Update(_ context.Context, quote *ledger.Quote, expectedVersion int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := key(quote.TenantID, quote.ID)
	stored, ok := r.s.quotes[k]
	if !ok {
		return shared.NotFound(shared.KindQuote, quote.ID)
	}
	if stored.Seal.IsSealed() {
		return shared.NewImmutabilityViolation(shared.KindQuote, quote.ID, "update")
	}
	if stored.Version != expectedVersion {
		return shared.ErrConcurrencyConflict
	}
	r.s.quotes[k] = *quote
	return nil
}

type memAcceptances struct{ s *memStore }

func (r memAcceptances) FindByID(_ context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*ledger.Acceptance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.acceptances[key(tenantID, id)]
	if !ok {
		return nil, shared.NotFound(shared.KindAcceptance, id)
	}
	return &a, nil
}

func (r memAcceptances) FindByQuoteID(_ context.Context, tenantID uuid.UUID, quoteID shared.ImmutableID) (*ledger.Acceptance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.acceptances {
		if a.TenantID == tenantID && a.QuoteID == quoteID {
			found := a
			return &found, nil
		}
	}
	return nil, nil
}

func (r memAcceptances) Create(_ context.Context, acceptance *ledger.Acceptance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.acceptances {
		if a.TenantID == acceptance.TenantID && a.QuoteID == acceptance.QuoteID {
			return shared.ErrAlreadyExists
		}
	}
	r.s.acceptances[key(acceptance.TenantID, acceptance.ID)] = *acceptance
	return nil
}

func (r memAcceptances) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]ledger.Acceptance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []ledger.Acceptance
	for _, a := range r.s.acceptances {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memInvoices struct{ s *memStore }

func (r memInvoices) FindByID(_ context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*ledger.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[key(tenantID, id)]
	if !ok {
		return nil, shared.NotFound(shared.KindInvoice, id)
	}
	out := copyInvoice(inv)
	return &out, nil
}

func (r memInvoices) Create(_ context.Context, invoice *ledger.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.invoices[key(invoice.TenantID, invoice.ID)] = copyInvoice(*invoice)
	return nil
}

func (r memInvoices) findLine(tenantID uuid.UUID, trigger ledger.TriggerRef) *ledger.InvoiceLine {
	for _, inv := range r.s.invoices {
		if inv.TenantID != tenantID {
			continue
		}
		for _, l := range inv.Lines {
			if l.Trigger == trigger {
				found := l
				return &found
			}
		}
	}
	return nil
}

func (r memInvoices) FindLineByTrigger(_ context.Context, tenantID uuid.UUID, trigger ledger.TriggerRef) (*ledger.InvoiceLine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.findLine(tenantID, trigger), nil
}

func (r memInvoices) InsertLine(_ context.Context, invoice *ledger.Invoice, line *ledger.InvoiceLine, expectedVersion int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.lineConflicts > 0 {
		r.s.lineConflicts--
		if winner := r.s.beforeLineConflict; winner != nil {
			r.s.beforeLineConflict = nil
			r.s.mu.Unlock()
			winner()
			r.s.mu.Lock()
		}
		return shared.ErrConcurrencyConflict
	}
	k := key(invoice.TenantID, invoice.ID)
	stored, ok := r.s.invoices[k]
	if !ok {
		return shared.NotFound(shared.KindInvoice, invoice.ID)
	}
	if !stored.IsDraft() {
		return shared.NewImmutabilityViolation(shared.KindInvoice, invoice.ID, "add line")
	}
	if existing := r.findLine(invoice.TenantID, line.Trigger); existing != nil {
		return ledger.NewDuplicateTriggerError(line.Trigger, existing.ID)
	}
	if stored.Version != expectedVersion {
		return shared.ErrConcurrencyConflict
	}
	stored.Lines = append(stored.Lines, *line)
	stored.Version = invoice.Version
	stored.UpdatedAt = invoice.UpdatedAt
	r.s.invoices[k] = copyInvoice(stored)
	return nil
}

func (r memInvoices) Finalize(_ context.Context, invoice *ledger.Invoice, expectedVersion int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := key(invoice.TenantID, invoice.ID)
	stored, ok := r.s.invoices[k]
	if !ok {
		return shared.NotFound(shared.KindInvoice, invoice.ID)
	}
	if stored.Seal.IsSealed() {
		return shared.NewImmutabilityViolation(shared.KindInvoice, invoice.ID, "finalize")
	}
	if stored.Version != expectedVersion {
		return shared.ErrConcurrencyConflict
	}
	r.s.invoices[k] = copyInvoice(*invoice)
	return nil
}

func (r memInvoices) ListFinalizedByClient(_ context.Context, tenantID uuid.UUID, clientID string) ([]ledger.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []ledger.Invoice
	for _, inv := range r.s.invoices {
		if inv.TenantID == tenantID && inv.ClientID == clientID && inv.IsFinalized() {
			out = append(out, copyInvoice(inv))
		}
	}
	return out, nil
}

func (r memInvoices) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]ledger.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []ledger.Invoice
	for _, inv := range r.s.invoices {
		if inv.TenantID == tenantID {
			out = append(out, copyInvoice(inv))
		}
	}
	return out, nil
}

type memAdjustments struct{ s *memStore }

func (r memAdjustments) Append(_ context.Context, adjustment *ledger.Adjustment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.appendConflicts > 0 {
		r.s.appendConflicts--
		return shared.ErrConcurrencyConflict
	}
	for _, a := range r.s.adjustments {
		if a.TenantID == adjustment.TenantID && a.InvoiceID == adjustment.InvoiceID && a.Sequence == adjustment.Sequence {
			return shared.ErrConcurrencyConflict
		}
	}
	r.s.adjustments = append(r.s.adjustments, *adjustment)
	return nil
}

func (r memAdjustments) FindLatest(_ context.Context, tenantID uuid.UUID, invoiceID shared.ImmutableID) (*ledger.Adjustment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *ledger.Adjustment
	for idx := range r.s.adjustments {
		a := r.s.adjustments[idx]
		if a.TenantID == tenantID && a.InvoiceID == invoiceID && (latest == nil || a.Sequence > latest.Sequence) {
			latest = &a
		}
	}
	return latest, nil
}

func (r memAdjustments) ListByInvoice(_ context.Context, tenantID uuid.UUID, invoiceID shared.ImmutableID) ([]ledger.Adjustment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []ledger.Adjustment
	for _, a := range r.s.adjustments {
		if a.TenantID == tenantID && a.InvoiceID == invoiceID {
			out = append(out, a)
		}
	}
	ledger.SortAdjustments(out)
	return out, nil
}

func (r memAdjustments) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]ledger.Adjustment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []ledger.Adjustment
	for _, a := range r.s.adjustments {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memBindings struct{ s *memStore }

func (r memBindings) FindByID(_ context.Context, tenantID uuid.UUID, id shared.ImmutableID) (*ledger.BindingEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bindings[key(tenantID, id)]
	if !ok {
		return nil, shared.NotFound(shared.KindBindingEvent, id)
	}
	return &b, nil
}

func (r memBindings) FindByDeliveryID(_ context.Context, tenantID uuid.UUID, deliveryID string) (*ledger.BindingEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, b := range r.s.bindings {
		if b.TenantID == tenantID && b.DeliveryID != "" && b.DeliveryID == deliveryID {
			found := b
			return &found, nil
		}
	}
	return nil, nil
}

func (r memBindings) Create(_ context.Context, binding *ledger.BindingEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if binding.DeliveryID != "" {
		for _, b := range r.s.bindings {
			if b.TenantID == binding.TenantID && b.DeliveryID == binding.DeliveryID {
				return shared.ErrAlreadyExists
			}
		}
	}
	r.s.bindings[key(binding.TenantID, binding.ID)] = *binding
	return nil
}

func (r memBindings) MarkSuperseded(_ context.Context, tenantID uuid.UUID, id, next shared.ImmutableID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := key(tenantID, id)
	b, ok := r.s.bindings[k]
	if !ok {
		return shared.NotFound(shared.KindBindingEvent, id)
	}
	if err := b.MarkSupersededBy(next); err != nil {
		return err
	}
	r.s.bindings[k] = b
	return nil
}

func (r memBindings) ListBySubjects(_ context.Context, tenantID uuid.UUID, subjects []shared.ImmutableID) ([]ledger.BindingEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := make(map[shared.ImmutableID]bool, len(subjects))
	for _, s := range subjects {
		want[s] = true
	}
	var out []ledger.BindingEvent
	for _, b := range r.s.bindings {
		if b.TenantID == tenantID && want[b.Subject] {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memBindings) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]ledger.BindingEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []ledger.BindingEvent
	for _, b := range r.s.bindings {
		if b.TenantID == tenantID {
			out = append(out, b)
		}
	}
	return out, nil
}

type memPortal struct{ s *memStore }

func (r memPortal) ListFinalizedByClient(ctx context.Context, tenantID uuid.UUID, clientID string) ([]ledger.Invoice, error) {
	return memInvoices(r).ListFinalizedByClient(ctx, tenantID, clientID)
}

func (r memPortal) ListActiveBindingsForClient(_ context.Context, tenantID uuid.UUID, clientID string, purposes []ledger.DocumentPurpose) ([]ledger.BindingEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	allowed := make(map[ledger.DocumentPurpose]bool, len(purposes))
	for _, p := range purposes {
		allowed[p] = true
	}
	var out []ledger.BindingEvent
	for _, b := range r.s.bindings {
		if b.TenantID == tenantID && b.ClientID == clientID && b.IsActive() && allowed[b.Purpose] {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r memPortal) ListAdjustmentsByInvoices(_ context.Context, tenantID uuid.UUID, invoiceIDs []shared.ImmutableID) (map[shared.ImmutableID][]ledger.Adjustment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := make(map[shared.ImmutableID]bool, len(invoiceIDs))
	for _, id := range invoiceIDs {
		want[id] = true
	}
	out := make(map[shared.ImmutableID][]ledger.Adjustment)
	for _, a := range r.s.adjustments {
		if a.TenantID == tenantID && want[a.InvoiceID] {
			out[a.InvoiceID] = append(out[a.InvoiceID], a)
		}
	}
	return out, nil
}

type memLineage struct{ s *memStore }

func (r memLineage) AddEdges(_ context.Context, edges ...ledger.Edge) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range edges {
		dup := false
		for _, existing := range r.s.edges {
			if existing == e {
				dup = true
				break
			}
		}
		if !dup {
			r.s.edges = append(r.s.edges, e)
		}
	}
	return nil
}

func (r memLineage) EdgesTo(_ context.Context, tenantID uuid.UUID, to shared.ImmutableID, edgeType ledger.EdgeType) ([]ledger.Edge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []ledger.Edge
	for _, e := range r.s.edges {
		if e.TenantID == tenantID && e.To.ID == to && e.Type == edgeType {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r memLineage) EdgesFrom(_ context.Context, tenantID uuid.UUID, from []shared.ImmutableID, edgeTypes ...ledger.EdgeType) ([]ledger.Edge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make(map[shared.ImmutableID]bool, len(from))
	for _, id := range from {
		ids[id] = true
	}
	types := make(map[ledger.EdgeType]bool, len(edgeTypes))
	for _, t := range edgeTypes {
		types[t] = true
	}
	var out []ledger.Edge
	for _, e := range r.s.edges {
		if e.TenantID == tenantID && ids[e.From.ID] && (len(types) == 0 || types[e.Type]) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r memLineage) Replace(_ context.Context, tenantID uuid.UUID, edges []ledger.Edge) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := make([]ledger.Edge, 0, len(r.s.edges))
	for _, e := range r.s.edges {
		if e.TenantID != tenantID {
			kept = append(kept, e)
		}
	}
	r.s.edges = append(kept, edges...)
	return nil
}

// memIdempotency is an in-memory IdempotencyStore
type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{keys: make(map[string]time.Time)}
}

func (m *memIdempotency) MarkProcessed(_ context.Context, k string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[k]; ok {
		return false, nil
	}
	m.keys[k] = time.Now().Add(ttl)
	return true, nil
}

func (m *memIdempotency) IsProcessed(_ context.Context, k string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[k]
	return ok, nil
}

func (m *memIdempotency) Close() error { return nil }

var (
	_ TransactionalRepositories = (*memStore)(nil)
	_ ledger.PortalSource       = memPortal{}
	_ shared.IdempotencyStore   = (*memIdempotency)(nil)
)

// ---------------------------------------------------------------------------
// fixtures
// ---------------------------------------------------------------------------

var (
	testTenant = uuid.MustParse("0190a6f5-8a5e-7c1b-9a44-2f3e4d5c6b7a")
	otherFirm  = uuid.MustParse("0190a6f5-8a5e-7c1b-9a44-000000000002")
	approvedAt = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
)

// fixedClock advances one second per call
func fixedClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

type harness struct {
	store       *memStore
	publisher   *MockEventPublisher
	ingestion   *IngestionService
	quotes      *QuoteService
	invoices    *InvoiceService
	adjustments *AdjustmentService
	bindings    *BindingService
	lineage     *LineageService
	portal      *PortalService
	deliveries  *memIdempotency
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := newMemStore()
	projector := NewLineageProjector(store.Lineage(), nil, logger)
	publisher := NewMockEventPublisher(projector)
	cfg := ServiceConfig{
		Scope:     store.Scope(),
		Publisher: publisher,
		Logger:    logger,
		Clock:     fixedClock(),
	}
	deliveries := newMemIdempotency()
	return &harness{
		store:       store,
		publisher:   publisher,
		ingestion:   NewIngestionService(cfg),
		quotes:      NewQuoteService(cfg),
		invoices:    NewInvoiceService(cfg),
		adjustments: NewAdjustmentService(cfg),
		bindings:    NewBindingService(cfg, deliveries, shared.DefaultIdempotencyConfig()),
		lineage:     NewLineageService(cfg),
		portal:      NewPortalService(store.Portal(), logger),
		deliveries:  deliveries,
	}
}

func timeEntryRequest(id, clientID, hours, rate string) IngestBillableEventRequest {
	at := approvedAt
	payload := fmt.Sprintf(`{"description":"Advisory work","hours":%q,"rate":%q,"currency":"EUR"}`, hours, rate)
	return IngestBillableEventRequest{
		ID:           id,
		ClientID:     clientID,
		EngagementID: "eng-1",
		EventType:    string(ledger.EventTypeTimeEntry),
		EventPayload: json.RawMessage(payload),
		ApprovedBy:   "partner@firm",
		ApprovedAt:   &at,
	}
}

// acceptedQuote creates, issues and accepts a quote for the client
func (h *harness) acceptedQuote(t *testing.T, tenantID uuid.UUID, clientID string) (*QuoteResponse, *AcceptanceResponse) {
	t.Helper()
	ctx := context.Background()
	q, err := h.quotes.CreateQuote(ctx, tenantID, CreateQuoteRequest{
		ClientID:     clientID,
		EngagementID: "eng-1",
		Currency:     "EUR",
		Snapshot:     json.RawMessage(`{"scope":"annual accounts","fee":"1200.00"}`),
		CreatedBy:    "manager@firm",
	})
	require.NoError(t, err)
	q, err = h.quotes.IssueQuote(ctx, tenantID, q.ID, IssueQuoteRequest{IssuedBy: "manager@firm"})
	require.NoError(t, err)
	at := approvedAt
	acc, err := h.quotes.AcceptQuote(ctx, tenantID, q.ID, AcceptQuoteRequest{AcceptedBy: "client@example.com", AcceptedAt: &at})
	require.NoError(t, err)
	return q, acc
}

// draftInvoice opens an invoice for a freshly accepted quote
func (h *harness) draftInvoice(t *testing.T, tenantID uuid.UUID, clientID string) *InvoiceResponse {
	t.Helper()
	_, acc := h.acceptedQuote(t, tenantID, clientID)
	inv, err := h.invoices.OpenInvoice(context.Background(), tenantID, OpenInvoiceRequest{
		AcceptanceID: acc.ID,
		OpenedBy:     "billing@firm",
	})
	require.NoError(t, err)
	return inv
}

// billedLine ingests a time entry and generates its line on the invoice
func (h *harness) billedLine(t *testing.T, tenantID uuid.UUID, invoiceID, eventID, clientID string) *InvoiceLineResponse {
	t.Helper()
	ctx := context.Background()
	_, err := h.ingestion.Ingest(ctx, tenantID, timeEntryRequest(eventID, clientID, "2", "150.00"))
	require.NoError(t, err)
	line, err := h.invoices.GenerateLine(ctx, tenantID, invoiceID, GenerateLineRequest{
		TriggerKind: string(ledger.TriggerKindBillableEvent),
		TriggerID:   eventID,
	})
	require.NoError(t, err)
	return line
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}
