package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	appledger "github.com/firmledger/backend/internal/application/ledger"
	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	firmA   = uuid.MustParse("0190a6f5-8a5e-7c1b-9a44-2f3e4d5c6b7a")
	firmB   = uuid.MustParse("0190a6f5-8a5e-7c1b-9a44-000000000002")
	fixedAt = time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
)

// setupLedgerDB opens an in-memory SQLite store with the ledger schema. A single
// connection keeps every statement on the same in-memory database.
func setupLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	d, err := Open(sqlite.Open(":memory:"), Options{})
	require.NoError(t, err)
	sqlDB, err := d.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, d.AutoMigrate())
	t.Cleanup(func() { _ = d.Close() })
	return d.DB
}

func billableEvent(t *testing.T, tenantID uuid.UUID, id, clientID string) *ledger.BillableEvent {
	t.Helper()
	approvedAt := fixedAt.Add(-time.Hour)
	ev, err := ledger.NewBillableEvent(tenantID, ledger.NewBillableEventInput{
		ID:           id,
		ClientID:     clientID,
		EngagementID: "eng-1",
		EventType:    string(ledger.EventTypeTimeEntry),
		Payload:      json.RawMessage(`{"description":"Advisory work","hours":"2","rate":"150.00","currency":"EUR"}`),
		ApprovedBy:   "partner@firm",
		ApprovedAt:   &approvedAt,
	}, fixedAt)
	require.NoError(t, err)
	return ev
}

// acceptedQuote persists an issued quote and its acceptance
func acceptedQuote(t *testing.T, db *gorm.DB, clientID string) (*ledger.Quote, *ledger.Acceptance) {
	t.Helper()
	ctx := context.Background()
	q, err := ledger.NewQuote(firmA, clientID, "eng-1", "EUR", json.RawMessage(`{"fee":"1200.00"}`), "manager@firm", fixedAt)
	require.NoError(t, err)
	require.NoError(t, q.Issue("manager@firm", fixedAt))
	require.NoError(t, NewGormQuoteRepository(db).Create(ctx, q))

	at := fixedAt
	acc, err := ledger.NewAcceptance(q, "client@example.com", &at, fixedAt)
	require.NoError(t, err)
	require.NoError(t, NewGormAcceptanceRepository(db).Create(ctx, acc))
	return q, acc
}

func draftInvoice(t *testing.T, db *gorm.DB, clientID string) *ledger.Invoice {
	t.Helper()
	_, acc := acceptedQuote(t, db, clientID)
	inv, err := ledger.OpenInvoice(acc, "EUR", "billing@firm", fixedAt)
	require.NoError(t, err)
	require.NoError(t, NewGormInvoiceRepository(db).Create(context.Background(), inv))
	return inv
}

// addLine prices the trigger onto the invoice and stores the line
func addLine(ctx context.Context, repo ledger.InvoiceRepository, inv *ledger.Invoice, ev *ledger.BillableEvent) (*ledger.InvoiceLine, error) {
	src, err := ev.AsTrigger()
	if err != nil {
		return nil, err
	}
	expected := inv.Version
	line, err := inv.AddLine(src, fixedAt)
	if err != nil {
		return nil, err
	}
	return line, repo.InsertLine(ctx, inv, line, expected)
}

func TestGormBillableEventRepository_InsertIfAbsent(t *testing.T) {
	db := setupLedgerDB(t)
	repo := NewGormBillableEventRepository(db)
	ctx := context.Background()
	ev := billableEvent(t, firmA, "be_pm-1", "client-a")

	inserted, err := repo.InsertIfAbsent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertIfAbsent(ctx, billableEvent(t, firmA, "be_pm-1", "client-a"))
	require.NoError(t, err)
	assert.False(t, inserted)

	stored, err := repo.FindByID(ctx, firmA, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.Seal.ContentHash, stored.Seal.ContentHash)
	ok, err := shared.VerifySeal(stored)
	require.NoError(t, err)
	assert.True(t, ok, "stored event must reproduce its seal")

	t.Run("same id in another firm is a different record", func(t *testing.T) {
		inserted, err := repo.InsertIfAbsent(ctx, billableEvent(t, firmB, "be_pm-1", "client-a"))
		require.NoError(t, err)
		assert.True(t, inserted)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.FindByID(ctx, firmA, "be_missing")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormApprovalRecordRepository_Create(t *testing.T) {
	db := setupLedgerDB(t)
	repo := NewGormApprovalRecordRepository(db)
	ctx := context.Background()

	approvedAt := fixedAt
	rec, err := ledger.NewApprovalRecord(firmA, ledger.NewApprovalRecordInput{
		ClientID:     "client-a",
		EngagementID: "eng-1",
		Description:  "Out-of-scope filing",
		Quantity:     decimal.NewFromInt(1),
		UnitPrice:    decimal.RequireFromString("480.00"),
		Currency:     "EUR",
		Reason:       "client request",
		ApprovedBy:   "partner@firm",
		ApprovedAt:   &approvedAt,
	}, fixedAt)
	require.NoError(t, err)

	require.NoError(t, repo.Create(ctx, rec))
	assert.ErrorIs(t, repo.Create(ctx, rec), shared.ErrAlreadyExists)

	stored, err := repo.FindByID(ctx, firmA, rec.ID)
	require.NoError(t, err)
	ok, err := shared.VerifySeal(stored)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGormQuoteRepository_Update(t *testing.T) {
	db := setupLedgerDB(t)
	repo := NewGormQuoteRepository(db)
	ctx := context.Background()

	q, err := ledger.NewQuote(firmA, "client-a", "eng-1", "EUR", json.RawMessage(`{"fee":"1000"}`), "manager@firm", fixedAt)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, q))

	stale, err := repo.FindByID(ctx, firmA, q.ID)
	require.NoError(t, err)

	expected := q.Version
	require.NoError(t, q.Revise(json.RawMessage(`{"fee":"1100"}`), fixedAt))
	require.NoError(t, repo.Update(ctx, q, expected))

	t.Run("stale version conflicts", func(t *testing.T) {
		expected := stale.Version
		require.NoError(t, stale.Revise(json.RawMessage(`{"fee":"900"}`), fixedAt))
		assert.ErrorIs(t, repo.Update(ctx, stale, expected), shared.ErrConcurrencyConflict)
	})

	beforeIssue, err := repo.FindByID(ctx, firmA, q.ID)
	require.NoError(t, err)

	expected = q.Version
	require.NoError(t, q.Issue("manager@firm", fixedAt))
	require.NoError(t, repo.Update(ctx, q, expected))

	t.Run("revising an issued quote is rejected by the store", func(t *testing.T) {
		expected := beforeIssue.Version
		require.NoError(t, beforeIssue.Revise(json.RawMessage(`{"fee":"1"}`), fixedAt))
		err := repo.Update(ctx, beforeIssue, expected)
		var iv *shared.ImmutabilityViolation
		require.True(t, errors.As(err, &iv))
		assert.Equal(t, q.ID, iv.ID)
	})

	stored, err := repo.FindByID(ctx, firmA, q.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsIssued())
	assert.JSONEq(t, `{"fee":"1100"}`, string(stored.Snapshot))
	ok, err := shared.VerifySeal(stored)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGormAcceptanceRepository_OnePerQuote(t *testing.T) {
	db := setupLedgerDB(t)
	repo := NewGormAcceptanceRepository(db)
	ctx := context.Background()

	q, acc := acceptedQuote(t, db, "client-a")

	at := fixedAt
	second, err := ledger.NewAcceptance(q, "someone-else@example.com", &at, fixedAt)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, second), shared.ErrAlreadyExists)

	found, err := repo.FindByQuoteID(ctx, firmA, q.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, acc.ID, found.ID)

	none, err := repo.FindByQuoteID(ctx, firmA, "qt_unknown")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestGormInvoiceRepository_TriggerUniqueness(t *testing.T) {
	db := setupLedgerDB(t)
	scope := NewGormTransactionScope(db, nil)
	ctx := context.Background()

	first := draftInvoice(t, db, "client-a")
	second := draftInvoice(t, db, "client-a")
	ev := billableEvent(t, firmA, "be_pm-1", "client-a")

	var line *ledger.InvoiceLine
	err := scope.Execute(ctx, func(repos appledger.TransactionalRepositories) error {
		var err error
		line, err = addLine(ctx, repos.Invoices(), first, ev)
		return err
	})
	require.NoError(t, err)

	err = scope.Execute(ctx, func(repos appledger.TransactionalRepositories) error {
		_, err := addLine(ctx, repos.Invoices(), second, ev)
		return err
	})
	var dup *ledger.DuplicateTriggerError
	require.True(t, errors.As(err, &dup), "got %v", err)
	assert.Equal(t, line.ID, dup.ExistingLineID)

	repo := NewGormInvoiceRepository(db)
	stored, err := repo.FindByID(ctx, firmA, second.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Lines)
	assert.Equal(t, 1, stored.Version, "rejected line rolls back the version bump")

	held, err := repo.FindLineByTrigger(ctx, firmA, dup.Trigger)
	require.NoError(t, err)
	require.NotNil(t, held)
	assert.Equal(t, first.ID, held.InvoiceID)
}

func TestGormInvoiceRepository_Finalize(t *testing.T) {
	db := setupLedgerDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()

	inv := draftInvoice(t, db, "client-a")
	for _, id := range []string{"be_pm-1", "be_pm-2"} {
		_, err := addLine(ctx, repo, inv, billableEvent(t, firmA, id, "client-a"))
		require.NoError(t, err)
	}

	stale, err := repo.FindByID(ctx, firmA, inv.ID)
	require.NoError(t, err)
	require.Len(t, stale.Lines, 2)

	expected := inv.Version
	require.NoError(t, inv.Finalize("billing@firm", fixedAt))
	require.NoError(t, repo.Finalize(ctx, inv, expected))

	stored, err := repo.FindByID(ctx, firmA, inv.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsFinalized())
	assert.Equal(t, []int{1, 2}, []int{stored.Lines[0].Position, stored.Lines[1].Position})
	assert.True(t, decimal.NewFromInt(600).Equal(stored.Total()))
	ok, err := shared.VerifySeal(stored)
	require.NoError(t, err)
	assert.True(t, ok, "stored invoice must reproduce its seal")

	t.Run("line added through a stale draft", func(t *testing.T) {
		_, err := addLine(ctx, repo, stale, billableEvent(t, firmA, "be_pm-3", "client-a"))
		assert.ErrorIs(t, err, shared.ErrImmutabilityViolation)
	})

	t.Run("finalize twice", func(t *testing.T) {
		again, err := repo.FindByID(ctx, firmA, inv.ID)
		require.NoError(t, err)
		again.Status = ledger.InvoiceStatusDraft
		again.Seal = shared.Seal{}
		expected := again.Version
		require.NoError(t, again.Finalize("billing@firm", fixedAt))
		assert.ErrorIs(t, repo.Finalize(ctx, again, expected), shared.ErrImmutabilityViolation)
	})

	t.Run("only finalized invoices are listed for the client", func(t *testing.T) {
		draftInvoice(t, db, "client-a")
		finalized, err := repo.ListFinalizedByClient(ctx, firmA, "client-a")
		require.NoError(t, err)
		require.Len(t, finalized, 1)
		assert.Equal(t, inv.ID, finalized[0].ID)
		assert.Len(t, finalized[0].Lines, 2)
	})
}

func TestGormAdjustmentRepository_Append(t *testing.T) {
	db := setupLedgerDB(t)
	invoices := NewGormInvoiceRepository(db)
	repo := NewGormAdjustmentRepository(db)
	ctx := context.Background()

	inv := draftInvoice(t, db, "client-a")
	_, err := addLine(ctx, invoices, inv, billableEvent(t, firmA, "be_pm-1", "client-a"))
	require.NoError(t, err)

	first, err := ledger.NewAdjustment(inv, ledger.AppendAdjustmentInput{
		Delta: decimal.NewFromInt(-50), Reason: "goodwill", Actor: "billing@firm",
	}, nil, fixedAt)
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, first))

	t.Run("sequence collision", func(t *testing.T) {
		racer, err := ledger.NewAdjustment(inv, ledger.AppendAdjustmentInput{
			Delta: decimal.NewFromInt(10), Reason: "fee", Actor: "billing@firm",
		}, nil, fixedAt)
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Append(ctx, racer), shared.ErrConcurrencyConflict)
	})

	latest, err := repo.FindLatest(ctx, firmA, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	second, err := ledger.NewAdjustment(inv, ledger.AppendAdjustmentInput{
		Delta: decimal.NewFromInt(20), Reason: "fee", Actor: "billing@firm",
	}, latest, fixedAt)
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, second))

	chain, err := repo.ListByInvoice(ctx, firmA, inv.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, int64(1), chain[0].Sequence)
	assert.Equal(t, int64(2), chain[1].Sequence)
	require.NoError(t, ledger.VerifyAdjustmentChain(chain))
	assert.True(t, decimal.NewFromInt(270).Equal(ledger.NetTotal(inv.Total(), chain)))

	none, err := repo.FindLatest(ctx, firmB, inv.ID)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func frozenBinding(t *testing.T, clientID, ref string, purpose ledger.DocumentPurpose, deliveryID string) *ledger.BindingEvent {
	t.Helper()
	b, err := ledger.NewBindingEvent(firmA, ledger.NewBindingInput{
		Artifact:   ledger.ArtifactRef{Kind: ledger.ArtifactKindFrozenArtifact, ID: shared.ImmutableID(ref)},
		ClientID:   clientID,
		Purpose:    purpose,
		Actor:      "dms",
		BoundAt:    fixedAt,
		DeliveryID: deliveryID,
	}, fixedAt)
	require.NoError(t, err)
	return b
}

func TestGormBindingRepository_Supersede(t *testing.T) {
	db := setupLedgerDB(t)
	repo := NewGormBindingRepository(db)
	ctx := context.Background()

	old := frozenBinding(t, "client-a", "fa_proposal-v1", ledger.PurposeSignedProposal, "delivery-1")
	require.NoError(t, repo.Create(ctx, old))

	t.Run("delivery ids are unique", func(t *testing.T) {
		again := frozenBinding(t, "client-a", "fa_proposal-v1", ledger.PurposeSignedProposal, "delivery-1")
		assert.ErrorIs(t, repo.Create(ctx, again), shared.ErrAlreadyExists)

		found, err := repo.FindByDeliveryID(ctx, firmA, "delivery-1")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, old.ID, found.ID)
	})

	next, err := ledger.NewRebinding(old, ledger.ArtifactRef{Kind: ledger.ArtifactKindFrozenArtifact, ID: "fa_proposal-v2"}, "dms", "", fixedAt)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, next))
	require.NoError(t, repo.MarkSuperseded(ctx, firmA, old.ID, next.ID))

	err = repo.MarkSuperseded(ctx, firmA, old.ID, "bnd_other")
	assert.ErrorIs(t, err, shared.ErrImmutabilityViolation)
	assert.ErrorIs(t, repo.MarkSuperseded(ctx, firmA, "bnd_missing", next.ID), shared.ErrNotFound)

	stored, err := repo.FindByID(ctx, firmA, old.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive())
	require.NotNil(t, stored.SupersededBy)
	assert.Equal(t, next.ID, *stored.SupersededBy)
	ok, err := shared.VerifySeal(stored)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err = repo.FindByID(ctx, firmA, next.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Supersedes)
	assert.Equal(t, old.ID, *stored.Supersedes)
}

func TestGormPortalSource(t *testing.T) {
	db := setupLedgerDB(t)
	bindings := NewGormBindingRepository(db)
	source := NewGormPortalSource(db)
	ctx := context.Background()

	statement := frozenBinding(t, "client-a", "fa_statement-q1", ledger.PurposeStatement, "")
	note := frozenBinding(t, "client-a", "fa_note", ledger.PurposeInternalNote, "")
	foreign := frozenBinding(t, "client-b", "fa_statement-b", ledger.PurposeStatement, "")
	replaced := frozenBinding(t, "client-a", "fa_deliverable-v1", ledger.PurposeDeliverable, "")
	for _, b := range []*ledger.BindingEvent{statement, note, foreign, replaced} {
		require.NoError(t, bindings.Create(ctx, b))
	}
	current, err := ledger.NewRebinding(replaced, ledger.ArtifactRef{Kind: ledger.ArtifactKindFrozenArtifact, ID: "fa_deliverable-v2"}, "dms", "", fixedAt)
	require.NoError(t, err)
	require.NoError(t, bindings.Create(ctx, current))
	require.NoError(t, bindings.MarkSuperseded(ctx, firmA, replaced.ID, current.ID))

	active, err := source.ListActiveBindingsForClient(ctx, firmA, "client-a", ledger.PortalPurposes())
	require.NoError(t, err)
	ids := make([]shared.ImmutableID, len(active))
	for i := range active {
		ids[i] = active[i].ID
	}
	assert.ElementsMatch(t, []shared.ImmutableID{statement.ID, current.ID}, ids)

	other, err := source.ListActiveBindingsForClient(ctx, firmB, "client-a", ledger.PortalPurposes())
	require.NoError(t, err)
	assert.Empty(t, other)

	adjustments, err := source.ListAdjustmentsByInvoices(ctx, firmA, []shared.ImmutableID{"inv_none"})
	require.NoError(t, err)
	assert.Empty(t, adjustments)
}

func TestGormLineageIndex(t *testing.T) {
	db := setupLedgerDB(t)
	index := NewGormLineageIndex(db)
	ctx := context.Background()

	edges := []ledger.Edge{
		ledger.NewEdge(firmA, shared.KindAcceptance, "acc_1", ledger.EdgeJustifies, shared.KindInvoice, "inv_1"),
		ledger.NewEdge(firmA, shared.KindInvoice, "inv_1", ledger.EdgeContains, shared.KindInvoiceLine, "ln_1"),
		ledger.NewEdge(firmA, shared.KindInvoiceLine, "ln_1", ledger.EdgeTriggeredBy, shared.KindBillableEvent, "be_1"),
	}
	require.NoError(t, index.AddEdges(ctx, edges...))
	require.NoError(t, index.AddEdges(ctx, edges...), "adding known edges is a no-op")
	require.NoError(t, index.AddEdges(ctx, ledger.NewEdge(firmB, shared.KindInvoice, "inv_1", ledger.EdgeContains, shared.KindInvoiceLine, "ln_9")))

	justifies, err := index.EdgesTo(ctx, firmA, "inv_1", ledger.EdgeJustifies)
	require.NoError(t, err)
	require.Len(t, justifies, 1)
	assert.Equal(t, shared.ImmutableID("acc_1"), justifies[0].From.ID)
	assert.Equal(t, shared.KindAcceptance, justifies[0].From.Kind)

	out, err := index.EdgesFrom(ctx, firmA, []shared.ImmutableID{"inv_1", "ln_1"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	contains, err := index.EdgesFrom(ctx, firmA, []shared.ImmutableID{"inv_1", "ln_1"}, ledger.EdgeContains)
	require.NoError(t, err)
	assert.Len(t, contains, 1)

	require.NoError(t, index.Replace(ctx, firmA, edges[:1]))
	out, err = index.EdgesFrom(ctx, firmA, []shared.ImmutableID{"acc_1", "inv_1", "ln_1"})
	require.NoError(t, err)
	assert.Len(t, out, 1)

	untouched, err := index.EdgesFrom(ctx, firmB, []shared.ImmutableID{"inv_1"})
	require.NoError(t, err)
	assert.Len(t, untouched, 1)
}
