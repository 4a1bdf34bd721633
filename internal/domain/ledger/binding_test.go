package ledger

import (
	"strings"
	"testing"

	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBinding(t *testing.T, ref string, purpose DocumentPurpose, subject string) *BindingEvent {
	t.Helper()
	artifact, err := NewArtifactRef(ArtifactKindFrozenArtifact, ref)
	require.NoError(t, err)
	b, err := NewBindingEvent(testFirm, NewBindingInput{
		Artifact: artifact,
		ClientID: "client-a",
		Purpose:  purpose,
		Subject:  subject,
		Actor:    "dms",
	}, testNow)
	require.NoError(t, err)
	return b
}

func TestNewArtifactRef(t *testing.T) {
	ref, err := NewArtifactRef(ArtifactKindFrozenArtifact, "blake3:"+strings.Repeat("9c", 32))
	require.NoError(t, err)
	assert.Equal(t, ArtifactKindFrozenArtifact, ref.Kind)

	_, err = NewArtifactRef(ArtifactKindDocumentVersion, "fa_1")
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = NewArtifactRef(ArtifactKindDocumentVersion, "/documents/42")
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = NewArtifactRef("folder", "dv_1")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestBindingEvent_Rebind(t *testing.T) {
	old := newTestBinding(t, "fa_proposal-v1", PurposeSignedProposal, "qt_1")
	assert.True(t, old.IsActive())
	oldHash := old.Seal.ContentHash

	next, err := NewRebinding(old, ArtifactRef{Kind: ArtifactKindFrozenArtifact, ID: "fa_proposal-v2"}, "dms", "", testNow)
	require.NoError(t, err)
	require.NotNil(t, next.Supersedes)
	assert.Equal(t, old.ID, *next.Supersedes)
	assert.Equal(t, old.Subject, next.Subject)
	assert.Equal(t, old.Purpose, next.Purpose)

	require.NoError(t, old.MarkSupersededBy(next.ID))
	assert.False(t, old.IsActive())
	assert.Equal(t, oldHash, old.Seal.ContentHash)
	ok, err := shared.VerifySeal(old)
	require.NoError(t, err)
	assert.True(t, ok, "superseded_by is not part of the sealed content")

	assert.ErrorIs(t, old.MarkSupersededBy("bnd_other"), shared.ErrImmutabilityViolation)
	_, err = NewRebinding(old, next.Artifact, "dms", "", testNow)
	assert.ErrorIs(t, err, shared.ErrImmutabilityViolation)

	edges := BindingEdges(next)
	require.Len(t, edges, 2)
	assert.Equal(t, EdgeBinds, edges[0].Type)
	assert.Equal(t, shared.KindQuote, edges[0].From.Kind)
	assert.Equal(t, EdgeSupersedes, edges[1].Type)
	assert.Equal(t, old.ID, edges[1].To.ID)
}

func TestPortalProjection(t *testing.T) {
	t.Run("only client-facing purposes map to a portal type", func(t *testing.T) {
		for _, p := range []DocumentPurpose{PurposeInternalNote, PurposeAdminReport, PurposeWorkingDraft} {
			_, ok := BindingPortalArtifact(newTestBinding(t, "fa_1", p, ""))
			assert.False(t, ok, string(p))
		}
		for _, p := range PortalPurposes() {
			a, ok := BindingPortalArtifact(newTestBinding(t, "fa_1", p, ""))
			require.True(t, ok, string(p))
			assert.True(t, a.Type.IsValid())
			assert.Equal(t, "client-a", a.ClientID)
		}
	})

	t.Run("superseded bindings are hidden", func(t *testing.T) {
		b := newTestBinding(t, "fa_1", PurposeStatement, "")
		require.NoError(t, b.MarkSupersededBy("bnd_next"))
		_, ok := BindingPortalArtifact(b)
		assert.False(t, ok)
	})

	t.Run("draft invoices are hidden", func(t *testing.T) {
		_, ok := InvoicePortalArtifact(draftTestInvoice(t, "client-a"), nil)
		assert.False(t, ok)
	})

	t.Run("finalized invoice carries original and net totals", func(t *testing.T) {
		inv := finalizedTestInvoice(t)
		chain := appendChain(t, inv, "-100")
		a, ok := InvoicePortalArtifact(inv, chain)
		require.True(t, ok)
		assert.Equal(t, PortalInvoice, a.Type)
		assert.True(t, decimal.NewFromInt(300).Equal(*a.Total))
		assert.True(t, decimal.NewFromInt(200).Equal(*a.NetTotal))
		assert.Equal(t, *inv.FinalizedAt, a.IssuedAt)
	})
}

func TestLineageEdges(t *testing.T) {
	inv := finalizedTestInvoice(t)
	edges := InvoiceEdges(inv)
	require.Len(t, edges, 3)
	assert.Equal(t, EdgeJustifies, edges[0].Type)
	assert.Equal(t, inv.AcceptanceID, edges[0].From.ID)
	assert.Equal(t, EdgeContains, edges[1].Type)
	assert.Equal(t, EdgeTriggeredBy, edges[2].Type)
	assert.Equal(t, shared.KindBillableEvent, edges[2].To.Kind)
	assert.Equal(t, shared.ImmutableID("be_pm-1"), edges[2].To.ID)

	g := &LineageGraph{InvoiceID: inv.ID, Edges: edges}
	assert.True(t, g.Consistent())
	assert.Len(t, g.EdgesOfType(EdgeContains), 1)

	g.AddFault(NewLineageFault(FaultMissingTrigger, NodeRef{Kind: shared.KindInvoiceLine, ID: inv.Lines[0].ID}, "line %d has no trigger", 1))
	assert.False(t, g.Consistent())
	err := NewLineageInconsistencyError(g)
	assert.ErrorIs(t, err, shared.ErrLineageInconsistency)
	assert.Contains(t, err.Error(), "line 1 has no trigger")
}
