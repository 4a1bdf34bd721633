package ledger

import (
	"context"
	"testing"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func (h *harness) bindDocument(t *testing.T, clientID, ref string, purpose ledger.DocumentPurpose) *BindingResponse {
	t.Helper()
	b, err := h.bindings.Bind(context.Background(), testTenant, BindRequest{
		ArtifactKind: string(ledger.ArtifactKindFrozenArtifact),
		ArtifactRef:  ref,
		ClientID:     clientID,
		Purpose:      string(purpose),
		Actor:        "dms",
	})
	require.NoError(t, err)
	return b
}

func TestPortalService_ProjectForClient(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	inv, _ := finalizedChain(t, h)
	h.draftInvoice(t, testTenant, "client-a")

	other := h.draftInvoice(t, testTenant, "client-b")
	h.billedLine(t, testTenant, other.ID, "be_pm-7001", "client-b")
	_, err := h.invoices.FinalizeInvoice(ctx, testTenant, other.ID, FinalizeInvoiceRequest{FinalizedBy: "billing@firm"})
	require.NoError(t, err)

	statement := h.bindDocument(t, "client-a", "fa_statement-2026-03", ledger.PurposeStatement)
	h.bindDocument(t, "client-a", "fa_partner-notes", ledger.PurposeInternalNote)
	h.bindDocument(t, "client-a", "fa_wip-draft", ledger.PurposeWorkingDraft)
	h.bindDocument(t, "client-b", "fa_statement-b", ledger.PurposeStatement)
	proposal := h.bindDocument(t, "client-a", "fa_proposal-v1", ledger.PurposeSignedProposal)
	current, err := h.bindings.Rebind(ctx, testTenant, proposal.ID, RebindRequest{
		ArtifactKind: string(ledger.ArtifactKindFrozenArtifact),
		ArtifactRef:  "fa_proposal-v2",
		Actor:        "dms",
	})
	require.NoError(t, err)

	got, err := h.portal.ProjectForClient(ctx, testTenant, "client-a")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, string(ledger.PortalInvoice), got[0].Type)
	assert.Equal(t, inv.ID, got[0].SourceID)
	require.NotNil(t, got[0].Total)
	require.NotNil(t, got[0].NetTotal)
	assert.True(t, mustDecimal(t, "600").Equal(*got[0].Total))
	assert.True(t, mustDecimal(t, "575").Equal(*got[0].NetTotal))

	assert.Equal(t, string(ledger.PortalStatement), got[1].Type)
	assert.Equal(t, statement.ID, got[1].SourceID)
	require.NotNil(t, got[1].Document)
	assert.Equal(t, "fa_statement-2026-03", got[1].Document.ID)

	assert.Equal(t, string(ledger.PortalSignedProposal), got[2].Type)
	assert.Equal(t, current.ID, got[2].SourceID)

	for _, a := range got {
		assert.Equal(t, "client-a", a.ClientID)
		assert.False(t, a.IssuedAt.After(got[len(got)-1].IssuedAt))
	}

	t.Run("another firm sees nothing", func(t *testing.T) {
		out, err := h.portal.ProjectForClient(ctx, otherFirm, "client-a")
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("client id is required", func(t *testing.T) {
		_, err := h.portal.ProjectForClient(ctx, testTenant, "  ")
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

// leakySource returns records of other clients along with the requested ones
type leakySource struct {
	ledger.PortalSource
	leak []ledger.BindingEvent
}

func (s leakySource) ListActiveBindingsForClient(ctx context.Context, tenantID uuid.UUID, clientID string, purposes []ledger.DocumentPurpose) ([]ledger.BindingEvent, error) {
	out, err := s.PortalSource.ListActiveBindingsForClient(ctx, tenantID, clientID, purposes)
	if err != nil {
		return nil, err
	}
	return append(out, s.leak...), nil
}

func TestPortalService_DropsRecordsOfOtherClients(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.bindDocument(t, "client-a", "fa_request-1", ledger.PurposeRequest)
	h.bindDocument(t, "client-b", "fa_request-2", ledger.PurposeRequest)

	leak, err := h.store.Portal().ListActiveBindingsForClient(ctx, testTenant, "client-b", ledger.PortalPurposes())
	require.NoError(t, err)
	require.Len(t, leak, 1)

	core, logs := observer.New(zapcore.ErrorLevel)
	svc := NewPortalService(leakySource{PortalSource: h.store.Portal(), leak: leak}, zap.New(core))

	got, err := svc.ProjectForClient(ctx, testTenant, "client-a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "client-a", got[0].ClientID)
	assert.Equal(t, string(ledger.PortalRequest), got[0].Type)

	entries := logs.FilterMessage("Portal source returned records outside the client scope").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ContextMap()["dropped"])
}
