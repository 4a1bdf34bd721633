package ledger

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statementFeed(deliveryID string) DMSBindingFeedEvent {
	return DMSBindingFeedEvent{
		DeliveryID:       deliveryID,
		FrozenArtifactID: "fa_stmt-" + deliveryID,
		ClientID:         "client-a",
		Purpose:          string(ledger.PurposeStatement),
		Actor:            "dms",
	}
}

func TestBindingService_BindAndRebind(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	b, err := h.bindings.Bind(ctx, testTenant, BindRequest{
		ArtifactKind: string(ledger.ArtifactKindDocumentVersion),
		ArtifactRef:  "dv_engagement-letter-v1",
		ClientID:     "client-a",
		Purpose:      string(ledger.PurposeSignedProposal),
		Actor:        "manager@firm",
	})
	require.NoError(t, err)
	assert.Equal(t, "dv_engagement-letter-v1", b.Artifact.ID)
	assert.NotEmpty(t, b.Seal.ContentHash)

	next, err := h.bindings.Rebind(ctx, testTenant, b.ID, RebindRequest{
		ArtifactKind: string(ledger.ArtifactKindDocumentVersion),
		ArtifactRef:  "dv_engagement-letter-v2",
		Actor:        "manager@firm",
	})
	require.NoError(t, err)
	require.NotNil(t, next.Supersedes)
	assert.Equal(t, b.ID, *next.Supersedes)
	assert.Equal(t, b.Purpose, next.Purpose)

	old, err := h.bindings.GetBinding(ctx, testTenant, b.ID)
	require.NoError(t, err)
	require.NotNil(t, old.SupersededBy)
	assert.Equal(t, next.ID, *old.SupersededBy)
	assert.Equal(t, b.Seal.ContentHash, old.Seal.ContentHash, "the superseded_by pointer is not content")
	assert.Equal(t, "dv_engagement-letter-v1", old.Artifact.ID)

	t.Run("superseded binding cannot be rebound", func(t *testing.T) {
		_, err := h.bindings.Rebind(ctx, testTenant, b.ID, RebindRequest{
			ArtifactKind: string(ledger.ArtifactKindDocumentVersion),
			ArtifactRef:  "dv_engagement-letter-v3",
			Actor:        "manager@firm",
		})
		assert.ErrorIs(t, err, shared.ErrImmutabilityViolation)
	})

	assert.Len(t, h.publisher.GetEventsByType(ledger.EventTypeBindingRecorded), 2)
}

func TestBindingService_BindValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	cases := map[string]BindRequest{
		"mutable reference": {
			ArtifactKind: string(ledger.ArtifactKindDocumentVersion),
			ArtifactRef:  "https://dms.example.com/docs/42/latest",
			ClientID:     "client-a",
			Purpose:      string(ledger.PurposeStatement),
			Actor:        "dms",
		},
		"unknown purpose": {
			ArtifactKind: string(ledger.ArtifactKindFrozenArtifact),
			ArtifactRef:  "fa_1",
			ClientID:     "client-a",
			Purpose:      "marketing",
			Actor:        "dms",
		},
		"subject of the wrong kind": {
			ArtifactKind: string(ledger.ArtifactKindFrozenArtifact),
			ArtifactRef:  "fa_1",
			ClientID:     "client-a",
			Purpose:      string(ledger.PurposeStatement),
			Subject:      "be_pm-1",
			Actor:        "dms",
		},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.bindings.Bind(ctx, testTenant, req)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestBindingService_ReceiveFeed(t *testing.T) {
	ctx := context.Background()

	t.Run("redelivery returns the original binding", func(t *testing.T) {
		h := newHarness(t)
		first, err := h.bindings.ReceiveFeed(ctx, testTenant, statementFeed("d-100"))
		require.NoError(t, err)
		assert.False(t, first.Redelivered)

		again, err := h.bindings.ReceiveFeed(ctx, testTenant, statementFeed("d-100"))
		require.NoError(t, err)
		assert.True(t, again.Redelivered)
		assert.Equal(t, first.Binding.ID, again.Binding.ID)
		assert.Len(t, h.store.bindings, 1)
	})

	t.Run("store dedupes when the fast path has forgotten the delivery", func(t *testing.T) {
		h := newHarness(t)
		first, err := h.bindings.ReceiveFeed(ctx, testTenant, statementFeed("d-200"))
		require.NoError(t, err)
		h.deliveries.keys = map[string]time.Time{}

		again, err := h.bindings.ReceiveFeed(ctx, testTenant, statementFeed("d-200"))
		require.NoError(t, err)
		assert.True(t, again.Redelivered)
		assert.Equal(t, first.Binding.ID, again.Binding.ID)
	})

	t.Run("content hash reference", func(t *testing.T) {
		h := newHarness(t)
		ev := statementFeed("d-300")
		ev.FrozenArtifactID = ""
		ev.FrozenArtifactHash = "sha256:" + strings.Repeat("ab", 32)

		res, err := h.bindings.ReceiveFeed(ctx, testTenant, ev)
		require.NoError(t, err)
		assert.Equal(t, string(ledger.ArtifactKindFrozenArtifact), res.Binding.Artifact.Kind)
		assert.Equal(t, ev.FrozenArtifactHash, res.Binding.Artifact.ID)
	})

	t.Run("exactly one document identifier", func(t *testing.T) {
		h := newHarness(t)
		none := statementFeed("d-400")
		none.FrozenArtifactID = ""
		_, err := h.bindings.ReceiveFeed(ctx, testTenant, none)
		assert.ErrorIs(t, err, shared.ErrValidation)

		two := statementFeed("d-401")
		two.DocumentVersionID = "dv_9"
		_, err = h.bindings.ReceiveFeed(ctx, testTenant, two)
		assert.ErrorIs(t, err, shared.ErrValidation)
		assert.Empty(t, h.store.bindings)
	})

	t.Run("supersedes turns the delivery into a rebind", func(t *testing.T) {
		h := newHarness(t)
		first, err := h.bindings.ReceiveFeed(ctx, testTenant, statementFeed("d-500"))
		require.NoError(t, err)

		ev := statementFeed("d-501")
		ev.Supersedes = first.Binding.ID
		second, err := h.bindings.ReceiveFeed(ctx, testTenant, ev)
		require.NoError(t, err)
		require.NotNil(t, second.Binding.Supersedes)
		assert.Equal(t, first.Binding.ID, *second.Binding.Supersedes)
		assert.Equal(t, "d-501", second.Binding.DeliveryID)

		old, err := h.bindings.GetBinding(ctx, testTenant, first.Binding.ID)
		require.NoError(t, err)
		require.NotNil(t, old.SupersededBy)
		assert.Equal(t, second.Binding.ID, *old.SupersededBy)
	})

	t.Run("supersedes must stay with the client", func(t *testing.T) {
		h := newHarness(t)
		first, err := h.bindings.ReceiveFeed(ctx, testTenant, statementFeed("d-600"))
		require.NoError(t, err)

		ev := statementFeed("d-601")
		ev.ClientID = "client-b"
		ev.Supersedes = first.Binding.ID
		_, err = h.bindings.ReceiveFeed(ctx, testTenant, ev)
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}
