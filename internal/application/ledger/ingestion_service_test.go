package ledger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestionService_Ingest(t *testing.T) {
	ctx := context.Background()

	t.Run("stores and seals a new event", func(t *testing.T) {
		h := newHarness(t)
		result, err := h.ingestion.Ingest(ctx, testTenant, timeEntryRequest("be_pm-1001", "client-a", "3", "120.00"))
		require.NoError(t, err)

		assert.False(t, result.Replayed)
		assert.Equal(t, "be_pm-1001", result.Event.ID)
		assert.NotNil(t, result.Event.Seal.SealedAt)
		assert.Contains(t, result.Event.Seal.ContentHash, shared.ContentHashPrefix)
		assert.Len(t, h.publisher.GetEventsByType(ledger.EventTypeBillableEventIngested), 1)
	})

	t.Run("replay returns the stored record", func(t *testing.T) {
		h := newHarness(t)
		first, err := h.ingestion.Ingest(ctx, testTenant, timeEntryRequest("be_pm-1002", "client-a", "3", "120.00"))
		require.NoError(t, err)

		second, err := h.ingestion.Ingest(ctx, testTenant, timeEntryRequest("be_pm-1002", "client-a", "3", "120.00"))
		require.NoError(t, err)

		assert.True(t, second.Replayed)
		assert.Equal(t, first.Event.Seal.ContentHash, second.Event.Seal.ContentHash)
		assert.Len(t, h.publisher.GetEventsByType(ledger.EventTypeBillableEventIngested), 1)
	})

	t.Run("replay with different content keeps the stored record", func(t *testing.T) {
		h := newHarness(t)
		first, err := h.ingestion.Ingest(ctx, testTenant, timeEntryRequest("be_pm-1003", "client-a", "3", "120.00"))
		require.NoError(t, err)

		second, err := h.ingestion.Ingest(ctx, testTenant, timeEntryRequest("be_pm-1003", "client-a", "9", "999.00"))
		require.NoError(t, err)

		assert.True(t, second.Replayed)
		assert.Equal(t, first.Event.Seal.ContentHash, second.Event.Seal.ContentHash)
		assert.JSONEq(t, string(first.Event.EventPayload), string(second.Event.EventPayload))
	})

	t.Run("same id in another firm is a different record", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.ingestion.Ingest(ctx, testTenant, timeEntryRequest("be_pm-1004", "client-a", "1", "100"))
		require.NoError(t, err)
		result, err := h.ingestion.Ingest(ctx, otherFirm, timeEntryRequest("be_pm-1004", "client-a", "1", "100"))
		require.NoError(t, err)
		assert.False(t, result.Replayed)
	})

	t.Run("rejects events without approval", func(t *testing.T) {
		h := newHarness(t)
		req := timeEntryRequest("be_pm-1005", "client-a", "1", "100")
		req.ApprovedBy = ""
		req.ApprovedAt = nil

		_, err := h.ingestion.Ingest(ctx, testTenant, req)
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrValidation)
		assert.Empty(t, h.store.events)
	})

	t.Run("rejects payloads that violate the event type schema", func(t *testing.T) {
		h := newHarness(t)
		req := timeEntryRequest("be_pm-1006", "client-a", "1", "100")
		req.EventPayload = json.RawMessage(`{"description":"x","hours":"two","rate":"100","currency":"EUR"}`)

		_, err := h.ingestion.Ingest(ctx, testTenant, req)
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("rejects an override amount that is not allowed", func(t *testing.T) {
		h := newHarness(t)
		req := timeEntryRequest("be_pm-1007", "client-a", "1", "100")
		amount := mustDecimal(t, "50")
		req.Overrides = &OverridesRequest{Allowed: false, Amount: &amount}

		_, err := h.ingestion.Ingest(ctx, testTenant, req)
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("rejects ids without the billable event prefix", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.ingestion.Ingest(ctx, testTenant, timeEntryRequest("inv_1", "client-a", "1", "100"))
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestIngestionService_GetBillableEvent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.ingestion.Ingest(ctx, testTenant, timeEntryRequest("be_pm-2001", "client-a", "1", "100"))
	require.NoError(t, err)

	got, err := h.ingestion.GetBillableEvent(ctx, testTenant, "be_pm-2001")
	require.NoError(t, err)
	assert.Equal(t, "client-a", got.ClientID)

	_, err = h.ingestion.GetBillableEvent(ctx, otherFirm, "be_pm-2001")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestIngestionService_RecordApproval(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	at := approvedAt

	rec, err := h.ingestion.RecordApproval(ctx, testTenant, RecordApprovalRequest{
		ClientID:     "client-a",
		EngagementID: "eng-1",
		Description:  "Out-of-scope filing",
		Quantity:     mustDecimal(t, "1"),
		UnitPrice:    mustDecimal(t, "450.00"),
		Currency:     "EUR",
		Reason:       "client request by phone",
		ApprovedBy:   "partner@firm",
		ApprovedAt:   &at,
	})
	require.NoError(t, err)

	assert.Contains(t, rec.ID, "apr_")
	assert.NotEmpty(t, rec.Seal.ContentHash)
	assert.Len(t, h.publisher.GetEventsByType(ledger.EventTypeApprovalRecorded), 1)

	_, err = h.ingestion.RecordApproval(ctx, testTenant, RecordApprovalRequest{ClientID: "client-a"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}
