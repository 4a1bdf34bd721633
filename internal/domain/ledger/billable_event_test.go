package ledger

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helpers
var (
	testFirm   = uuid.MustParse("0190a6f5-8a5e-7c1b-9a44-2f3e4d5c6b7a")
	testNow    = time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	approvedOn = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
)

func timeEntryInput(id, clientID string) NewBillableEventInput {
	at := approvedOn
	return NewBillableEventInput{
		ID:           id,
		ClientID:     clientID,
		EngagementID: "eng-1",
		EventType:    string(EventTypeTimeEntry),
		Payload:      json.RawMessage(`{"description":"Advisory work","hours":"2","rate":"150.00","currency":"EUR"}`),
		ApprovedBy:   "partner@firm",
		ApprovedAt:   &at,
	}
}

func newTestEvent(t *testing.T, id, clientID string) *BillableEvent {
	t.Helper()
	ev, err := NewBillableEvent(testFirm, timeEntryInput(id, clientID), testNow)
	require.NoError(t, err)
	return ev
}

func TestNewBillableEvent(t *testing.T) {
	ev := newTestEvent(t, "be_pm-1", "client-a")
	assert.Equal(t, shared.ImmutableID("be_pm-1"), ev.ID)
	assert.True(t, ev.Seal.IsSealed())
	assert.Equal(t, "eng-1", ev.Anchor())

	ok, err := shared.VerifySeal(ev)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("payload whitespace and key order do not change the hash", func(t *testing.T) {
		in := timeEntryInput("be_pm-1", "client-a")
		in.Payload = json.RawMessage(`{ "currency":"EUR", "rate":"150.00", "hours":"2",  "description":"Advisory work" }`)
		other, err := NewBillableEvent(testFirm, in, testNow)
		require.NoError(t, err)
		assert.Equal(t, ev.Seal.ContentHash, other.Seal.ContentHash)
	})

	t.Run("project anchor is enough", func(t *testing.T) {
		in := timeEntryInput("be_pm-2", "client-a")
		in.EngagementID = ""
		in.ProjectID = "proj-9"
		other, err := NewBillableEvent(testFirm, in, testNow)
		require.NoError(t, err)
		assert.Equal(t, "proj-9", other.Anchor())
	})
}

func TestNewBillableEvent_Validation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(in *NewBillableEventInput)
		field string
	}{
		{"bad id", func(in *NewBillableEventInput) { in.ID = "inv_1" }, "billable_event"},
		{"no client", func(in *NewBillableEventInput) { in.ClientID = " " }, "client_id"},
		{"no anchor", func(in *NewBillableEventInput) { in.EngagementID = "" }, "engagement_id"},
		{"no approver", func(in *NewBillableEventInput) { in.ApprovedBy = "" }, "approved_by"},
		{"no approval time", func(in *NewBillableEventInput) { in.ApprovedAt = nil }, "approved_at"},
		{"unknown type", func(in *NewBillableEventInput) { in.EventType = "bonus" }, "event_type"},
		{"payload misses rate", func(in *NewBillableEventInput) {
			in.Payload = json.RawMessage(`{"description":"x","hours":"2","currency":"EUR"}`)
		}, "event_payload"},
		{"payload amount is a number", func(in *NewBillableEventInput) {
			in.Payload = json.RawMessage(`{"description":"x","hours":2,"rate":"1","currency":"EUR"}`)
		}, "event_payload"},
		{"override without justification", func(in *NewBillableEventInput) {
			amount := decimal.NewFromInt(10)
			in.Overrides = &Overrides{Allowed: true, ApprovedBy: "partner@firm", Amount: &amount}
		}, "overrides.justification"},
		{"amount without permission", func(in *NewBillableEventInput) {
			amount := decimal.NewFromInt(10)
			in.Overrides = &Overrides{Amount: &amount}
		}, "overrides.amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := timeEntryInput("be_pm-1", "client-a")
			tt.edit(&in)
			_, err := NewBillableEvent(testFirm, in, testNow)
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrValidation)

			var verrs shared.ValidationErrors
			require.True(t, errors.As(err, &verrs))
			fields := make([]string, 0, len(verrs))
			for _, v := range verrs {
				fields = append(fields, v.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestBillableEvent_AsTrigger(t *testing.T) {
	tests := []struct {
		eventType EventType
		payload   string
		amount    string
		quantity  string
	}{
		{EventTypeTimeEntry, `{"description":"Audit","hours":"1.5","rate":"200","currency":"EUR"}`, "300", "1.5"},
		{EventTypeMilestone, `{"milestone":"Year-end close","amount":"2500","currency":"EUR"}`, "2500", "1"},
		{EventTypeExpense, `{"description":"Courier","amount":"42.10","currency":"EUR","receipt_ref":"r-1"}`, "42.1", "1"},
		{EventTypeFixedFee, `{"description":"Payroll","amount":"900","currency":"EUR"}`, "900", "1"},
	}
	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			in := timeEntryInput("be_pm-1", "client-a")
			in.EventType = string(tt.eventType)
			in.Payload = json.RawMessage(tt.payload)
			ev, err := NewBillableEvent(testFirm, in, testNow)
			require.NoError(t, err)

			src, err := ev.AsTrigger()
			require.NoError(t, err)
			assert.Equal(t, TriggerKindBillableEvent, src.Ref.Kind)
			assert.Equal(t, "EUR", src.Basis.Currency)
			assert.True(t, decimal.RequireFromString(tt.amount).Equal(src.Basis.Amount()), "amount %s", src.Basis.Amount())
			assert.True(t, decimal.RequireFromString(tt.quantity).Equal(src.Basis.Quantity))
		})
	}
}

func TestTriggerRef(t *testing.T) {
	ref, err := NewTriggerRef(TriggerKindApprovalRecord, "apr_7")
	require.NoError(t, err)
	assert.Equal(t, "approval_record:apr_7", ref.Key())

	_, err = NewTriggerRef(TriggerKindApprovalRecord, "be_7")
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = NewTriggerRef("timesheet", "be_7")
	assert.ErrorIs(t, err, shared.ErrValidation)

	parsed, err := ParseTriggerRef("be_pm-7")
	require.NoError(t, err)
	assert.Equal(t, TriggerKindBillableEvent, parsed.Kind)
	_, err = ParseTriggerRef("inv_7")
	assert.ErrorIs(t, err, shared.ErrValidation)
}
