package shared

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateID(t *testing.T) {
	seen := make(map[ImmutableID]bool)
	for _, kind := range []IDKind{KindBillableEvent, KindQuote, KindInvoice, KindInvoiceLine, KindBindingEvent} {
		id := AllocateID(kind)
		assert.True(t, strings.HasPrefix(id.String(), kind.Prefix()+"_"))
		got, ok := KindOf(id.String())
		require.True(t, ok)
		assert.Equal(t, kind, got)
		assert.False(t, seen[id])
		seen[id] = true
	}

	assert.Panics(t, func() { AllocateID("payment") })
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		raw  string
		kind IDKind
		ok   bool
	}{
		{"be_pm-4471", KindBillableEvent, true},
		{"be-4471", KindBillableEvent, true},
		{"apr_01HV", KindApprovalRecord, true},
		{"dv_engagement-letter-v2", KindDocumentVersion, true},
		{"fa_statement.pdf", KindFrozenArtifact, true},
		{"sha256:" + strings.Repeat("a1", 32), KindFrozenArtifact, true},
		{"blake3:" + strings.Repeat("0f", 32), KindFrozenArtifact, true},
		{"sha256:" + strings.Repeat("A1", 32), "", false},
		{"md5:" + strings.Repeat("a1", 16), "", false},
		{"https://dms.example.com/docs/42/latest", "", false},
		{"zz_123", "", false},
		{"be_", "", false},
		{"_123", "", false},
		{"be_has space", "", false},
		{"be_" + strings.Repeat("x", 200), "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			kind, ok := KindOf(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestParseID(t *testing.T) {
	id, err := ParseID(KindInvoice, "  inv_2026-0042 ")
	require.NoError(t, err)
	assert.Equal(t, ImmutableID("inv_2026-0042"), id)

	_, err = ParseID(KindInvoice, "qt_2026-0042")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "invoice", verr.Field)
	assert.Contains(t, verr.Error(), "expected invoice")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseID(KindInvoice, "latest")
	assert.ErrorIs(t, err, ErrValidation)

	assert.Panics(t, func() { MustParseID(KindQuote, "nope") })
}
