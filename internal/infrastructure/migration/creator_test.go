package migration

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add invoice notes", "add_invoice_notes"},
		{"Add-Invoice-Notes", "add_invoice_notes"},
		{"ADD__INVOICE__NOTES", "add_invoice_notes"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration_Sequential(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first, err := CreateMigration(dir, "add invoice notes", "Free text on invoices", now)
	require.NoError(t, err)
	assert.Equal(t, uint(1), first.Version)
	assert.Equal(t, filepath.Join(dir, "000001_add_invoice_notes.up.sql"), first.UpPath)

	body, err := os.ReadFile(first.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "-- add_invoice_notes")
	assert.Contains(t, string(body), "2026-03-01T09:00:00Z")
	assert.Contains(t, string(body), "-- Free text on invoices")
	assert.FileExists(t, first.DownPath)

	second, err := CreateMigration(dir, "index bindings", "", now)
	require.NoError(t, err)
	assert.Equal(t, uint(2), second.Version)

	_, err = CreateMigration(dir, "!!!", "", now)
	assert.Error(t, err)
}

func TestListMigrations(t *testing.T) {
	files := fstest.MapFS{
		"000002_guards.up.sql":   {},
		"000001_tables.up.sql":   {},
		"000001_tables.down.sql": {},
		"README.md":              {},
		"notes.sql":              {},
	}
	entries, err := ListMigrations(files)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Version: 1, Name: "tables", HasDown: true}, entries[0])
	assert.Equal(t, Entry{Version: 2, Name: "guards"}, entries[1])
}

func TestEmbedded(t *testing.T) {
	entries, err := Embedded()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 2)
	for i, e := range entries {
		assert.Equal(t, uint(i+1), e.Version, "versions have no gaps")
		assert.True(t, e.HasDown, "%s has a down migration", e.Name)
	}
}
