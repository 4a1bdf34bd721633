package shared

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// IDKind identifies which ledger record an ImmutableID belongs to
type IDKind string

const (
	KindBillableEvent   IDKind = "billable_event"
	KindApprovalRecord  IDKind = "approval_record"
	KindDocumentVersion IDKind = "document_version"
	KindFrozenArtifact  IDKind = "frozen_artifact"
	KindQuote           IDKind = "quote"
	KindAcceptance      IDKind = "acceptance"
	KindInvoice         IDKind = "invoice"
	KindInvoiceLine     IDKind = "invoice_line"
	KindAdjustment      IDKind = "adjustment"
	KindBindingEvent    IDKind = "binding_event"
)

var kindPrefixes = map[IDKind]string{
	KindBillableEvent:   "be",
	KindApprovalRecord:  "apr",
	KindDocumentVersion: "dv",
	KindFrozenArtifact:  "fa",
	KindQuote:           "qt",
	KindAcceptance:      "acc",
	KindInvoice:         "inv",
	KindInvoiceLine:     "ln",
	KindAdjustment:      "adj",
	KindBindingEvent:    "bnd",
}

var (
	idSuffixPattern     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)
	contentAddrPattern  = regexp.MustCompile(`^(sha256|blake3):[0-9a-f]{64}$`)
	maxImmutableIDBytes = 160
)

// ImmutableID is a prefixed identifier that never changes once assigned.
// Format: <prefix>_<suffix> or <prefix>-<suffix>. Frozen artifacts may also be
// content addressed as sha256:<hex> or blake3:<hex>.
type ImmutableID string

// String returns the raw identifier
func (id ImmutableID) String() string {
	return string(id)
}

// IsZero reports whether the identifier is empty
func (id ImmutableID) IsZero() bool {
	return id == ""
}

// Prefix returns the registered prefix for a kind
func (k IDKind) Prefix() string {
	return kindPrefixes[k]
}

// IsValid reports whether the kind is one of the known kinds
func (k IDKind) IsValid() bool {
	_, ok := kindPrefixes[k]
	return ok
}

// AllocateID generates a new identifier for the given kind
func AllocateID(kind IDKind) ImmutableID {
	prefix, ok := kindPrefixes[kind]
	if !ok {
		panic(fmt.Sprintf("AllocateID called with unknown kind %q", kind))
	}
	u, err := uuid.NewV7()
	if err != nil {
		u = uuid.New()
	}
	return ImmutableID(prefix + "_" + u.String())
}

// KindOf recognizes the kind of a raw identifier
func KindOf(raw string) (IDKind, bool) {
	if len(raw) == 0 || len(raw) > maxImmutableIDBytes {
		return "", false
	}
	if contentAddrPattern.MatchString(raw) {
		return KindFrozenArtifact, true
	}
	sep := strings.IndexAny(raw, "_-")
	if sep <= 0 {
		return "", false
	}
	prefix, suffix := raw[:sep], raw[sep+1:]
	if !idSuffixPattern.MatchString(suffix) {
		return "", false
	}
	for kind, p := range kindPrefixes {
		if p == prefix {
			return kind, true
		}
	}
	return "", false
}

// ParseID validates that raw is a well-formed identifier of the expected kind
func ParseID(kind IDKind, raw string) (ImmutableID, error) {
	raw = strings.TrimSpace(raw)
	got, ok := KindOf(raw)
	if !ok {
		return "", NewValidationError(string(kind), raw, "identifier is not a recognized immutable id")
	}
	if got != kind {
		return "", NewValidationError(string(kind), raw,
			fmt.Sprintf("identifier is a %s id, expected %s", got, kind))
	}
	return ImmutableID(raw), nil
}

// MustParseID is ParseID for identifiers known to be valid. It panics otherwise.
func MustParseID(kind IDKind, raw string) ImmutableID {
	id, err := ParseID(kind, raw)
	if err != nil {
		panic(err)
	}
	return id
}
