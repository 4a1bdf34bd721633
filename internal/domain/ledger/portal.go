package ledger

import (
	"time"

	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PortalArtifactType is the closed set of artifact types a client may see
type PortalArtifactType string

const (
	PortalInvoice        PortalArtifactType = "invoice"
	PortalStatement      PortalArtifactType = "statement"
	PortalSignedProposal PortalArtifactType = "signed_proposal"
	PortalRequest        PortalArtifactType = "request"
	PortalDeliverable    PortalArtifactType = "deliverable"
)

// portalPurposes is the allow-list of bound document purposes that reach the portal.
// Purposes without an entry never appear there.
var portalPurposes = map[DocumentPurpose]PortalArtifactType{
	PurposeStatement:      PortalStatement,
	PurposeSignedProposal: PortalSignedProposal,
	PurposeRequest:        PortalRequest,
	PurposeDeliverable:    PortalDeliverable,
}

// PortalTypeForPurpose maps a document purpose to its portal type
func PortalTypeForPurpose(p DocumentPurpose) (PortalArtifactType, bool) {
	t, ok := portalPurposes[p]
	return t, ok
}

// PortalPurposes returns the purposes that map to a portal type
func PortalPurposes() []DocumentPurpose {
	return []DocumentPurpose{PurposeStatement, PurposeSignedProposal, PurposeRequest, PurposeDeliverable}
}

// IsValid checks if the type is in the closed portal set
func (t PortalArtifactType) IsValid() bool {
	switch t {
	case PortalInvoice, PortalStatement, PortalSignedProposal, PortalRequest, PortalDeliverable:
		return true
	}
	return false
}

// PortalArtifact is a read-only, client-scoped projection of an underlying artifact
type PortalArtifact struct {
	Type        PortalArtifactType
	SourceID    shared.ImmutableID
	ClientID    string
	DocumentRef *ArtifactRef
	IssuedAt    time.Time
	Currency    string
	Total       *decimal.Decimal
	NetTotal    *decimal.Decimal
}

// InvoicePortalArtifact projects a finalized invoice
func InvoicePortalArtifact(inv *Invoice, adjustments []Adjustment) (PortalArtifact, bool) {
	if !inv.IsFinalized() || inv.FinalizedAt == nil {
		return PortalArtifact{}, false
	}
	total := inv.Total()
	net := NetTotal(total, adjustments)
	return PortalArtifact{
		Type:     PortalInvoice,
		SourceID: inv.ID,
		ClientID: inv.ClientID,
		IssuedAt: *inv.FinalizedAt,
		Currency: inv.Currency,
		Total:    &total,
		NetTotal: &net,
	}, true
}

// BindingPortalArtifact projects an active binding whose purpose is client facing
func BindingPortalArtifact(b *BindingEvent) (PortalArtifact, bool) {
	if !b.IsActive() {
		return PortalArtifact{}, false
	}
	t, ok := PortalTypeForPurpose(b.Purpose)
	if !ok {
		return PortalArtifact{}, false
	}
	ref := b.Artifact
	return PortalArtifact{
		Type:        t,
		SourceID:    b.ID,
		ClientID:    b.ClientID,
		DocumentRef: &ref,
		IssuedAt:    b.BoundAt,
	}, true
}
