package ledger

import (
	"strings"
	"time"

	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// ArtifactKind is the closed set of immutable document identifiers a binding may reference
type ArtifactKind string

const (
	ArtifactKindDocumentVersion ArtifactKind = "document_version"
	ArtifactKindFrozenArtifact  ArtifactKind = "frozen_artifact"
)

// IDKind returns the identifier kind of the artifact
func (k ArtifactKind) IDKind() (shared.IDKind, bool) {
	switch k {
	case ArtifactKindDocumentVersion:
		return shared.KindDocumentVersion, true
	case ArtifactKindFrozenArtifact:
		return shared.KindFrozenArtifact, true
	}
	return "", false
}

// ArtifactRef references exactly one DocumentVersion or FrozenArtifact
type ArtifactRef struct {
	Kind ArtifactKind
	ID   shared.ImmutableID
}

// NewArtifactRef rejects references that are not a recognized immutable id of the declared kind
func NewArtifactRef(kind ArtifactKind, raw string) (ArtifactRef, error) {
	idKind, ok := kind.IDKind()
	if !ok {
		return ArtifactRef{}, shared.NewValidationError("kind", string(kind), "must be document_version or frozen_artifact")
	}
	id, err := shared.ParseID(idKind, raw)
	if err != nil {
		return ArtifactRef{}, err
	}
	return ArtifactRef{Kind: kind, ID: id}, nil
}

// DocumentPurpose says what a bound document is for. Only some purposes are client facing.
type DocumentPurpose string

const (
	PurposeStatement      DocumentPurpose = "statement"
	PurposeSignedProposal DocumentPurpose = "signed_proposal"
	PurposeRequest        DocumentPurpose = "request"
	PurposeDeliverable    DocumentPurpose = "deliverable"
	PurposeInternalNote   DocumentPurpose = "internal_note"
	PurposeAdminReport    DocumentPurpose = "admin_report"
	PurposeWorkingDraft   DocumentPurpose = "working_draft"
)

// IsValid checks if the purpose is one of the known purposes
func (p DocumentPurpose) IsValid() bool {
	switch p {
	case PurposeStatement, PurposeSignedProposal, PurposeRequest, PurposeDeliverable,
		PurposeInternalNote, PurposeAdminReport, PurposeWorkingDraft:
		return true
	}
	return false
}

// BindingEvent links a business artifact to one immutable document identifier.
// Historical bindings are never edited; SupersededBy is an additive pointer set at most once.
type BindingEvent struct {
	shared.BaseEntity
	Artifact     ArtifactRef
	ClientID     string
	Purpose      DocumentPurpose
	Subject      shared.ImmutableID
	Actor        string
	BoundAt      time.Time
	DeliveryID   string
	Supersedes   *shared.ImmutableID
	SupersededBy *shared.ImmutableID
	Seal         shared.Seal
}

// NewBindingInput holds the fields of a binding
type NewBindingInput struct {
	Artifact   ArtifactRef
	ClientID   string
	Purpose    DocumentPurpose
	Subject    string
	Actor      string
	BoundAt    time.Time
	DeliveryID string
}

// NewBindingEvent validates and seals a binding
func NewBindingEvent(tenantID uuid.UUID, in NewBindingInput, now time.Time) (*BindingEvent, error) {
	return newBindingEvent(tenantID, in, nil, now)
}

func newBindingEvent(tenantID uuid.UUID, in NewBindingInput, supersedes *shared.ImmutableID, now time.Time) (*BindingEvent, error) {
	var errs shared.ValidationErrors
	if _, ok := in.Artifact.Kind.IDKind(); !ok || in.Artifact.ID.IsZero() {
		errs = append(errs, shared.NewValidationError("artifact_ref", in.Artifact.ID.String(), "a document version or frozen artifact is required"))
	}
	if strings.TrimSpace(in.ClientID) == "" {
		errs = append(errs, shared.NewValidationError("client_id", "", "required"))
	}
	if !in.Purpose.IsValid() {
		errs = append(errs, shared.NewValidationError("purpose", string(in.Purpose), "unknown document purpose"))
	}
	if strings.TrimSpace(in.Actor) == "" {
		errs = append(errs, shared.NewValidationError("actor", "", "required"))
	}
	var subject shared.ImmutableID
	if s := strings.TrimSpace(in.Subject); s != "" {
		kind, ok := shared.KindOf(s)
		switch {
		case !ok:
			errs = append(errs, shared.NewValidationError("subject", s, "not a recognized immutable id"))
		case kind != shared.KindQuote && kind != shared.KindAcceptance && kind != shared.KindInvoice:
			errs = append(errs, shared.NewValidationError("subject", s, "subject must be a quote, acceptance or invoice"))
		default:
			subject = shared.ImmutableID(s)
		}
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	now = NormalizeTime(now)
	boundAt := now
	if !in.BoundAt.IsZero() {
		boundAt = NormalizeTime(in.BoundAt)
	}
	b := &BindingEvent{
		BaseEntity: shared.NewBaseEntity(shared.KindBindingEvent, tenantID, now),
		Artifact:   in.Artifact,
		ClientID:   strings.TrimSpace(in.ClientID),
		Purpose:    in.Purpose,
		Subject:    subject,
		Actor:      strings.TrimSpace(in.Actor),
		BoundAt:    boundAt,
		DeliveryID: strings.TrimSpace(in.DeliveryID),
		Supersedes: supersedes,
	}
	if err := shared.SealRecord(shared.KindBindingEvent, b.ID, &b.Seal, b.CanonicalView(), now); err != nil {
		return nil, err
	}
	return b, nil
}

// NewRebinding creates the binding that replaces old. The old record is not modified here;
// the store sets its superseded_by pointer in the same transaction.
func NewRebinding(old *BindingEvent, artifact ArtifactRef, actor string, deliveryID string, now time.Time) (*BindingEvent, error) {
	if old.SupersededBy != nil {
		return nil, shared.NewImmutabilityViolation(shared.KindBindingEvent, old.ID, "rebind superseded binding")
	}
	oldID := old.ID
	return newBindingEvent(old.TenantID, NewBindingInput{
		Artifact:   artifact,
		ClientID:   old.ClientID,
		Purpose:    old.Purpose,
		Subject:    old.Subject.String(),
		Actor:      actor,
		DeliveryID: deliveryID,
	}, &oldID, now)
}

// MarkSupersededBy sets the additive superseded_by pointer exactly once
func (b *BindingEvent) MarkSupersededBy(next shared.ImmutableID) error {
	if b.SupersededBy != nil {
		return shared.NewImmutabilityViolation(shared.KindBindingEvent, b.ID, "set superseded_by")
	}
	b.SupersededBy = &next
	return nil
}

// IsActive reports whether no later binding supersedes this one
func (b *BindingEvent) IsActive() bool {
	return b.SupersededBy == nil
}

// CanonicalView returns the hashed content. The superseded_by pointer is additive and not content.
func (b *BindingEvent) CanonicalView() any {
	supersedes := ""
	if b.Supersedes != nil {
		supersedes = b.Supersedes.String()
	}
	return map[string]string{
		"id":            b.ID.String(),
		"tenant_id":     b.TenantID.String(),
		"artifact_kind": string(b.Artifact.Kind),
		"artifact_id":   b.Artifact.ID.String(),
		"client_id":     b.ClientID,
		"purpose":       string(b.Purpose),
		"subject":       b.Subject.String(),
		"actor":         b.Actor,
		"bound_at":      formatTime(b.BoundAt),
		"delivery_id":   b.DeliveryID,
		"supersedes":    supersedes,
	}
}

// SealState returns the seal of the binding
func (b *BindingEvent) SealState() shared.Seal {
	return b.Seal
}
