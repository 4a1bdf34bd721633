package shared

import (
	"time"
)

// Seal marks a record write-once. A record is sealed after its first successful
// persist, and from then on every write path must reject it.
type Seal struct {
	SealedAt    *time.Time
	ContentHash string
}

// IsSealed reports whether the record has been sealed
func (s Seal) IsSealed() bool {
	return s.SealedAt != nil
}

// Apply seals the record with its content hash. Sealing twice is an immutability violation.
func (s *Seal) Apply(kind IDKind, id ImmutableID, contentHash string, at time.Time) error {
	if s.IsSealed() {
		return NewImmutabilityViolation(kind, id, "seal")
	}
	sealedAt := at
	s.SealedAt = &sealedAt
	s.ContentHash = contentHash
	return nil
}

// EnsureWritable returns an ImmutabilityViolation when the record is sealed
func (s Seal) EnsureWritable(kind IDKind, id ImmutableID, operation string) error {
	if s.IsSealed() {
		return NewImmutabilityViolation(kind, id, operation)
	}
	return nil
}

// Sealable is implemented by every write-once ledger record
type Sealable interface {
	SealState() Seal
	// CanonicalView returns the value whose canonical hash is the record's content hash
	CanonicalView() any
}

// SealRecord hashes the canonical view of r and applies the seal
func SealRecord(kind IDKind, id ImmutableID, seal *Seal, view any, at time.Time) error {
	if err := seal.EnsureWritable(kind, id, "seal"); err != nil {
		return err
	}
	hash, err := ContentHash(view)
	if err != nil {
		return err
	}
	return seal.Apply(kind, id, hash, at)
}

// VerifySeal recomputes the content hash of a sealed record and compares it with the stored one
func VerifySeal(r Sealable) (bool, error) {
	seal := r.SealState()
	if !seal.IsSealed() {
		return false, nil
	}
	hash, err := ContentHash(r.CanonicalView())
	if err != nil {
		return false, err
	}
	return hash == seal.ContentHash, nil
}
