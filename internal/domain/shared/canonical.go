package shared

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"github.com/zeebo/blake3"
)

// ContentHashPrefix is the algorithm tag carried by every content hash
const ContentHashPrefix = "blake3:"

// Canonicalize returns the RFC 8785 canonical JSON encoding of v
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: jcs: %w", err)
	}
	return out, nil
}

// ContentHash returns the BLAKE3 digest of the canonical JSON of v as "blake3:<hex>"
func ContentHash(v any) (string, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return HashBytes(canonical), nil
}

// HashBytes returns the tagged BLAKE3 digest of raw bytes
func HashBytes(b []byte) string {
	sum := blake3.Sum256(b)
	return ContentHashPrefix + hex.EncodeToString(sum[:])
}
