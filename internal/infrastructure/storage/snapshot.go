// Package storage keeps frozen canonical snapshots of sealed ledger records in object
// storage. Objects are addressed by content hash and compressed with zstd.
package storage

import (
	"context"
	"fmt"
	"strings"

	appledger "github.com/firmledger/backend/internal/application/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/firmledger/backend/internal/infrastructure/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Storage backends
const (
	TypeS3     = "s3"
	TypeMemory = "memory"
)

const snapshotContentType = "application/json"

// snapshotKey lays objects out per firm: <prefix><tenant>/<algorithm>/<hex>.json.zst
func snapshotKey(prefix string, tenantID uuid.UUID, contentHash string) (string, error) {
	algorithm, digest, ok := strings.Cut(contentHash, ":")
	if !ok || algorithm == "" || digest == "" || strings.ContainsAny(digest, "/.") {
		return "", shared.NewValidationError("content_hash", contentHash, "must be <algorithm>:<hex>")
	}
	return fmt.Sprintf("%s%s/%s/%s.json.zst", prefix, tenantID, algorithm, digest), nil
}

// verifySnapshot checks that a stored body still hashes to the key it was read from
func verifySnapshot(contentHash string, body []byte) error {
	if got := shared.HashBytes(body); got != contentHash {
		return fmt.Errorf("snapshot %s is corrupt: content hashes to %s", contentHash, got)
	}
	return nil
}

// NewSnapshotStore builds the snapshot store selected by the configuration
func NewSnapshotStore(ctx context.Context, cfg *config.StorageConfig, logger *zap.Logger) (appledger.SnapshotStore, error) {
	switch cfg.Type {
	case TypeS3:
		store, err := NewS3SnapshotStore(ctx, cfg, WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case TypeMemory, "":
		logger.Warn("Invoice snapshots are kept in memory and lost on restart")
		return NewInMemorySnapshotStore(), nil
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}
