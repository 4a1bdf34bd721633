package storage

import (
	"context"
	"sync"

	appledger "github.com/firmledger/backend/internal/application/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// InMemorySnapshotStore keeps compressed snapshots in a map. It backs local runs and tests.
type InMemorySnapshotStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewInMemorySnapshotStore creates an empty store
func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{objects: make(map[string][]byte)}
}

// Put stores the body unless the hash is already present
func (s *InMemorySnapshotStore) Put(_ context.Context, tenantID uuid.UUID, contentHash string, body []byte) error {
	key, err := snapshotKey("", tenantID, contentHash)
	if err != nil {
		return err
	}
	if err := verifySnapshot(contentHash, body); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; ok {
		return nil
	}
	s.objects[key] = compress(body)
	return nil
}

// Get returns the decompressed body stored under the hash
func (s *InMemorySnapshotStore) Get(_ context.Context, tenantID uuid.UUID, contentHash string) ([]byte, error) {
	key, err := snapshotKey("", tenantID, contentHash)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	stored, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, shared.ErrNotFound
	}

	body, err := decompress(stored)
	if err != nil {
		return nil, err
	}
	if err := verifySnapshot(contentHash, body); err != nil {
		return nil, err
	}
	return body, nil
}

// Len returns the number of stored snapshots
func (s *InMemorySnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

var _ appledger.SnapshotStore = (*InMemorySnapshotStore)(nil)
