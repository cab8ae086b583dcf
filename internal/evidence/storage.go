// Package evidence abstracts blob storage for work-submission photos. The
// engine only ever stores the returned reference, never the blob.
package evidence

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type Store interface {
	// Put uploads a blob and returns a stable reference URL.
	Put(ctx context.Context, blob []byte, contentType string) (string, error)
}

// MemoryStore keeps blobs in memory. Used in tests and local development.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Put(_ context.Context, blob []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := fmt.Sprintf("evidence://%s", uuid.New())
	cp := make([]byte, len(blob))
	copy(cp, blob)
	s.blobs[ref] = cp
	return ref, nil
}
