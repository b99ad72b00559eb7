package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/indexcp/indexcp/internal/common"
)

// InMemoryRepository keeps the ledger in process memory. Conforming for
// single-process receivers and the default in tests; durability across
// restarts requires the postgres backend.
type InMemoryRepository struct {
	mu    sync.Mutex
	files map[string]map[uint64][]byte
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{files: make(map[string]map[uint64][]byte)}
}

func (r *InMemoryRepository) Accept(ctx context.Context, fileKey string, index uint64, payload []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chunks, ok := r.files[fileKey]
	if !ok {
		chunks = make(map[uint64][]byte)
		r.files[fileKey] = chunks
	}

	if _, exists := chunks[index]; exists {
		return false, nil
	}

	chunks[index] = append([]byte(nil), payload...)
	return true, nil
}

func (r *InMemoryRepository) Received(ctx context.Context, fileKey string) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chunks := r.files[fileKey]
	out := make([]uint64, 0, len(chunks))
	for i := range chunks {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out, nil
}

func (r *InMemoryRepository) Payload(ctx context.Context, fileKey string, index uint64) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload, ok := r.files[fileKey][index]
	if !ok {
		return nil, common.ErrNotFound
	}
	return append([]byte(nil), payload...), nil
}

func (r *InMemoryRepository) DeleteFile(ctx context.Context, fileKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, fileKey)
	return nil
}
