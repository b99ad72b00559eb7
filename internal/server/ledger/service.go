package ledger

import (
	"context"
	"fmt"
	"io"

	"github.com/indexcp/indexcp/internal/common"
	"github.com/indexcp/indexcp/internal/logging"
	"github.com/indexcp/indexcp/internal/server/blob"
)

// Service layers transfer semantics over the repository: tagged accept
// outcomes, status queries, and finalize-with-assembly.
type Service struct {
	repo Repository
	blob blob.Store
	log  logging.Logger
}

func NewService(repo Repository, store blob.Store, log logging.Logger) *Service {
	return &Service{repo: repo, blob: store, log: log}
}

// Accept records one decrypted chunk. Re-sends of an already-recorded chunk
// resolve to Duplicate without touching the stored payload, which is what
// makes client retries and out-of-order resends safe.
func (s *Service) Accept(ctx context.Context, fileKey string, index uint64, payload []byte) (Outcome, error) {
	inserted, err := s.repo.Accept(ctx, fileKey, index, payload)
	if err != nil {
		return Duplicate, fmt.Errorf("accept chunk %d of %s: %w", index, fileKey, err)
	}
	if !inserted {
		s.log.Debug(ctx, "duplicate chunk ignored", "file", fileKey, "index", index)
		return Duplicate, nil
	}
	return Accepted, nil
}

// StatusOf returns the sorted indices accepted so far for fileKey.
func (s *Service) StatusOf(ctx context.Context, fileKey string) ([]uint64, error) {
	received, err := s.repo.Received(ctx, fileKey)
	if err != nil {
		return nil, fmt.Errorf("status of %s: %w", fileKey, err)
	}
	return received, nil
}

// Finalize verifies the ledger holds exactly {0..expected-1}, streams the
// chunks in order into the blob store, and then deletes the ledger records.
// An incomplete index set yields common.ErrIncompleteTransfer and leaves
// everything in place for the client to resume.
//
// A name with no ledger records cannot be finalized: after a successful
// finalize the records are gone, and accepting a second expected=0 request
// would overwrite the assembled file with zero bytes.
func (s *Service) Finalize(ctx context.Context, fileKey string, expected uint64) error {
	received, err := s.repo.Received(ctx, fileKey)
	if err != nil {
		return fmt.Errorf("finalize %s: %w", fileKey, err)
	}

	if len(received) == 0 {
		return fmt.Errorf("%w: no chunks recorded for %s", common.ErrNotFound, fileKey)
	}

	if missing := missingIndices(received, expected); len(missing) > 0 {
		return fmt.Errorf("%w: %s is missing %d of %d chunks (first missing %d)",
			common.ErrIncompleteTransfer, fileKey, len(missing), expected, missing[0])
	}

	if err := s.blob.Save(ctx, fileKey, newChunkReader(ctx, s.repo, fileKey, expected)); err != nil {
		return fmt.Errorf("assemble %s: %w", fileKey, err)
	}

	if err := s.repo.DeleteFile(ctx, fileKey); err != nil {
		return fmt.Errorf("cleanup %s: %w", fileKey, err)
	}

	s.log.Info(ctx, "transfer finalized", "file", fileKey, "chunks", expected)
	return nil
}

// missingIndices reports which of {0..expected-1} are absent from the sorted
// received slice. Indices beyond the expected range also make the set
// invalid: the client and receiver disagree about the file.
func missingIndices(received []uint64, expected uint64) []uint64 {
	present := make(map[uint64]bool, len(received))
	for _, i := range received {
		if i >= expected {
			return []uint64{i}
		}
		present[i] = true
	}

	var missing []uint64
	for i := uint64(0); i < expected; i++ {
		if !present[i] {
			missing = append(missing, i)
		}
	}
	return missing
}

// chunkReader streams chunk payloads in index order without holding the
// whole file in memory.
type chunkReader struct {
	ctx     context.Context
	repo    Repository
	fileKey string
	total   uint64

	next uint64
	buf  []byte
	err  error
}

func newChunkReader(ctx context.Context, repo Repository, fileKey string, total uint64) io.Reader {
	return &chunkReader{ctx: ctx, repo: repo, fileKey: fileKey, total: total}
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}

	for len(r.buf) == 0 {
		if r.next >= r.total {
			r.err = io.EOF
			return 0, io.EOF
		}
		payload, err := r.repo.Payload(r.ctx, r.fileKey, r.next)
		if err != nil {
			r.err = fmt.Errorf("read chunk %d: %w", r.next, err)
			return 0, r.err
		}
		r.next++
		r.buf = payload
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
