// Package ledger is the receiver's durable record of accepted chunks. It
// provides idempotent, order-independent acceptance and the status answers
// the client resumes from.
package ledger

import "context"

// Outcome tags the result of an accept call. Duplicates are a normal part of
// the protocol (client retries, redundant resends), not errors.
type Outcome int

const (
	Accepted Outcome = iota
	Duplicate
)

func (o Outcome) String() string {
	if o == Duplicate {
		return "duplicate"
	}
	return "accepted"
}

// Repository persists (fileKey, chunkIndex) -> payload records. The ledger
// row and the payload commit together or not at all.
type Repository interface {
	// Accept records a chunk. inserted=false means the pair already existed
	// and nothing was written.
	Accept(ctx context.Context, fileKey string, index uint64, payload []byte) (inserted bool, err error)

	// Received returns the accepted indices for fileKey, sorted ascending.
	Received(ctx context.Context, fileKey string) ([]uint64, error)

	// Payload returns the stored payload for one chunk, or
	// common.ErrNotFound.
	Payload(ctx context.Context, fileKey string, index uint64) ([]byte, error)

	// DeleteFile removes every record for fileKey. Part of explicit cleanup
	// after assembly; never called while a transfer is active.
	DeleteFile(ctx context.Context, fileKey string) error
}
