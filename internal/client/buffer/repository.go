package buffer

import "context"

// Repository is the persistence contract of the chunk buffer. Implementations
// must make each write atomic: a chunk is either fully stored with its
// payload or absent, never observable half-written.
type Repository interface {
	// Insert stores a chunk. Returns common.ErrDuplicateChunk when a chunk
	// with the same (fileID, index) already exists and overwrite is false.
	Insert(ctx context.Context, c *Chunk, overwrite bool) error

	// ListPending returns pending chunks for fileID ordered by index ascending.
	ListPending(ctx context.Context, fileID string) ([]*Chunk, error)

	// Count returns the total number of chunks buffered for fileID,
	// regardless of status.
	Count(ctx context.Context, fileID string) (int, error)

	// MarkUploaded transitions a chunk to uploaded. Marking an
	// already-uploaded chunk is a no-op.
	MarkUploaded(ctx context.Context, chunkID string) error

	// PurgeUploaded deletes all uploaded chunks for fileID.
	PurgeUploaded(ctx context.Context, fileID string) error

	// Files lists the distinct file ids present in the buffer.
	Files(ctx context.Context) ([]string, error)

	// Clear removes every chunk from the buffer.
	Clear(ctx context.Context) error
}
