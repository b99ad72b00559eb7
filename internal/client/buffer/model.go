// Package buffer implements the client-side persistent chunk buffer: the
// queue of pending chunks for each file, backed by a sqlite database so an
// interrupted upload survives process restarts.
package buffer

// Status of a buffered chunk. The transition is monotonic:
// pending -> uploaded; an uploaded chunk is only removed, never re-queued.
type Status int

const (
	StatusPending Status = iota
	StatusUploaded
)

// Chunk is one buffered slice of a file.
type Chunk struct {
	ID      string
	FileID  string
	Index   uint64
	Payload []byte
	Status  Status
}
