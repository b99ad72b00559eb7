// Package blob stores assembled files once a transfer finalizes. Two
// backends: a local directory and an S3-compatible bucket.
package blob

import (
	"context"
	"io"
)

// Store receives the assembled plaintext of a completed transfer.
type Store interface {
	// Save streams the assembled file body under name.
	Save(ctx context.Context, name string, body io.Reader) error
}
