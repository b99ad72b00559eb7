package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/indexcp/indexcp/internal/filex"
)

// FSStore writes assembled files into a local output directory.
type FSStore struct {
	dir string
}

func NewFSStore(dir string) (*FSStore, error) {
	if err := filex.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &FSStore{dir: dir}, nil
}

// Save writes the body to a temp file and renames it into place, so a crash
// mid-write never leaves a truncated file under the final name.
func (s *FSStore) Save(ctx context.Context, name string, body io.Reader) error {
	tmp, err := os.CreateTemp(s.dir, ".indexcp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write assembled file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	final := filepath.Join(s.dir, name)
	if err := os.Rename(tmp.Name(), final); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
