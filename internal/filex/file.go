// Package filex contains small filesystem helpers: directory creation and
// fixed-size file splitting for the chunk buffer.
package filex

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EnsureDir creates dir (and parents) with restrictive permissions.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

// HomeSubDir returns ~/<parts...>, creating it if necessary.
func HomeSubDir(parts ...string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}

	dir := filepath.Join(append([]string{home}, parts...)...)
	if err := EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// SplitFile reads path in chunkSize slices and calls fn for each slice with
// its zero-based index. The payload passed to fn is only valid for the
// duration of the call. Returns the number of chunks produced; an empty file
// produces zero chunks.
func SplitFile(path string, chunkSize int, fn func(index int, payload []byte) error) (int, error) {
	if chunkSize <= 0 {
		return 0, fmt.Errorf("invalid chunk size: %d", chunkSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	index := 0
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			if err := fn(index, buf[:n]); err != nil {
				return index, err
			}
			index++
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return index, nil
		}
		if err != nil {
			return index, fmt.Errorf("read %s: %w", path, err)
		}
	}
}
