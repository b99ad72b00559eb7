package filex

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestSplitFile(t *testing.T) {
	data := bytes.Repeat([]byte("abcd"), 300) // 1200 bytes
	path := writeTempFile(t, data)

	var got [][]byte
	n, err := SplitFile(path, 500, func(index int, payload []byte) error {
		assert.Equal(t, len(got), index)
		got = append(got, append([]byte(nil), payload...))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, got[0], 500)
	assert.Len(t, got[1], 500)
	assert.Len(t, got[2], 200)
	assert.Equal(t, data, bytes.Join(got, nil))
}

func TestSplitFile_Empty(t *testing.T) {
	path := writeTempFile(t, nil)

	n, err := SplitFile(path, 500, func(int, []byte) error {
		t.Fatal("fn must not be called for an empty file")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSplitFile_ExactMultiple(t *testing.T) {
	path := writeTempFile(t, bytes.Repeat([]byte{1}, 1000))

	n, err := SplitFile(path, 500, func(index int, payload []byte) error {
		assert.Len(t, payload, 500)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSplitFile_InvalidChunkSize(t *testing.T) {
	_, err := SplitFile("whatever", 0, func(int, []byte) error { return nil })
	assert.Error(t, err)
}
