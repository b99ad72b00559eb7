package buffer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/indexcp/indexcp/internal/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRepository wraps a Repository and counts the calls routed
// through it.
type recordingRepository struct {
	Repository
	inserts int
}

func (r *recordingRepository) Insert(ctx context.Context, c *Chunk, overwrite bool) error {
	r.inserts++
	return r.Repository.Insert(ctx, c, overwrite)
}

func TestService_UsesRepositoryAbstraction(t *testing.T) {
	db := setupDB(t)
	s := NewService(db, 4)
	ctx := context.Background()

	rec := &recordingRepository{}
	s.repo = func(db dbx.DBTX) Repository {
		rec.Repository = NewSQLiteRepository(db)
		return rec
	}

	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	_, n, err := s.AddFile(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	assert.Equal(t, 3, rec.inserts, "every write goes through the repository interface")
}

func TestAddFile_SplitsAndBuffers(t *testing.T) {
	db := setupDB(t)
	s := NewService(db, 4)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	fileID, n, err := s.AddFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "payload.bin", fileID)
	assert.Equal(t, 3, n)

	pending, err := s.ListPending(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	var joined []byte
	for i, c := range pending {
		assert.Equal(t, uint64(i), c.Index)
		joined = append(joined, c.Payload...)
	}
	assert.True(t, bytes.Equal([]byte("0123456789"), joined))
}

func TestAddFile_ReaddOverwrites(t *testing.T) {
	db := setupDB(t)
	s := NewService(db, 4)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, []byte("aaaabbbb"), 0o600))

	_, n, err := s.AddFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, os.WriteFile(path, []byte("ccccdddd"), 0o600))
	fileID, n, err := s.AddFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err := s.ListPending(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, []byte("cccc"), pending[0].Payload)
}

func TestAddFile_Missing(t *testing.T) {
	db := setupDB(t)
	s := NewService(db, 4)

	_, _, err := s.AddFile(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestEnqueue(t *testing.T) {
	db := setupDB(t)
	s := NewService(db, 4)
	ctx := context.Background()

	id, err := s.Enqueue(ctx, "f", 0, []byte("p"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	n, err := s.Count(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
