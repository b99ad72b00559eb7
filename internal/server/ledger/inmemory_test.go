package ledger

import (
	"context"
	"testing"

	"github.com/indexcp/indexcp/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemory_AcceptAndReceived(t *testing.T) {
	r := NewInMemoryRepository()
	ctx := context.Background()

	inserted, err := r.Accept(ctx, "f", 1, []byte("b"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = r.Accept(ctx, "f", 0, []byte("a"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = r.Accept(ctx, "f", 1, []byte("other"))
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := r.Received(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1}, got)
}

func TestInMemory_PayloadCopies(t *testing.T) {
	r := NewInMemoryRepository()
	ctx := context.Background()

	src := []byte("payload")
	_, err := r.Accept(ctx, "f", 0, src)
	require.NoError(t, err)

	// Mutating the caller's slice must not affect the stored payload.
	src[0] = 'X'

	got, err := r.Payload(ctx, "f", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestInMemory_PayloadNotFound(t *testing.T) {
	r := NewInMemoryRepository()

	_, err := r.Payload(context.Background(), "f", 0)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestInMemory_DeleteFile(t *testing.T) {
	r := NewInMemoryRepository()
	ctx := context.Background()

	_, err := r.Accept(ctx, "f", 0, []byte("a"))
	require.NoError(t, err)
	_, err = r.Accept(ctx, "g", 0, []byte("b"))
	require.NoError(t, err)

	require.NoError(t, r.DeleteFile(ctx, "f"))

	got, err := r.Received(ctx, "f")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = r.Received(ctx, "g")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
