package uploader

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/indexcp/indexcp/internal/client/buffer"
	"github.com/indexcp/indexcp/internal/client/keycache"
	"github.com/indexcp/indexcp/internal/client/transport"
	"github.com/indexcp/indexcp/internal/common"
	"github.com/indexcp/indexcp/internal/cryptox"
	"github.com/indexcp/indexcp/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// fakeTransport plays the receiver: it unwraps session keys and decrypts
// chunks for real, keeps an in-memory ledger, and counts every call.
type fakeTransport struct {
	mu sync.Mutex

	priv  *rsa.PrivateKey
	keyID string

	// failures[index] is the number of transient failures to inject before
	// accepting that chunk.
	failures map[uint64]int

	// fatalErr, when set, is returned for every upload attempt.
	fatalErr error

	// statusErr makes Status fail; statusSet is returned otherwise.
	statusErr error
	statusSet []uint64

	// completeIncompleteOnce makes the first Complete call report an
	// incomplete transfer.
	completeIncompleteOnce bool

	accepted      map[uint64][]byte
	uploadCalls   map[uint64]int
	uploadTimes   []time.Time
	keyCalls      int
	statusCalls   int
	completeCalls int
}

func newFakeTransport(t *testing.T) *fakeTransport {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &fakeTransport{
		priv:        priv,
		keyID:       "test-key",
		failures:    map[uint64]int{},
		accepted:    map[uint64][]byte{},
		uploadCalls: map[uint64]int{},
	}
}

func (f *fakeTransport) PublicKey(ctx context.Context) (string, []byte, error) {
	f.mu.Lock()
	f.keyCalls++
	f.mu.Unlock()

	pemData, err := cryptox.EncodePublicKey(&f.priv.PublicKey)
	if err != nil {
		return "", nil, err
	}
	return f.keyID, pemData, nil
}

func (f *fakeTransport) UploadChunk(ctx context.Context, req *transport.UploadRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploadCalls[req.Index]++
	f.uploadTimes = append(f.uploadTimes, time.Now())

	if f.fatalErr != nil {
		return f.fatalErr
	}
	if n := f.failures[req.Index]; n > 0 {
		f.failures[req.Index] = n - 1
		return fmt.Errorf("%w: injected", common.ErrTransientTransport)
	}

	key, err := cryptox.UnwrapSessionKey(f.priv, req.WrappedKey)
	if err != nil {
		return err
	}
	aad := cryptox.AssociatedData(req.SessionID, req.FileKey, req.Index)
	payload, err := cryptox.DecryptChunk(key, req.Nonce, req.Ciphertext, aad)
	if err != nil {
		return err
	}

	if _, ok := f.accepted[req.Index]; !ok {
		f.accepted[req.Index] = payload
	}
	return nil
}

func (f *fakeTransport) Status(ctx context.Context, fileKey string) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if f.statusSet != nil {
		return f.statusSet, nil
	}

	out := make([]uint64, 0, len(f.accepted))
	for i := range f.accepted {
		out = append(out, i)
	}
	return out, nil
}

func (f *fakeTransport) Complete(ctx context.Context, fileKey, sessionID string, total uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.completeCalls++
	if f.completeIncompleteOnce {
		f.completeIncompleteOnce = false
		return fmt.Errorf("%w: injected", common.ErrIncompleteTransfer)
	}
	for i := uint64(0); i < total; i++ {
		if _, ok := f.accepted[i]; !ok {
			return fmt.Errorf("%w: missing %d", common.ErrIncompleteTransfer, i)
		}
	}
	return nil
}

func setupBuffer(t *testing.T) *buffer.Service {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE chunks (
  id TEXT PRIMARY KEY,
  file_id TEXT NOT NULL,
  chunk_index INTEGER NOT NULL,
  payload BLOB NOT NULL,
  status INTEGER NOT NULL DEFAULT 0,
  UNIQUE (file_id, chunk_index)
);
`)
	require.NoError(t, err)

	return buffer.NewService(db, 1024)
}

func newOrchestrator(buf *buffer.Service, ft *fakeTransport, cfg Config) *Orchestrator {
	log := logging.NewJSONLogger(8) // above error: quiet tests
	keys := keycache.New(ft, time.Minute)
	return New(buf, ft, keys, log, cfg)
}

func enqueueN(t *testing.T, buf *buffer.Service, fileID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := buf.Enqueue(context.Background(), fileID, uint64(i), []byte(fmt.Sprintf("chunk-%d", i)))
		require.NoError(t, err)
	}
}

func TestUpload_AllChunks(t *testing.T) {
	buf := setupBuffer(t)
	ft := newFakeTransport(t)
	o := newOrchestrator(buf, ft, Config{MaxAttempts: 3, InitialDelay: time.Millisecond, Workers: 2})
	ctx := context.Background()

	enqueueN(t, buf, "f", 3)

	require.NoError(t, o.Upload(ctx, "f"))

	require.Len(t, ft.accepted, 3)
	for i := uint64(0); i < 3; i++ {
		assert.Equal(t, []byte(fmt.Sprintf("chunk-%d", i)), ft.accepted[i])
	}
	assert.Equal(t, 1, ft.completeCalls)

	// Buffer is empty after purge.
	n, err := buf.Count(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpload_ResumeSkipsReceived(t *testing.T) {
	buf := setupBuffer(t)
	ft := newFakeTransport(t)
	o := newOrchestrator(buf, ft, Config{MaxAttempts: 3, InitialDelay: time.Millisecond, Workers: 1})
	ctx := context.Background()

	enqueueN(t, buf, "f", 15)

	// Receiver already has 0..7 from an interrupted run.
	ft.statusSet = []uint64{0, 1, 2, 3, 4, 5, 6, 7}
	for i := uint64(0); i <= 7; i++ {
		ft.accepted[i] = []byte("previous")
	}

	require.NoError(t, o.Upload(ctx, "f"))

	// Exactly 8..14 were transmitted; 0..7 stayed untouched.
	for i := uint64(0); i <= 7; i++ {
		assert.Zero(t, ft.uploadCalls[i], "chunk %d must not be re-sent", i)
		assert.Equal(t, []byte("previous"), ft.accepted[i])
	}
	for i := uint64(8); i <= 14; i++ {
		assert.Equal(t, 1, ft.uploadCalls[i], "chunk %d", i)
	}
}

func TestUpload_RetriesTransientFailures(t *testing.T) {
	buf := setupBuffer(t)
	ft := newFakeTransport(t)
	delay := 40 * time.Millisecond
	o := newOrchestrator(buf, ft, Config{MaxAttempts: 3, InitialDelay: delay, Workers: 1})
	ctx := context.Background()

	enqueueN(t, buf, "f", 1)
	ft.failures[0] = 2 // fail twice, then accept

	require.NoError(t, o.Upload(ctx, "f"))
	require.Equal(t, 3, ft.uploadCalls[0])

	// The backoff is exponential: the first retry waits the initial delay,
	// the second twice that.
	require.Len(t, ft.uploadTimes, 3)
	first := ft.uploadTimes[1].Sub(ft.uploadTimes[0])
	second := ft.uploadTimes[2].Sub(ft.uploadTimes[1])
	assert.GreaterOrEqual(t, first, delay)
	assert.GreaterOrEqual(t, second, 2*delay)
}

func TestUpload_RetryExhaustion(t *testing.T) {
	buf := setupBuffer(t)
	ft := newFakeTransport(t)
	o := newOrchestrator(buf, ft, Config{MaxAttempts: 3, InitialDelay: time.Millisecond, Workers: 1})
	ctx := context.Background()

	enqueueN(t, buf, "f", 1)
	ft.failures[0] = 10 // more than the retry budget

	err := o.Upload(ctx, "f")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTransientTransport)
	assert.Equal(t, 3, ft.uploadCalls[0])

	// The file stays resumable: the chunk is still pending locally.
	pending, perr := buf.ListPending(ctx, "f")
	require.NoError(t, perr)
	assert.Len(t, pending, 1)
}

func TestUpload_FatalIsNotRetried(t *testing.T) {
	buf := setupBuffer(t)
	ft := newFakeTransport(t)
	o := newOrchestrator(buf, ft, Config{MaxAttempts: 5, InitialDelay: time.Millisecond, Workers: 1})
	ctx := context.Background()

	enqueueN(t, buf, "f", 1)
	ft.fatalErr = fmt.Errorf("%w: bad api key", common.ErrUnauthorized)

	err := o.Upload(ctx, "f")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnauthorized)
	assert.Equal(t, 1, ft.uploadCalls[0], "fatal errors must not be retried")
}

func TestUpload_StatusFailureFailsOpen(t *testing.T) {
	buf := setupBuffer(t)
	ft := newFakeTransport(t)
	o := newOrchestrator(buf, ft, Config{MaxAttempts: 3, InitialDelay: time.Millisecond, Workers: 1})
	ctx := context.Background()

	enqueueN(t, buf, "f", 4)
	ft.statusErr = errors.New("status endpoint down")

	require.NoError(t, o.Upload(ctx, "f"))

	// Everything was uploaded despite the failed status query.
	require.Len(t, ft.accepted, 4)
}

func TestUpload_NothingBuffered(t *testing.T) {
	buf := setupBuffer(t)
	ft := newFakeTransport(t)
	o := newOrchestrator(buf, ft, Config{MaxAttempts: 3, InitialDelay: time.Millisecond, Workers: 1})

	err := o.Upload(context.Background(), "unknown")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Zero(t, ft.completeCalls, "finalize must not run for a file with no buffered chunks")
	assert.Empty(t, ft.uploadCalls)
}

func TestUpload_RepeatAfterCompletionIsRejected(t *testing.T) {
	buf := setupBuffer(t)
	ft := newFakeTransport(t)
	o := newOrchestrator(buf, ft, Config{MaxAttempts: 3, InitialDelay: time.Millisecond, Workers: 1})
	ctx := context.Background()

	enqueueN(t, buf, "f", 2)

	require.NoError(t, o.Upload(ctx, "f"))
	require.Equal(t, 1, ft.completeCalls)

	// The buffer was purged; re-sending the same id must fail locally
	// instead of asking the receiver to finalize zero chunks over the
	// already-assembled file.
	err := o.Upload(ctx, "f")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, 1, ft.completeCalls)
}

func TestUpload_RejectionInvalidatesKeyCache(t *testing.T) {
	buf := setupBuffer(t)
	ft := newFakeTransport(t)
	o := newOrchestrator(buf, ft, Config{MaxAttempts: 3, InitialDelay: time.Millisecond, Workers: 1})
	ctx := context.Background()

	enqueueN(t, buf, "f", 1)
	ft.fatalErr = fmt.Errorf("%w: unknown key id", common.ErrRejected)

	err := o.Upload(ctx, "f")
	require.ErrorIs(t, err, common.ErrRejected)
	require.Equal(t, 1, ft.keyCalls)

	// The rejection dropped the cached key: the next upload refetches it
	// even though the TTL has not expired, and succeeds.
	ft.fatalErr = nil
	require.NoError(t, o.Upload(ctx, "f"))
	assert.Equal(t, 2, ft.keyCalls)
}

func TestUpload_FinalizeIncompleteTriggersRerun(t *testing.T) {
	buf := setupBuffer(t)
	ft := newFakeTransport(t)
	o := newOrchestrator(buf, ft, Config{MaxAttempts: 3, InitialDelay: time.Millisecond, Workers: 1})
	ctx := context.Background()

	enqueueN(t, buf, "f", 2)
	ft.completeIncompleteOnce = true

	require.NoError(t, o.Upload(ctx, "f"))
	assert.Equal(t, 2, ft.completeCalls)
	assert.GreaterOrEqual(t, ft.statusCalls, 2, "the received set is re-resolved before the rerun")
}

func TestUpload_EndToEndWithFlakyChunk(t *testing.T) {
	buf := setupBuffer(t)
	ft := newFakeTransport(t)
	o := newOrchestrator(buf, ft, Config{MaxAttempts: 3, InitialDelay: time.Millisecond, Workers: 1})
	ctx := context.Background()

	enqueueN(t, buf, "f", 3)
	ft.failures[1] = 2

	require.NoError(t, o.Upload(ctx, "f"))

	require.Len(t, ft.accepted, 3)
	assert.Equal(t, 1, ft.uploadCalls[0])
	assert.Equal(t, 3, ft.uploadCalls[1])
	assert.Equal(t, 1, ft.uploadCalls[2])

	n, err := buf.Count(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSendAll(t *testing.T) {
	buf := setupBuffer(t)
	ft := newFakeTransport(t)
	o := newOrchestrator(buf, ft, Config{MaxAttempts: 3, InitialDelay: time.Millisecond, Workers: 2})
	ctx := context.Background()

	enqueueN(t, buf, "a", 2)

	require.NoError(t, o.SendAll(ctx))

	files, err := buf.Files(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
}
