package cli

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/indexcp/indexcp/internal/client/buffer"
	"github.com/indexcp/indexcp/internal/client/config"
	"github.com/indexcp/indexcp/internal/client/transport"
	"github.com/indexcp/indexcp/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

type stubClient struct {
	received []uint64
}

func (s *stubClient) PublicKey(ctx context.Context) (string, []byte, error) {
	return "", nil, nil
}

func (s *stubClient) UploadChunk(ctx context.Context, req *transport.UploadRequest) error {
	return nil
}

func (s *stubClient) Status(ctx context.Context, fileKey string) ([]uint64, error) {
	return s.received, nil
}

func (s *stubClient) Complete(ctx context.Context, fileKey, sessionID string, total uint64) error {
	return nil
}

func setupApp(t *testing.T) (*App, *stubClient) {
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

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.ChunkSize = 4

	client := &stubClient{}

	return &App{
		config: cfg,
		logger: logging.NewJSONLogger(slog.LevelError),
		buffer: buffer.NewService(db, cfg.ChunkSize),
		client: client,
		db:     db,
	}, client
}

// runCmd executes one CLI invocation and captures stdout.
func runCmd(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()

	root := NewRootCmd(app)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAddCmd(t *testing.T) {
	app, _ := setupApp(t)

	path := filepath.Join(t.TempDir(), "report.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	out, err := runCmd(t, app, "add", path)
	require.NoError(t, err)
	assert.Contains(t, out, "report.bin")
	assert.Contains(t, out, "3 chunks")

	total, err := app.buffer.Count(context.Background(), "report.bin")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestAddCmd_MissingFile(t *testing.T) {
	app, _ := setupApp(t)

	_, err := runCmd(t, app, "add", filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestStatusCmd(t *testing.T) {
	app, client := setupApp(t)
	client.received = []uint64{0, 1}

	path := filepath.Join(t.TempDir(), "report.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))
	_, err := runCmd(t, app, "add", path)
	require.NoError(t, err)

	out, err := runCmd(t, app, "status", "report.bin")
	require.NoError(t, err)
	assert.Contains(t, out, "3 buffered locally")
	assert.Contains(t, out, "2 accepted by receiver")
}

func TestClearCmd(t *testing.T) {
	app, _ := setupApp(t)

	path := filepath.Join(t.TempDir(), "report.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))
	_, err := runCmd(t, app, "add", path)
	require.NoError(t, err)

	out, err := runCmd(t, app, "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Buffer cleared")

	total, err := app.buffer.Count(context.Background(), "report.bin")
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}
