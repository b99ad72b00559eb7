// Package cli implements the indexcp command line client: buffering files
// into the local chunk queue and driving resumable uploads to the receiver.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/indexcp/indexcp/internal/client/buffer"
	"github.com/indexcp/indexcp/internal/client/config"
	"github.com/indexcp/indexcp/internal/client/keycache"
	"github.com/indexcp/indexcp/internal/client/transport"
	"github.com/indexcp/indexcp/internal/client/uploader"
	"github.com/indexcp/indexcp/internal/common"
	"github.com/indexcp/indexcp/internal/filex"
	"github.com/indexcp/indexcp/internal/logging"
)

const bufferDBFile = "buffer.db"

type App struct {
	config   *config.Config
	logger   logging.Logger
	buffer   *buffer.Service
	client   transport.Client
	uploader *uploader.Orchestrator
	db       *sql.DB
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(slog.LevelWarn)

	dir := cfg.BufferDir
	if dir == "" {
		var err error
		dir, err = filex.HomeSubDir(".indexcp")
		if err != nil {
			return nil, err
		}
	} else if err := filex.EnsureDir(dir); err != nil {
		return nil, err
	}

	db, err := buffer.OpenDB(ctx, filepath.Join(dir, bufferDBFile))
	if err != nil {
		return nil, fmt.Errorf("buffer init error: %w", err)
	}

	apiKey, err := resolveAPIKey()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	client := transport.NewHTTPClient(cfg.ServerEndpointAddr, apiKey, cfg.RequestTimeout)
	keys := keycache.New(client, cfg.KeyCacheTTL)

	buf := buffer.NewService(db, cfg.ChunkSize)
	up := uploader.New(buf, client, keys, logger, uploader.Config{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialRetryDelay,
		Workers:      cfg.Workers,
	})

	return &App{
		config:   cfg,
		logger:   logger,
		buffer:   buf,
		client:   client,
		uploader: up,
		db:       db,
	}, nil
}

func (a *App) Close() error {
	return a.db.Close()
}

// resolveAPIKey reads the upload API key from the environment, falling back
// to a no-echo terminal prompt.
func resolveAPIKey() (string, error) {
	if key := os.Getenv(common.APIKeyEnvVar); key != "" {
		return key, nil
	}
	key, err := GetAPIKey(os.Stdout)
	if err != nil {
		return "", fmt.Errorf("read API key: %w", err)
	}
	if len(key) == 0 {
		return "", fmt.Errorf("API key is required (set %s or enter it at the prompt)", common.APIKeyEnvVar)
	}
	return string(key), nil
}
