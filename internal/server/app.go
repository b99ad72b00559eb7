// Package server initializes and runs the receiver application. It selects
// the ledger and blob backends, loads the receiver keypair, handles graceful
// shutdown, and starts the HTTP server for chunk uploads.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/indexcp/indexcp/internal/logging"
	"github.com/indexcp/indexcp/internal/server/blob"
	"github.com/indexcp/indexcp/internal/server/config"
	"github.com/indexcp/indexcp/internal/server/httpapi"
	"github.com/indexcp/indexcp/internal/server/keys"
	"github.com/indexcp/indexcp/internal/server/ledger"
	"github.com/indexcp/indexcp/internal/server/session"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	receiver *keys.Receiver
	ledger   *ledger.Service
	sessions *session.Registry
	apiKey   string
	db       *sql.DB
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(slog.LevelInfo)

	receiver, err := keys.LoadOrGenerate(cfg.KeyDir)
	if err != nil {
		return nil, fmt.Errorf("receiver keys init error: %w", err)
	}
	logger.Info(ctx, "receiver key loaded", "keyId", receiver.KeyID)

	var db *sql.DB
	var repo ledger.Repository
	switch cfg.StorageMode {
	case config.StorageMemory:
		repo = ledger.NewInMemoryRepository()
	case config.StoragePostgres:
		db, err = ledger.OpenDB(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		repo = ledger.NewPostgresRepository(db)
	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.StorageMode)
	}

	var store blob.Store
	switch cfg.BlobMode {
	case config.BlobFS:
		store, err = blob.NewFSStore(cfg.OutputDir)
		if err != nil {
			return nil, fmt.Errorf("blob store init error: %w", err)
		}
	case config.BlobS3:
		store, err = blob.NewS3Store(ctx, blob.S3Config{
			RootUser:     cfg.S3RootUser,
			RootPassword: cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("blob store init error: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown blob mode %q", cfg.BlobMode)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey, err = generateAPIKey()
		if err != nil {
			return nil, err
		}
		logger.Info(ctx, "generated upload API key", "apiKey", apiKey)
	}

	return &App{
		config:   cfg,
		logger:   logger,
		receiver: receiver,
		ledger:   ledger.NewService(repo, store, logger),
		sessions: session.NewRegistry(receiver.KeyID, receiver.Private),
		apiKey:   apiKey,
		db:       db,
	}, nil
}

// generateAPIKey returns a random 256-bit hex token.
func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("api key generation error: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// startSessionJanitor evicts idle sessions until ctx is cancelled.
func (app *App) startSessionJanitor(ctx context.Context) {
	ticker := time.NewTicker(app.config.SessionPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := app.sessions.PurgeIdle(app.config.SessionMaxIdle); n > 0 {
				app.logger.Info(ctx, "purged idle sessions", "count", n)
			}
		}
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	api := httpapi.NewAPI(app.ledger, app.sessions, app.receiver, app.logger)
	s := httpapi.NewServer(app.config.EndpointAddr, api.Routes(app.apiKey), app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startSessionJanitor(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, err.Error())
		}
	}
}
