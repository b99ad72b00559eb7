package buffer

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/indexcp/indexcp/internal/dbx"
	"github.com/indexcp/indexcp/internal/filex"
)

// Service exposes buffer operations on top of the repository, running
// multi-chunk operations inside a single transaction. The repository is
// constructed per call site so transactional paths can bind it to a *sql.Tx.
type Service struct {
	db        *sql.DB
	repo      func(dbx.DBTX) Repository
	chunkSize int
}

func NewService(db *sql.DB, chunkSize int) *Service {
	return &Service{
		db:        db,
		repo:      func(db dbx.DBTX) Repository { return NewSQLiteRepository(db) },
		chunkSize: chunkSize,
	}
}

// Enqueue buffers one chunk for (fileID, index).
func (s *Service) Enqueue(ctx context.Context, fileID string, index uint64, payload []byte) (string, error) {
	c := &Chunk{
		ID:      uuid.NewString(),
		FileID:  fileID,
		Index:   index,
		Payload: payload,
		Status:  StatusPending,
	}
	if err := s.repo(s.db).Insert(ctx, c, false); err != nil {
		return "", err
	}
	return c.ID, nil
}

// AddFile splits the file at path into chunkSize slices and buffers them all
// in one transaction, so a crash mid-split leaves no partial file in the
// buffer. The file id is the base name of the path; re-adding a file
// overwrites its previous chunks. Returns the file id and the chunk count.
func (s *Service) AddFile(ctx context.Context, path string) (string, int, error) {
	fileID := filepath.Base(path)

	var n int
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repo(tx)

		count, err := filex.SplitFile(path, s.chunkSize, func(index int, payload []byte) error {
			c := &Chunk{
				ID:      uuid.NewString(),
				FileID:  fileID,
				Index:   uint64(index),
				Payload: append([]byte(nil), payload...),
				Status:  StatusPending,
			}
			return repo.Insert(ctx, c, true)
		})
		if err != nil {
			return err
		}
		n = count
		return nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("add file %s: %w", path, err)
	}

	return fileID, n, nil
}

func (s *Service) ListPending(ctx context.Context, fileID string) ([]*Chunk, error) {
	return s.repo(s.db).ListPending(ctx, fileID)
}

func (s *Service) Count(ctx context.Context, fileID string) (int, error) {
	return s.repo(s.db).Count(ctx, fileID)
}

func (s *Service) MarkUploaded(ctx context.Context, chunkID string) error {
	return s.repo(s.db).MarkUploaded(ctx, chunkID)
}

func (s *Service) PurgeUploaded(ctx context.Context, fileID string) error {
	return s.repo(s.db).PurgeUploaded(ctx, fileID)
}

func (s *Service) Files(ctx context.Context) ([]string, error) {
	return s.repo(s.db).Files(ctx)
}

func (s *Service) Clear(ctx context.Context) error {
	return s.repo(s.db).Clear(ctx)
}
