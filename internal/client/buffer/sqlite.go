package buffer

import (
	"context"
	"fmt"

	"github.com/indexcp/indexcp/internal/common"
	"github.com/indexcp/indexcp/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, c *Chunk, overwrite bool) error {
	if overwrite {
		query := `INSERT INTO chunks (id, file_id, chunk_index, payload, status)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(file_id, chunk_index) DO UPDATE SET
				id = excluded.id,
				payload = excluded.payload,
				status = excluded.status
		`
		if _, err := r.db.ExecContext(ctx, query, c.ID, c.FileID, c.Index, c.Payload, c.Status); err != nil {
			return fmt.Errorf("failed to upsert chunk: %w", err)
		}
		return nil
	}

	query := `INSERT OR IGNORE INTO chunks (id, file_id, chunk_index, payload, status)
		VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, c.ID, c.FileID, c.Index, c.Payload, c.Status)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrDuplicateChunk
	}
	return nil
}

func (r *SQLiteRepository) ListPending(ctx context.Context, fileID string) ([]*Chunk, error) {
	query := `SELECT id, file_id, chunk_index, payload, status FROM chunks
		WHERE file_id = ? AND status = ?
		ORDER BY chunk_index ASC`
	rows, err := r.db.QueryContext(ctx, query, fileID, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending chunks: %w", err)
	}
	defer rows.Close()

	var result []*Chunk
	for rows.Next() {
		c := &Chunk{}
		if err := rows.Scan(&c.ID, &c.FileID, &c.Index, &c.Payload, &c.Status); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Count(ctx context.Context, fileID string) (int, error) {
	var n int
	row := r.db.QueryRowContext(ctx, `SELECT count(*) FROM chunks WHERE file_id = ?`, fileID)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) MarkUploaded(ctx context.Context, chunkID string) error {
	// Idempotent: touching a chunk that is already uploaded (or gone after a
	// purge) affects zero rows and is not an error.
	query := `UPDATE chunks SET status = ? WHERE id = ? AND status = ?`
	if _, err := r.db.ExecContext(ctx, query, StatusUploaded, chunkID, StatusPending); err != nil {
		return fmt.Errorf("failed to mark chunk uploaded: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) PurgeUploaded(ctx context.Context, fileID string) error {
	query := `DELETE FROM chunks WHERE file_id = ? AND status = ?`
	if _, err := r.db.ExecContext(ctx, query, fileID, StatusUploaded); err != nil {
		return fmt.Errorf("failed to purge uploaded chunks: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Files(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT file_id FROM chunks ORDER BY file_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("failed to clear buffer: %w", err)
	}
	return nil
}
