package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/indexcp/indexcp/internal/common"
	"github.com/indexcp/indexcp/internal/dbx"
)

// PostgresRepository implements the ledger over a dbx.DBTX (*sql.DB or
// *sql.Tx). One INSERT carries both the ledger fact and the payload, so the
// two commit atomically.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Accept(ctx context.Context, fileKey string, index uint64, payload []byte) (bool, error) {
	query := `
		INSERT INTO received_chunks (file_key, chunk_index, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (file_key, chunk_index) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, fileKey, int64(index), payload)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Received(ctx context.Context, fileKey string) ([]uint64, error) {
	query := `SELECT chunk_index FROM received_chunks WHERE file_key=$1 ORDER BY chunk_index ASC`
	rows, err := r.db.QueryContext(ctx, query, fileKey)
	if err != nil {
		return nil, fmt.Errorf("failed to select received chunks: %w", err)
	}
	defer rows.Close()

	result := []uint64{}
	for rows.Next() {
		var i int64
		if err := rows.Scan(&i); err != nil {
			return nil, err
		}
		result = append(result, uint64(i))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Payload(ctx context.Context, fileKey string, index uint64) ([]byte, error) {
	query := `SELECT payload FROM received_chunks WHERE file_key=$1 AND chunk_index=$2`
	row := r.db.QueryRowContext(ctx, query, fileKey, int64(index))

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return payload, nil
}

func (r *PostgresRepository) DeleteFile(ctx context.Context, fileKey string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM received_chunks WHERE file_key=$1`, fileKey); err != nil {
		return fmt.Errorf("failed to delete file records: %w", err)
	}
	return nil
}
