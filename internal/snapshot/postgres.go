package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresBackend stores blobs in the snapshots table. Used when no object
// store is configured.
type PostgresBackend struct {
	db *sql.DB
}

func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) Put(ctx context.Context, room string, data []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO snapshots (room, data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (room) DO UPDATE SET data=EXCLUDED.data, updated_at=NOW()
	`, room, data)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Get(ctx context.Context, room string) ([]byte, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE room=$1`, room).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot: %w", err)
	}
	return data, nil
}
