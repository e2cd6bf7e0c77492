package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-launch-gate/internal/storage"
)

// CursorStore is a PostgreSQL implementation of storage.CursorStore backed by
// the polling_cursors table.
type CursorStore struct {
	pool *Pool
}

// NewCursorStore creates a new PostgreSQL cursor store.
func NewCursorStore(pool *Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CursorStore = (*CursorStore)(nil)

// GetCursor returns the stored cursor for program.
func (s *CursorStore) GetCursor(ctx context.Context, program string) (*storage.Cursor, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT slot, signature
		FROM polling_cursors
		WHERE program = $1
	`, program)

	var c storage.Cursor
	err := row.Scan(&c.Slot, &c.Signature)
	observe("get_cursor", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get cursor: %w", err)
	}
	return &c, nil
}

// SetCursor saves the cursor for program.
// Uses upsert to handle initial insert and subsequent updates.
func (s *CursorStore) SetCursor(ctx context.Context, program string, c *storage.Cursor) error {
	if c == nil || program == "" || c.Signature == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO polling_cursors (program, slot, signature, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (program) DO UPDATE
		SET slot = EXCLUDED.slot,
		    signature = EXCLUDED.signature,
		    updated_at = NOW()
	`, program, int64(c.Slot), c.Signature)
	observe("set_cursor", start, err)
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}
