package storage

import "context"

// Cursor is the newest transaction already delivered for a program.
type Cursor struct {
	Slot      uint64 // Solana slot of Signature
	Signature string // newest delivered transaction signature
}

// CursorStore persists the polling position per program.
// This enables resumption after restarts without replaying or skipping pools.
type CursorStore interface {
	// GetCursor returns the stored cursor for program.
	// Returns ErrNotFound if nothing has been saved yet.
	GetCursor(ctx context.Context, program string) (*Cursor, error)

	// SetCursor saves the cursor for program, replacing any previous value.
	SetCursor(ctx context.Context, program string, c *Cursor) error
}
