package memory

import (
	"context"
	"sync"

	"solana-launch-gate/internal/storage"
)

// CursorStore is an in-memory implementation of storage.CursorStore.
type CursorStore struct {
	mu      sync.RWMutex
	cursors map[string]storage.Cursor
}

// NewCursorStore creates a new in-memory cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{
		cursors: make(map[string]storage.Cursor),
	}
}

// GetCursor returns the stored cursor for program.
func (s *CursorStore) GetCursor(_ context.Context, program string) (*storage.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cursors[program]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

// SetCursor saves the cursor for program.
func (s *CursorStore) SetCursor(_ context.Context, program string, c *storage.Cursor) error {
	if c == nil || program == "" || c.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[program] = *c
	return nil
}

// Verify interface compliance at compile time.
var _ storage.CursorStore = (*CursorStore)(nil)
