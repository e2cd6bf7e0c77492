package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-launch-gate/internal/storage"
)

func TestCursorStore_SetAndGet(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewCursorStore(pool)

	_, err := store.GetCursor(ctx, "prog")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.SetCursor(ctx, "prog", &storage.Cursor{Slot: 100, Signature: "Sig100"}))
	require.NoError(t, store.SetCursor(ctx, "prog", &storage.Cursor{Slot: 200, Signature: "Sig200"}))
	require.NoError(t, store.SetCursor(ctx, "other", &storage.Cursor{Slot: 5, Signature: "Sig5"}))

	got, err := store.GetCursor(ctx, "prog")
	require.NoError(t, err)
	assert.Equal(t, uint64(200), got.Slot)
	assert.Equal(t, "Sig200", got.Signature)

	other, err := store.GetCursor(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, "Sig5", other.Signature)
}

func TestCursorStore_InvalidInput(t *testing.T) {
	store := NewCursorStore(nil)
	ctx := context.Background()

	assert.ErrorIs(t, store.SetCursor(ctx, "prog", nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.SetCursor(ctx, "", &storage.Cursor{Signature: "s"}), storage.ErrInvalidInput)
}
