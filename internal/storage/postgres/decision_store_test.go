package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-launch-gate/internal/domain"
	"solana-launch-gate/internal/storage"
)

func testDecision(id, mint string, decidedAt int64) *domain.DecisionRecord {
	return &domain.DecisionRecord{
		DecisionID:   id,
		Mint:         mint,
		MarketID:     "amm-" + mint,
		Signature:    "sig-" + id,
		FastPath:     true,
		Accepted:     true,
		RiskScore:    ptr(15),
		FinalScore:   ptr(73),
		Priority:     ptr(domain.PriorityHigh),
		Flags:        []domain.RiskFlag{domain.FlagLowLiquidity},
		LiquiditySOL: 45.5,
		DecidedAt:    decidedAt,
	}
}

func TestDecisionStore_InsertAndGetByID(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewDecisionStore(pool)

	want := testDecision("d1", "mint1", 1704067200000)
	require.NoError(t, store.Insert(ctx, want))

	got, err := store.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecisionStore_RejectedWithoutScores(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewDecisionStore(pool)

	d := &domain.DecisionRecord{
		DecisionID:   "d1",
		Mint:         "mint1",
		MarketID:     "amm1",
		Signature:    "sig1",
		Reason:       domain.RejectLowLiquidity,
		Detail:       "initial liquidity 1.00 SOL below 5.00",
		LiquiditySOL: 1,
		DecidedAt:    1,
	}
	require.NoError(t, store.Insert(ctx, d))

	got, err := store.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Nil(t, got.RiskScore)
	assert.Nil(t, got.FinalScore)
	assert.Nil(t, got.Priority)
	assert.Empty(t, got.Flags)
	assert.Equal(t, domain.RejectLowLiquidity, got.Reason)
	assert.Equal(t, "initial liquidity 1.00 SOL below 5.00", got.Detail)
	assert.False(t, got.Accepted)
}

func TestDecisionStore_DuplicateKey(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewDecisionStore(pool)

	require.NoError(t, store.Insert(ctx, testDecision("d1", "mint1", 1)))
	assert.ErrorIs(t, store.Insert(ctx, testDecision("d1", "mint1", 1)), storage.ErrDuplicateKey)
}

func TestDecisionStore_NotFound(t *testing.T) {
	pool := newTestPool(t)

	_, err := NewDecisionStore(pool).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDecisionStore_Queries(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewDecisionStore(pool)

	require.NoError(t, store.Insert(ctx, testDecision("d3", "mint1", 300)))
	require.NoError(t, store.Insert(ctx, testDecision("d1", "mint1", 100)))
	require.NoError(t, store.Insert(ctx, testDecision("d2", "mint2", 200)))

	byMint, err := store.GetByMint(ctx, "mint1")
	require.NoError(t, err)
	require.Len(t, byMint, 2)
	assert.Equal(t, "d1", byMint[0].DecisionID)
	assert.Equal(t, "d3", byMint[1].DecisionID)

	byTime, err := store.GetByTimeRange(ctx, 150, 300)
	require.NoError(t, err)
	require.Len(t, byTime, 2)
	assert.Equal(t, "d2", byTime[0].DecisionID)
	assert.Equal(t, "d3", byTime[1].DecisionID)
}

func TestDecisionStore_InvalidInput(t *testing.T) {
	store := NewDecisionStore(nil)
	assert.ErrorIs(t, store.Insert(context.Background(), nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(context.Background(), &domain.DecisionRecord{Mint: "m"}), storage.ErrInvalidInput)
}
