package execution

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"solana-launch-gate/internal/domain"
)

func scoredAsset() domain.ScoredAsset {
	symbol := "GATE"
	usd := 6750.0
	return domain.ScoredAsset{
		ID: "asset-1",
		Event: domain.MarketOpenEvent{
			Asset:                domain.AssetIdentity{Mint: "mint1", Decimals: 6, Symbol: &symbol},
			MarketID:             "amm1",
			Signature:            "sig1",
			Slot:                 42,
			InitialBaseLiquidity: 45,
			InitialPriceEstimate: 0.000001,
			InitialLiquidityUSD:  &usd,
		},
		Report: domain.SecurityReport{
			RiskScore: 15,
			Flags:     []domain.RiskFlag{domain.FlagLowLiquidity},
		},
		FinalScore: 73,
		Priority:   domain.PriorityMedium,
		ScoredAt:   1700000000000,
	}
}

func TestDryRunExecutor_Submit(t *testing.T) {
	e := NewDryRunExecutor(zaptest.NewLogger(t))
	e.now = func() time.Time { return time.UnixMilli(1700000000500) }

	receipt, err := e.Submit(context.Background(), scoredAsset())
	require.NoError(t, err)
	assert.Equal(t, "asset-1", receipt.AssetID)
	assert.Equal(t, "dry-run:asset-1", receipt.Reference)
	assert.Equal(t, int64(1700000000500), receipt.SubmittedAt)
}

func TestDryRunExecutor_CancelledContext(t *testing.T) {
	e := NewDryRunExecutor(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Submit(ctx, scoredAsset())
	assert.True(t, errors.Is(err, ErrSubmitFailed))
}

func TestNewAssetMessage(t *testing.T) {
	msg := newAssetMessage(scoredAsset())

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "asset-1", decoded["asset_id"])
	assert.Equal(t, "GATE", decoded["symbol"])
	assert.Equal(t, "MEDIUM", decoded["priority"])
	assert.Equal(t, float64(73), decoded["final_score"])
	assert.Equal(t, float64(6750), decoded["liquidity_usd"])
	assert.Equal(t, []any{"low-liquidity"}, decoded["flags"])
}

func TestNewAssetMessage_OmitsUnknownUSD(t *testing.T) {
	a := scoredAsset()
	a.Event.InitialLiquidityUSD = nil
	a.Event.Asset.Symbol = nil

	data, err := json.Marshal(newAssetMessage(a))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "liquidity_usd")
	assert.Contains(t, string(data), `"symbol":"UNKNOWN"`)
}
