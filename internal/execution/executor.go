// Package execution hands admitted assets to the external execution engine.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-launch-gate/internal/domain"
)

// ErrSubmitFailed wraps every failed hand-off.
var ErrSubmitFailed = errors.New("execution submit failed")

// Executor accepts scored assets for execution.
type Executor interface {
	Submit(ctx context.Context, asset domain.ScoredAsset) (domain.ExecutionReceipt, error)
}

// DryRunExecutor logs submissions and returns synthetic receipts.
type DryRunExecutor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewDryRunExecutor creates a dry-run executor. A nil logger is allowed.
func NewDryRunExecutor(logger *zap.Logger) *DryRunExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRunExecutor{logger: logger.Named("execution"), now: time.Now}
}

// Submit logs the asset and returns a receipt referencing it.
func (e *DryRunExecutor) Submit(ctx context.Context, asset domain.ScoredAsset) (domain.ExecutionReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExecutionReceipt{}, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}

	e.logger.Info("dry-run submit",
		zap.String("asset_id", asset.ID),
		zap.String("mint", asset.Event.Asset.Mint),
		zap.String("symbol", asset.Event.Asset.DisplaySymbol()),
		zap.Int("final_score", asset.FinalScore),
		zap.String("priority", asset.Priority.String()),
		zap.Bool("fast_path", asset.FastPath),
	)

	return domain.ExecutionReceipt{
		AssetID:     asset.ID,
		Reference:   "dry-run:" + asset.ID,
		SubmittedAt: e.now().UnixMilli(),
	}, nil
}
