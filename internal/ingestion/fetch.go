package ingestion

import (
	"context"
	"time"

	"go.uber.org/zap"

	"solana-launch-gate/internal/solana"
)

const (
	maxRetries            = 3
	DefaultBaseRetryDelay = 500 * time.Millisecond
)

// retryGetTransaction fetches a transaction with exponential backoff retry.
// A transaction that is not yet visible (nil without error) is retried too.
func retryGetTransaction(ctx context.Context, rpc solana.RPCClient, signature string, baseDelay time.Duration, log *zap.Logger) (*solana.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		tx, err := rpc.GetTransaction(ctx, signature)
		if err == nil && tx != nil {
			return tx, nil
		}
		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == maxRetries-1 {
			break
		}

		// Exponential backoff: 500ms, 1s by default
		delay := baseDelay * time.Duration(1<<attempt)
		log.Debug("retry getTransaction",
			zap.String("signature", signature),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
