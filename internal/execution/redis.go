package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"solana-launch-gate/internal/domain"
)

// DefaultStream is the stream consumed by the execution engine.
const DefaultStream = "launch-gate.assets"

// DefaultMaxLen bounds the stream length (approximate trimming).
const DefaultMaxLen = 10000

// assetMessage is the JSON payload written to the stream.
type assetMessage struct {
	AssetID      string   `json:"asset_id"`
	Mint         string   `json:"mint"`
	Symbol       string   `json:"symbol"`
	Decimals     int      `json:"decimals"`
	MarketID     string   `json:"market_id"`
	Signature    string   `json:"signature"`
	Slot         int64    `json:"slot"`
	LiquiditySOL float64  `json:"liquidity_sol"`
	PriceSOL     float64  `json:"price_sol"`
	LiquidityUSD *float64 `json:"liquidity_usd,omitempty"`
	RiskScore    int      `json:"risk_score"`
	FinalScore   int      `json:"final_score"`
	Priority     string   `json:"priority"`
	FastPath     bool     `json:"fast_path"`
	Flags        []string `json:"flags,omitempty"`
	ScoredAt     int64    `json:"scored_at"`
}

func newAssetMessage(a domain.ScoredAsset) assetMessage {
	flags := make([]string, 0, len(a.Report.Flags))
	for _, f := range a.Report.Flags {
		flags = append(flags, string(f))
	}
	return assetMessage{
		AssetID:      a.ID,
		Mint:         a.Event.Asset.Mint,
		Symbol:       a.Event.Asset.DisplaySymbol(),
		Decimals:     a.Event.Asset.Decimals,
		MarketID:     a.Event.MarketID,
		Signature:    a.Event.Signature,
		Slot:         a.Event.Slot,
		LiquiditySOL: a.Event.InitialBaseLiquidity,
		PriceSOL:     a.Event.InitialPriceEstimate,
		LiquidityUSD: a.Event.InitialLiquidityUSD,
		RiskScore:    a.Report.RiskScore,
		FinalScore:   a.FinalScore,
		Priority:     a.Priority.String(),
		FastPath:     a.FastPath,
		Flags:        flags,
		ScoredAt:     a.ScoredAt,
	}
}

// RedisStreamExecutor publishes admitted assets to a Redis stream.
type RedisStreamExecutor struct {
	client redis.UniversalClient
	stream string
	maxLen int64
	logger *zap.Logger
	now    func() time.Time
}

// RedisOption configures a RedisStreamExecutor.
type RedisOption func(*RedisStreamExecutor)

// WithStream sets the stream key.
func WithStream(stream string) RedisOption {
	return func(e *RedisStreamExecutor) {
		if stream != "" {
			e.stream = stream
		}
	}
}

// WithMaxLen sets the approximate stream length cap. Zero disables trimming.
func WithMaxLen(n int64) RedisOption {
	return func(e *RedisStreamExecutor) {
		e.maxLen = n
	}
}

// WithRedisLogger sets the logger.
func WithRedisLogger(logger *zap.Logger) RedisOption {
	return func(e *RedisStreamExecutor) {
		if logger != nil {
			e.logger = logger.Named("execution")
		}
	}
}

// NewRedisStreamExecutor creates an executor writing to client.
func NewRedisStreamExecutor(client redis.UniversalClient, opts ...RedisOption) *RedisStreamExecutor {
	e := &RedisStreamExecutor{
		client: client,
		stream: DefaultStream,
		maxLen: DefaultMaxLen,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// Submit appends the asset to the stream. The receipt references the stream
// message id.
func (e *RedisStreamExecutor) Submit(ctx context.Context, asset domain.ScoredAsset) (domain.ExecutionReceipt, error) {
	data, err := json.Marshal(newAssetMessage(asset))
	if err != nil {
		return domain.ExecutionReceipt{}, fmt.Errorf("%w: marshal: %v", ErrSubmitFailed, err)
	}

	args := &redis.XAddArgs{
		Stream: e.stream,
		Values: map[string]interface{}{
			"asset_id": asset.ID,
			"priority": asset.Priority.String(),
			"data":     string(data),
		},
	}
	if e.maxLen > 0 {
		args.MaxLen = e.maxLen
		args.Approx = true
	}

	id, err := e.client.XAdd(ctx, args).Result()
	if err != nil {
		e.logger.Error("stream publish failed",
			zap.String("stream", e.stream),
			zap.String("asset_id", asset.ID),
			zap.Error(err))
		return domain.ExecutionReceipt{}, fmt.Errorf("%w: xadd %s: %w", ErrSubmitFailed, e.stream, err)
	}

	e.logger.Debug("asset published",
		zap.String("stream", e.stream),
		zap.String("asset_id", asset.ID),
		zap.String("message_id", id))

	return domain.ExecutionReceipt{
		AssetID:     asset.ID,
		Reference:   id,
		SubmittedAt: e.now().UnixMilli(),
	}, nil
}
