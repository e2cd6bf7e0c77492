// Package risk runs the on-chain security checks for a newly listed asset.
package risk

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-launch-gate/internal/discovery"
	"solana-launch-gate/internal/domain"
	"solana-launch-gate/internal/jupiter"
	"solana-launch-gate/internal/observability"
	"solana-launch-gate/internal/solana"
	"solana-launch-gate/internal/trace"
)

// Penalties added to the risk score.
const (
	PenaltyFreezeAuthority   = 50
	PenaltyHighConcentration = 30
	PenaltyHoneypot          = 100
	PenaltyNoPool            = 40
	PenaltyLowLiquidity      = 20

	MaxRiskScore = 100

	// SafeRiskScore is the exclusive upper bound for a safe verdict.
	SafeRiskScore = 50
)

// Default configuration values.
const (
	DefaultCheckTimeout     = 20 * time.Second
	DefaultTrialAmountSOL   = 0.01
	DefaultLowLiquiditySOL  = 5.0
	DefaultConcentrationPct = 50.0
	DefaultSlippageBps      = 1000
	IncineratorAddress      = "1nc1nerator11111111111111111111111111111111"
)

// DefaultBurnSinks are the owners whose LP holdings count as burned.
var DefaultBurnSinks = []string{IncineratorAddress, solana.SystemProgramID}

// Config holds analyzer settings.
type Config struct {
	CheckTimeout     time.Duration
	TrialAmountSOL   float64
	SlippageBps      int
	SimulationWallet string   // empty disables swap simulation
	BurnSinks        []string // owners of burned LP tokens
	AMMProgramID     string
	LowLiquiditySOL  float64
	ConcentrationPct float64  // top-10 share above which the holders check fails
	ExcludedHolders  []string // token account owners left out of the top-10 ranking
}

// DefaultConfig returns the default analyzer configuration.
func DefaultConfig() Config {
	return Config{
		CheckTimeout:     DefaultCheckTimeout,
		TrialAmountSOL:   DefaultTrialAmountSOL,
		SlippageBps:      DefaultSlippageBps,
		BurnSinks:        DefaultBurnSinks,
		AMMProgramID:     discovery.RaydiumAMMV4,
		LowLiquiditySOL:  DefaultLowLiquiditySOL,
		ConcentrationPct: DefaultConcentrationPct,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = d.CheckTimeout
	}
	if c.TrialAmountSOL <= 0 {
		c.TrialAmountSOL = d.TrialAmountSOL
	}
	if c.SlippageBps <= 0 {
		c.SlippageBps = d.SlippageBps
	}
	if c.BurnSinks == nil {
		c.BurnSinks = d.BurnSinks
	}
	if c.AMMProgramID == "" {
		c.AMMProgramID = d.AMMProgramID
	}
	if c.LowLiquiditySOL <= 0 {
		c.LowLiquiditySOL = d.LowLiquiditySOL
	}
	if c.ConcentrationPct <= 0 {
		c.ConcentrationPct = d.ConcentrationPct
	}
}

// QuoteClient is the subset of the Jupiter client used by the honeypot check.
type QuoteClient interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error)
	SwapTransaction(ctx context.Context, quote *jupiter.Quote, userPublicKey string) (string, error)
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.log = l
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		a.now = now
	}
}

// Analyzer produces security reports. It holds no per-asset state.
type Analyzer struct {
	rpc    solana.RPCClient
	quotes QuoteClient
	cfg    Config
	log    *zap.Logger
	now    func() time.Time
}

// NewAnalyzer creates an analyzer. quotes may be nil, in which case the
// honeypot check always degrades to its conservative default.
func NewAnalyzer(rpc solana.RPCClient, quotes QuoteClient, cfg Config, opts ...Option) *Analyzer {
	cfg.applyDefaults()
	a := &Analyzer{
		rpc:    rpc,
		quotes: quotes,
		cfg:    cfg,
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.Named("risk")
	return a
}

// outcome is what one check contributes to a report.
type outcome struct {
	result domain.RiskCheckResult
	flags  []domain.RiskFlag
	apply  func(*domain.SecurityDetails)
}

// Analyze runs all checks concurrently and returns a fresh report.
// It never fails: a check that errors contributes its conservative default.
func (a *Analyzer) Analyze(ctx context.Context, asset domain.AssetIdentity) domain.SecurityReport {
	ctx, span := trace.StartSpan(ctx, "risk.Analyze")
	defer span.End()
	span.SetAttributes(attribute.String("mint", asset.Mint))

	start := a.now()
	pool := sync.OnceValues(func() (*poolInfo, error) {
		ctx, cancel := context.WithTimeout(ctx, a.cfg.CheckTimeout)
		defer cancel()
		return a.findPool(ctx, asset.Mint)
	})

	checks := []func(context.Context) outcome{
		func(ctx context.Context) outcome { return a.checkAuthority(ctx, asset) },
		func(ctx context.Context) outcome { return a.checkHolders(ctx, asset) },
		func(ctx context.Context) outcome { return a.checkHoneypot(ctx, asset) },
		func(ctx context.Context) outcome { return a.checkLiquidity(pool) },
		func(ctx context.Context) outcome { return a.checkLPBurn(ctx, pool) },
	}

	outcomes := make([]outcome, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, a.cfg.CheckTimeout)
			defer cancel()
			outcomes[i] = check(cctx)
			return nil
		})
	}
	_ = g.Wait()

	report := domain.SecurityReport{Asset: asset}
	var flags []domain.RiskFlag
	score := 0
	for _, o := range outcomes {
		if o.apply != nil {
			o.apply(&report.Details)
		}
		score += o.result.Penalty
		flags = append(flags, o.flags...)
		report.Checks = append(report.Checks, o.result)
		if o.result.Degraded {
			observability.RecordCheckDegraded(string(o.result.Check))
			a.log.Debug("check degraded",
				zap.String("mint", asset.Mint),
				zap.String("check", string(o.result.Check)),
				zap.String("error", o.result.Err))
		}
	}
	if score > MaxRiskScore {
		score = MaxRiskScore
	}

	report.RiskScore = score
	report.Flags = domain.NormalizeFlags(flags)
	report.IsSafe = IsSafe(score, report.Details)
	end := a.now()
	report.AnalyzedAt = end.UnixMilli()
	report.DurationMs = end.Sub(start).Milliseconds()

	observability.RecordRiskAnalysis(score, end.Sub(start).Seconds())
	span.SetAttributes(
		attribute.Int("risk_score", score),
		attribute.Bool("is_safe", report.IsSafe))

	a.log.Info("asset analyzed",
		zap.String("mint", asset.Mint),
		zap.Int("risk_score", score),
		zap.Bool("safe", report.IsSafe),
		zap.Any("flags", report.Flags),
		zap.Int64("duration_ms", report.DurationMs))
	return report
}

// IsSafe is the binary verdict: low score, no honeypot, both authorities
// revoked and a funded pool.
func IsSafe(score int, d domain.SecurityDetails) bool {
	return score < SafeRiskScore && !d.Honeypot && d.AuthoritiesRevoked() && d.HasLiquidity
}

func degraded(check domain.CheckName, penalty int, err error) domain.RiskCheckResult {
	return domain.RiskCheckResult{
		Check:    check,
		Passed:   false,
		Penalty:  penalty,
		Degraded: true,
		Err:      err.Error(),
	}
}
