package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"solana-launch-gate/internal/config"
	"solana-launch-gate/internal/discovery"
	"solana-launch-gate/internal/domain"
	"solana-launch-gate/internal/jupiter"
	"solana-launch-gate/internal/logging"
	"solana-launch-gate/internal/orchestrator"
	"solana-launch-gate/internal/risk"
	"solana-launch-gate/internal/solana"
)

// output is the JSON document printed for one mint.
type output struct {
	Mint         string                   `json:"mint"`
	Name         string                   `json:"name"`
	Symbol       string                   `json:"symbol"`
	IsSafe       bool                     `json:"is_safe"`
	RiskScore    int                      `json:"risk_score"`
	Flags        []domain.RiskFlag        `json:"flags"`
	Details      domain.SecurityDetails   `json:"details"`
	Checks       []domain.RiskCheckResult `json:"checks"`
	DurationMs   int64                    `json:"duration_ms"`
	LiquiditySOL float64                  `json:"liquidity_sol"`
	FinalScore   *int                     `json:"final_score,omitempty"`
	Priority     *domain.Priority         `json:"priority,omitempty"`
}

func main() {
	configPath := flag.String("config", os.Getenv("GATE_CONFIG"), "Path to YAML config file (optional)")
	mint := flag.String("mint", "", "Token mint address to analyze")
	rpcEndpoint := flag.String("rpc-endpoint", "", "Override rpc_endpoint")
	timeout := flag.Duration("timeout", time.Minute, "Overall timeout")
	flag.Parse()

	if *mint == "" {
		fmt.Fprintln(os.Stderr, "--mint is required")
		os.Exit(2)
	}
	if _, err := solana.DecodePubkey(*mint); err != nil {
		fmt.Fprintf(os.Stderr, "invalid mint: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *rpcEndpoint != "" {
		cfg.RPCEndpoint = *rpcEndpoint
	}

	logger, err := logging.New(cfg.Log.Level, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancel = context.WithTimeout(ctx, *timeout)
	defer cancel()

	out, err := analyze(ctx, cfg, *mint, logger)
	if err != nil {
		logger.Fatal("analysis failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Fatal("encode report", zap.Error(err))
	}
}

func analyze(ctx context.Context, cfg *config.Config, mint string, logger *zap.Logger) (*output, error) {
	rpc := solana.NewHTTPClient(cfg.RPCEndpoint)

	asset := domain.AssetIdentity{Mint: mint}
	resolver := discovery.NewMetadataResolver(rpc, 0)
	name, symbol, err := resolver.Resolve(ctx, mint)
	if err != nil {
		logger.Debug("metadata unavailable", zap.Error(err))
	}
	asset.Name, asset.Symbol = name, symbol

	analyzer := risk.NewAnalyzer(rpc, jupiter.NewClient(cfg.Risk.JupiterURL), cfg.AnalyzerConfig(), risk.WithLogger(logger))
	report := analyzer.Analyze(ctx, asset)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &output{
		Mint:         mint,
		Name:         asset.DisplayName(),
		Symbol:       asset.DisplaySymbol(),
		IsSafe:       report.IsSafe,
		RiskScore:    report.RiskScore,
		Flags:        report.Flags,
		Details:      report.Details,
		Checks:       report.Checks,
		DurationMs:   report.DurationMs,
		LiquiditySOL: report.Details.PoolLiquiditySOL,
	}

	// Score against current pool liquidity when the asset would pass the risk gate.
	ocfg := cfg.OrchestratorConfig()
	if report.IsSafe && report.RiskScore <= ocfg.MaxRiskScore {
		score := orchestrator.Score(report, out.LiquiditySOL, false, 0)
		priority := orchestrator.Priority(score, out.LiquiditySOL, false)
		out.FinalScore = &score
		out.Priority = &priority
	}
	return out, nil
}
