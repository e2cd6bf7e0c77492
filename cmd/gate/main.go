package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-launch-gate/internal/config"
	"solana-launch-gate/internal/discovery"
	"solana-launch-gate/internal/execution"
	"solana-launch-gate/internal/ingestion"
	"solana-launch-gate/internal/jupiter"
	"solana-launch-gate/internal/logging"
	"solana-launch-gate/internal/observability"
	"solana-launch-gate/internal/orchestrator"
	"solana-launch-gate/internal/pricing"
	"solana-launch-gate/internal/risk"
	"solana-launch-gate/internal/social"
	"solana-launch-gate/internal/solana"
	"solana-launch-gate/internal/storage"
	chstore "solana-launch-gate/internal/storage/clickhouse"
	"solana-launch-gate/internal/storage/memory"
	"solana-launch-gate/internal/storage/migrations"
	pgstore "solana-launch-gate/internal/storage/postgres"
	"solana-launch-gate/internal/trace"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("GATE_CONFIG"), "Path to YAML config file (optional)")
	rpcEndpoint := flag.String("rpc-endpoint", "", "Override rpc_endpoint")
	wsEndpoint := flag.String("ws-endpoint", "", "Override ws_endpoint")
	mode := flag.String("mode", "", "Override ingest.mode: ws or poll")
	execMode := flag.String("execution", "", "Override execution.mode: dry-run, redis or off")
	useMemory := flag.Bool("use-memory", false, "Force in-memory storage")
	statsInterval := flag.Duration("stats-interval", time.Minute, "Interval between stats log lines (0 disables)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *rpcEndpoint != "" {
		cfg.RPCEndpoint = *rpcEndpoint
	}
	if *wsEndpoint != "" {
		cfg.WSEndpoint = *wsEndpoint
	}
	if *mode != "" {
		cfg.Ingest.Mode = *mode
	}
	if *execMode != "" {
		cfg.Execution.Mode = *execMode
	}
	if *useMemory {
		cfg.UseMemory = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := trace.Init(trace.Config{Enabled: cfg.Tracing.Enabled, PrettyPrint: cfg.Tracing.PrettyPrint}); err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}
	defer flushTraces(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, *statsInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("gate stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// stores bundles the persistence backends.
type stores struct {
	decisions storage.DecisionStore
	reports   storage.ReportStore
	cursors   storage.CursorStore
	close     func()
}

func run(parent context.Context, cfg *config.Config, logger *zap.Logger, statsInterval time.Duration) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	rpc := solana.NewHTTPClient(cfg.RPCEndpoint,
		solana.WithObserver(func(method string, d time.Duration, err error) {
			observability.RecordRPCCall(method, d.Seconds(), err)
		}))

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	source, err := newSource(cfg, rpc, st.cursors, logger)
	if err != nil {
		return err
	}

	ingestOpts := []ingestion.Option{
		ingestion.WithLogger(logger),
		ingestion.WithPriceOracle(newOracle(cfg)),
	}
	if cfg.Ingest.ResolveMetadata {
		ingestOpts = append(ingestOpts, ingestion.WithMetadataResolver(discovery.NewMetadataResolver(rpc, 0)))
	}
	ingestor := ingestion.New(cfg.IngestorConfig(), source, rpc, ingestOpts...)

	quotes := jupiter.NewClient(cfg.Risk.JupiterURL)
	analyzer := risk.NewAnalyzer(rpc, quotes, cfg.AnalyzerConfig(), risk.WithLogger(logger))

	executor, closeExecutor, err := newExecutor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeExecutor()

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithSocialProvider(social.NoopProvider{}),
		orchestrator.WithDecisionStore(st.decisions),
		orchestrator.WithReportStore(st.reports),
	}
	if executor != nil {
		orchOpts = append(orchOpts, orchestrator.WithExecutor(executor))
	}
	orch := orchestrator.New(cfg.OrchestratorConfig(), analyzer, orchOpts...)

	events := ingestor.Subscribe(256)
	decisions := orch.Subscribe(256)

	server := newServer(cfg.MetricsAddr, ingestor)

	g, gctx := errgroup.WithContext(ctx)

	if server != nil {
		g.Go(func() error {
			logger.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err := ingestor.Start(gctx); err != nil {
		return err
	}

	g.Go(func() error {
		defer ingestor.Stop()
		return orch.Run(gctx, events)
	})

	g.Go(func() error {
		logDecisions(decisions, logger)
		return nil
	})

	if statsInterval > 0 {
		g.Go(func() error {
			logStats(gctx, statsInterval, ingestor, orch, logger)
			return nil
		})
	}

	logger.Info("gate started",
		zap.String("ingest_mode", cfg.Ingest.Mode),
		zap.String("execution_mode", cfg.Execution.Mode),
		zap.Bool("use_memory", cfg.UseMemory))

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-parent.Done():
		logger.Info("shutdown signal received")
	}

	select {
	case err := <-done:
		return err
	case <-time.After(shutdownTimeout):
		return fmt.Errorf("graceful shutdown timed out after %s", shutdownTimeout)
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	st := &stores{
		decisions: memory.NewDecisionStore(),
		reports:   memory.NewReportStore(),
		cursors:   memory.NewCursorStore(),
		close:     func() {},
	}
	var closers []func()

	if !cfg.UseMemory {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := migrations.ApplyPostgres(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		st.decisions = pgstore.NewDecisionStore(pool)
		st.cursors = pgstore.NewCursorStore(pool)
		logger.Info("using postgres decision store")
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := openClickhouse(ctx, cfg.ClickhouseDSN, logger)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, err
		}
		closers = append(closers, func() { _ = conn.Close() })
		st.reports = chstore.NewReportStore(conn)
		logger.Info("using clickhouse report store")
	}

	st.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return st, nil
}

// openClickhouse creates the report database if needed, connects to it and
// applies the schema.
func openClickhouse(ctx context.Context, dsn string, logger *zap.Logger) (*chstore.Conn, error) {
	if _, err := chstore.EnsureDatabase(ctx, dsn); err != nil {
		return nil, fmt.Errorf("clickhouse database: %w", err)
	}
	conn, err := chstore.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := migrations.ApplyClickhouse(ctx, conn, logger); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	return conn, nil
}

func newSource(cfg *config.Config, rpc solana.RPCClient, cursors storage.CursorStore, logger *zap.Logger) (ingestion.LogSource, error) {
	switch cfg.Ingest.Mode {
	case config.IngestWS:
		wsCfg := solana.DefaultWSConfig()
		return ingestion.NewWSLogSource(cfg.WSEndpoint, []string{cfg.Ingest.ProgramID}, wsCfg, ingestion.DialWS), nil
	case config.IngestPoll:
		src := ingestion.NewPollingLogSource(rpc, cfg.Ingest.ProgramID, cfg.Ingest.PollInterval, ingestion.DefaultPollLimit, logger)
		return src.WithCursorStore(cursors), nil
	default:
		return nil, fmt.Errorf("unknown ingest mode %q", cfg.Ingest.Mode)
	}
}

func newOracle(cfg *config.Config) pricing.Oracle {
	if cfg.Price.Mode == config.PriceJupiter {
		client := jupiter.NewClient(cfg.Risk.JupiterURL, jupiter.WithPriceURL(cfg.Price.JupiterURL))
		return pricing.NewCachedOracle(client, cfg.Price.CacheTTL)
	}
	return pricing.FixedOracle{Price: cfg.Price.FixedSOLUSD}
}

func newExecutor(ctx context.Context, cfg *config.Config, logger *zap.Logger) (execution.Executor, func(), error) {
	switch cfg.Execution.Mode {
	case config.ExecutionOff:
		return nil, func() {}, nil
	case config.ExecutionRedis:
		client, err := execution.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		exec := execution.NewRedisStreamExecutor(client,
			execution.WithStream(cfg.Execution.Stream),
			execution.WithRedisLogger(logger))
		return exec, func() { _ = client.Close() }, nil
	default:
		return execution.NewDryRunExecutor(logger), func() {}, nil
	}
}

func newServer(addr string, ingestor *ingestion.Ingestor) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !ingestor.Connected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("stream disconnected"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func logDecisions(events <-chan orchestrator.Event, logger *zap.Logger) {
	for e := range events {
		switch e.Kind {
		case orchestrator.KindExecuted:
			logger.Info("asset handed to executor",
				zap.String("asset_id", e.AssetID),
				zap.String("mint", e.Mint),
				zap.String("reference", e.Receipt.Reference))
		case orchestrator.KindExecutionFailed:
			logger.Warn("asset execution failed",
				zap.String("asset_id", e.AssetID),
				zap.String("mint", e.Mint),
				zap.Error(e.Err))
		}
	}
}

func logStats(ctx context.Context, interval time.Duration, ingestor *ingestion.Ingestor, orch *orchestrator.Orchestrator, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			is := ingestor.Stats()
			ds := orch.Stats()
			reasons := make(map[string]uint64, len(ds.ByReason))
			for k, v := range ds.ByReason {
				reasons[string(k)] = v
			}
			logger.Info("stats",
				zap.Uint64("notifications", is.Notifications),
				zap.Uint64("duplicates", is.Duplicates),
				zap.Uint64("markets", is.Markets),
				zap.Uint64("fast_checks", is.FastChecks),
				zap.Uint64("processed", ds.Processed),
				zap.Uint64("accepted", ds.Accepted),
				zap.Uint64("rejected", ds.Rejected),
				zap.Uint64("executed", ds.Executed),
				zap.Float64("acceptance_rate", ds.AcceptanceRate),
				zap.Any("rejected_by_reason", reasons))
		}
	}
}

func flushTraces(logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := trace.Shutdown(ctx); err != nil {
		logger.Warn("flush traces", zap.Error(err))
	}
}
