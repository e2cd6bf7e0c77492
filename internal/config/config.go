// Package config loads gate settings from an optional YAML file, a .env file
// and GATE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"solana-launch-gate/internal/dedup"
	"solana-launch-gate/internal/discovery"
	"solana-launch-gate/internal/execution"
	"solana-launch-gate/internal/ingestion"
	"solana-launch-gate/internal/jupiter"
	"solana-launch-gate/internal/orchestrator"
	"solana-launch-gate/internal/risk"
	"solana-launch-gate/internal/social"
)

// EnvPrefix is prepended to every environment key: decision.accept_score
// is read from GATE_DECISION_ACCEPT_SCORE.
const EnvPrefix = "GATE"

// Ingest modes.
const (
	IngestWS   = "ws"
	IngestPoll = "poll"
)

// Execution modes.
const (
	ExecutionDryRun = "dry-run"
	ExecutionRedis  = "redis"
	ExecutionOff    = "off"
)

// Price modes.
const (
	PriceFixed   = "fixed"
	PriceJupiter = "jupiter"
)

// Config is the full gate configuration.
type Config struct {
	RPCEndpoint   string `mapstructure:"rpc_endpoint"`
	WSEndpoint    string `mapstructure:"ws_endpoint"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	UseMemory     bool   `mapstructure:"use_memory"`
	MetricsAddr   string `mapstructure:"metrics_addr"`

	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Decision  DecisionConfig  `mapstructure:"decision"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Price     PriceConfig     `mapstructure:"price"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	PrettyPrint bool `mapstructure:"pretty_print"`
}

type IngestConfig struct {
	Mode               string        `mapstructure:"mode"`
	ProgramID          string        `mapstructure:"program_id"`
	Marker             string        `mapstructure:"marker"`
	CacheCapacity      int           `mapstructure:"cache_capacity"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	EnableFastCheck    bool          `mapstructure:"enable_fast_check"`
	FastCheckThreshold float64       `mapstructure:"fast_check_threshold"`
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	ResolveMetadata    bool          `mapstructure:"resolve_metadata"`
}

type RiskConfig struct {
	JupiterURL       string        `mapstructure:"jupiter_url"`
	SimulationWallet string        `mapstructure:"simulation_wallet"`
	TrialAmountSOL   float64       `mapstructure:"trial_amount_sol"`
	CheckTimeout     time.Duration `mapstructure:"check_timeout"`
	BurnSinks        []string      `mapstructure:"burn_sinks"`
}

type DecisionConfig struct {
	MinLiquidity    float64 `mapstructure:"min_liquidity"`
	MaxRiskScore    int     `mapstructure:"max_risk_score"`
	AcceptScore     int     `mapstructure:"accept_score"`
	FastAcceptScore int     `mapstructure:"fast_accept_score"`
	MaxInflight     int64   `mapstructure:"max_inflight"`
	MaxSocialBonus  float64 `mapstructure:"max_social_bonus"`
}

type ExecutionConfig struct {
	Mode   string `mapstructure:"mode"`
	Stream string `mapstructure:"stream"`
}

type PriceConfig struct {
	Mode        string        `mapstructure:"mode"`
	FixedSOLUSD float64       `mapstructure:"fixed_sol_usd"`
	JupiterURL  string        `mapstructure:"jupiter_url"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// ValidationError lists every invalid setting found by Validate.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// setDefaults registers every key so env overrides work without a file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc_endpoint", "https://api.mainnet-beta.solana.com")
	v.SetDefault("ws_endpoint", "wss://api.mainnet-beta.solana.com")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("clickhouse_dsn", "")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("use_memory", true)
	v.SetDefault("metrics_addr", ":9090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.pretty_print", false)

	v.SetDefault("ingest.mode", IngestWS)
	v.SetDefault("ingest.program_id", discovery.RaydiumAMMV4)
	v.SetDefault("ingest.marker", discovery.DefaultMarker)
	v.SetDefault("ingest.cache_capacity", dedup.DefaultCapacity)
	v.SetDefault("ingest.cache_ttl", dedup.DefaultTTL)
	v.SetDefault("ingest.sweep_interval", dedup.DefaultSweepInterval)
	v.SetDefault("ingest.enable_fast_check", true)
	v.SetDefault("ingest.fast_check_threshold", ingestion.DefaultFastCheckThreshold)
	v.SetDefault("ingest.fetch_timeout", ingestion.DefaultFetchTimeout)
	v.SetDefault("ingest.poll_interval", ingestion.DefaultPollInterval)
	v.SetDefault("ingest.resolve_metadata", true)

	v.SetDefault("risk.jupiter_url", jupiter.DefaultSwapURL)
	v.SetDefault("risk.simulation_wallet", "")
	v.SetDefault("risk.trial_amount_sol", risk.DefaultTrialAmountSOL)
	v.SetDefault("risk.check_timeout", risk.DefaultCheckTimeout)
	v.SetDefault("risk.burn_sinks", risk.DefaultBurnSinks)

	v.SetDefault("decision.min_liquidity", orchestrator.DefaultMinLiquidity)
	v.SetDefault("decision.max_risk_score", orchestrator.DefaultMaxRiskScore)
	v.SetDefault("decision.accept_score", orchestrator.DefaultAcceptScore)
	v.SetDefault("decision.fast_accept_score", orchestrator.DefaultFastAcceptScore)
	v.SetDefault("decision.max_inflight", orchestrator.DefaultMaxInflight)
	v.SetDefault("decision.max_social_bonus", social.DefaultMaxBonus)

	v.SetDefault("execution.mode", ExecutionDryRun)
	v.SetDefault("execution.stream", execution.DefaultStream)

	v.SetDefault("price.mode", PriceFixed)
	v.SetDefault("price.fixed_sol_usd", 150.0)
	v.SetDefault("price.jupiter_url", jupiter.DefaultPriceURL)
	v.SetDefault("price.cache_ttl", 30*time.Second)
}

// Load reads .env (when present), then path (when non-empty), then the
// environment. Later sources win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// Validate checks the settings needed by the selected modes.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.RPCEndpoint == "" {
		add("rpc_endpoint is required")
	}
	switch c.Ingest.Mode {
	case IngestWS:
		if c.WSEndpoint == "" {
			add("ws_endpoint is required for ingest.mode=ws")
		}
	case IngestPoll:
		if c.Ingest.PollInterval <= 0 {
			add("ingest.poll_interval must be positive")
		}
	default:
		add("ingest.mode must be %q or %q, got %q", IngestWS, IngestPoll, c.Ingest.Mode)
	}

	if !c.UseMemory && c.PostgresDSN == "" {
		add("postgres_dsn is required when use_memory=false")
	}

	switch c.Execution.Mode {
	case ExecutionDryRun, ExecutionOff:
	case ExecutionRedis:
		if c.RedisAddr == "" {
			add("redis_addr is required for execution.mode=redis")
		}
	default:
		add("execution.mode must be one of %s, %s, %s; got %q",
			ExecutionDryRun, ExecutionRedis, ExecutionOff, c.Execution.Mode)
	}

	switch c.Price.Mode {
	case PriceFixed:
		if c.Price.FixedSOLUSD <= 0 {
			add("price.fixed_sol_usd must be positive")
		}
	case PriceJupiter:
		if c.Price.JupiterURL == "" {
			add("price.jupiter_url is required for price.mode=jupiter")
		}
	default:
		add("price.mode must be %q or %q, got %q", PriceFixed, PriceJupiter, c.Price.Mode)
	}

	d := c.Decision
	if d.MaxRiskScore < 0 || d.MaxRiskScore > 100 {
		add("decision.max_risk_score must be in [0, 100]")
	}
	if d.AcceptScore < 0 || d.AcceptScore > 100 {
		add("decision.accept_score must be in [0, 100]")
	}
	if d.FastAcceptScore < 0 || d.FastAcceptScore > d.AcceptScore {
		add("decision.fast_accept_score must be in [0, accept_score]")
	}
	if d.MinLiquidity < 0 {
		add("decision.min_liquidity must not be negative")
	}
	if c.Risk.JupiterURL == "" {
		add("risk.jupiter_url is required")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// IngestorConfig maps the ingest section onto the ingestor settings.
func (c *Config) IngestorConfig() ingestion.Config {
	return ingestion.Config{
		ProgramID:          c.Ingest.ProgramID,
		Marker:             c.Ingest.Marker,
		CacheCapacity:      c.Ingest.CacheCapacity,
		CacheTTL:           c.Ingest.CacheTTL,
		SweepInterval:      c.Ingest.SweepInterval,
		EnableFastCheck:    c.Ingest.EnableFastCheck,
		FastCheckThreshold: c.Ingest.FastCheckThreshold,
		FetchTimeout:       c.Ingest.FetchTimeout,
	}
}

// AnalyzerConfig maps the risk section onto the analyzer settings.
func (c *Config) AnalyzerConfig() risk.Config {
	cfg := risk.DefaultConfig()
	cfg.CheckTimeout = c.Risk.CheckTimeout
	cfg.TrialAmountSOL = c.Risk.TrialAmountSOL
	cfg.SimulationWallet = c.Risk.SimulationWallet
	if len(c.Risk.BurnSinks) > 0 {
		cfg.BurnSinks = c.Risk.BurnSinks
	}
	if c.Ingest.ProgramID != "" {
		cfg.AMMProgramID = c.Ingest.ProgramID
	}
	return cfg
}

// OrchestratorConfig maps the decision section onto the orchestrator thresholds.
func (c *Config) OrchestratorConfig() orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	cfg.MinLiquidity = c.Decision.MinLiquidity
	cfg.MaxRiskScore = c.Decision.MaxRiskScore
	cfg.AcceptScore = c.Decision.AcceptScore
	cfg.FastAcceptScore = c.Decision.FastAcceptScore
	cfg.MaxInflight = c.Decision.MaxInflight
	cfg.MaxSocialBonus = c.Decision.MaxSocialBonus
	return cfg
}
