// Package orchestrator gates new markets through liquidity, risk and score
// checks and hands admitted assets to an executor.
//
// Gate sequence per event (first failure wins):
//  1. Liquidity floor
//  2. Risk analysis: score ceiling, then the safety verdict
//  3. Final score and priority
//  4. Admission: AcceptScore, or FastAcceptScore on the fast path
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"solana-launch-gate/internal/domain"
	"solana-launch-gate/internal/eventbus"
	"solana-launch-gate/internal/execution"
	"solana-launch-gate/internal/idhash"
	"solana-launch-gate/internal/ingestion"
	"solana-launch-gate/internal/observability"
	"solana-launch-gate/internal/social"
	"solana-launch-gate/internal/storage"
	"solana-launch-gate/internal/trace"
)

// Defaults.
const (
	DefaultMinLiquidity    = 5.0
	DefaultMaxRiskScore    = 50
	DefaultAcceptScore     = 70
	DefaultFastAcceptScore = 60
	DefaultMaxInflight     = 64
	DefaultSocialTimeout   = 2 * time.Second
	DefaultExecuteTimeout  = 10 * time.Second
	DefaultPersistTimeout  = 5 * time.Second
)

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("orchestrator already running")

// Config holds the decision thresholds.
type Config struct {
	MinLiquidity    float64 // SOL; lower initial liquidity is rejected before analysis
	MaxRiskScore    int     // higher risk scores are rejected
	AcceptScore     int     // admission bar
	FastAcceptScore int     // admission bar on the fast path
	MaxInflight     int64   // concurrent evaluations
	MaxSocialBonus  float64 // cap on social score points
	SocialTimeout   time.Duration
	ExecuteTimeout  time.Duration
	PersistTimeout  time.Duration
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		MinLiquidity:    DefaultMinLiquidity,
		MaxRiskScore:    DefaultMaxRiskScore,
		AcceptScore:     DefaultAcceptScore,
		FastAcceptScore: DefaultFastAcceptScore,
		MaxInflight:     DefaultMaxInflight,
		MaxSocialBonus:  social.DefaultMaxBonus,
		SocialTimeout:   DefaultSocialTimeout,
		ExecuteTimeout:  DefaultExecuteTimeout,
		PersistTimeout:  DefaultPersistTimeout,
	}
}

func (c *Config) applyDefaults() {
	if c.MaxInflight <= 0 {
		c.MaxInflight = DefaultMaxInflight
	}
	if c.SocialTimeout <= 0 {
		c.SocialTimeout = DefaultSocialTimeout
	}
	if c.ExecuteTimeout <= 0 {
		c.ExecuteTimeout = DefaultExecuteTimeout
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = DefaultPersistTimeout
	}
}

// Analyzer produces a security report for an asset.
type Analyzer interface {
	Analyze(ctx context.Context, asset domain.AssetIdentity) domain.SecurityReport
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Record domain.DecisionRecord
	Asset  *domain.ScoredAsset // nil when rejected before scoring
}

// Stats is a snapshot of decision counters.
type Stats struct {
	Processed       uint64
	Accepted        uint64
	Rejected        uint64
	FastPath        uint64
	Executed        uint64
	ExecutionFailed uint64
	ByReason        map[domain.RejectReason]uint64
	AcceptanceRate  float64 // accepted / processed, 0 when nothing processed
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithSocialProvider enables the social score bonus.
func WithSocialProvider(p social.Provider) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.social = p
		}
	}
}

// WithExecutor hands accepted assets to e.
func WithExecutor(e execution.Executor) Option {
	return func(o *Orchestrator) {
		o.executor = e
	}
}

// WithDecisionStore persists every decision.
func WithDecisionStore(s storage.DecisionStore) Option {
	return func(o *Orchestrator) {
		o.decisions = s
	}
}

// WithReportStore persists every security report.
func WithReportStore(s storage.ReportStore) Option {
	return func(o *Orchestrator) {
		o.reports = s
	}
}

// WithClock sets the time source for decision timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator evaluates market events. Each event is evaluated on its own
// goroutine; there is no lock shared across assets.
type Orchestrator struct {
	cfg       Config
	analyzer  Analyzer
	social    social.Provider
	executor  execution.Executor
	decisions storage.DecisionStore
	reports   storage.ReportStore
	bus       *eventbus.Bus[Event]
	sem       *semaphore.Weighted
	now       func() time.Time
	log       *zap.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	processed       atomic.Uint64
	accepted        atomic.Uint64
	rejected        atomic.Uint64
	fastPath        atomic.Uint64
	executed        atomic.Uint64
	executionFailed atomic.Uint64

	reasonsMu sync.Mutex
	reasons   map[domain.RejectReason]uint64
}

// New creates an orchestrator.
func New(cfg Config, analyzer Analyzer, opts ...Option) *Orchestrator {
	cfg.applyDefaults()
	o := &Orchestrator{
		cfg:      cfg,
		analyzer: analyzer,
		social:   social.NoopProvider{},
		bus:      eventbus.New[Event](),
		sem:      semaphore.NewWeighted(cfg.MaxInflight),
		now:      time.Now,
		log:      zap.NewNop(),
		reasons:  make(map[domain.RejectReason]uint64),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.Named("orchestrator")
	return o
}

// Subscribe returns a channel receiving every event published after the call.
// The channel is closed when Run returns.
func (o *Orchestrator) Subscribe(buffer int) <-chan Event {
	return o.bus.Subscribe(buffer)
}

// Run evaluates new-market and fast-check events until events is closed or
// ctx is done, then waits for in-flight evaluations and closes the bus.
func (o *Orchestrator) Run(ctx context.Context, events <-chan ingestion.Event) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		o.wg.Wait()
		o.bus.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			o.dispatch(ctx, e)
		}
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, e ingestion.Event) {
	switch e.Kind {
	case ingestion.KindNewMarket, ingestion.KindFastCheck:
		if e.Market == nil {
			return
		}
		if err := o.sem.Acquire(ctx, 1); err != nil {
			return
		}
		market := *e.Market
		fast := e.Kind == ingestion.KindFastCheck
		o.wg.Add(1)
		observability.AddInFlight(1)
		go func() {
			defer o.wg.Done()
			defer o.sem.Release(1)
			defer observability.AddInFlight(-1)
			o.Evaluate(ctx, market, fast)
		}()
	case ingestion.KindConnected:
		o.log.Info("stream connected")
	case ingestion.KindDisconnected:
		o.log.Warn("stream disconnected", zap.Error(e.Err))
	case ingestion.KindError:
		o.log.Warn("ingest error", zap.Error(e.Err))
	}
}

// Evaluate runs the gate sequence for one market event and publishes the
// resulting events. Fast and standard evaluations of the same market are
// independent and get distinct IDs.
func (o *Orchestrator) Evaluate(ctx context.Context, event domain.MarketOpenEvent, fastPath bool) Decision {
	ctx, span := trace.StartSpan(ctx, "orchestrator.Evaluate")
	defer span.End()

	id := idhash.ComputeAssetID(event.Asset.Mint, event.MarketID, event.Signature, fastPath)
	span.SetAttributes(
		attribute.String("asset_id", id),
		attribute.String("mint", event.Asset.Mint),
		attribute.Bool("fast_path", fastPath))

	record := domain.DecisionRecord{
		DecisionID:   id,
		Mint:         event.Asset.Mint,
		MarketID:     event.MarketID,
		Signature:    event.Signature,
		FastPath:     fastPath,
		LiquiditySOL: event.InitialBaseLiquidity,
	}

	if event.InitialBaseLiquidity < o.cfg.MinLiquidity {
		return o.reject(ctx, record, nil, domain.RejectLowLiquidity,
			fmt.Sprintf("initial liquidity %.2f SOL below %.2f", event.InitialBaseLiquidity, o.cfg.MinLiquidity))
	}

	report := o.analyzer.Analyze(ctx, event.Asset)
	o.persistReport(ctx, report)
	risk := report.RiskScore
	record.RiskScore = &risk
	record.Flags = report.Flags

	if report.RiskScore > o.cfg.MaxRiskScore {
		return o.reject(ctx, record, nil, domain.RejectHighRisk,
			fmt.Sprintf("risk score %d above %d", report.RiskScore, o.cfg.MaxRiskScore))
	}
	if !report.IsSafe {
		return o.reject(ctx, record, nil, domain.RejectUnsafe, unsafeDetail(report))
	}

	signal := o.signal(ctx, event.Asset.Mint)
	score := Score(report, event.InitialBaseLiquidity, fastPath, social.Bonus(signal, o.cfg.MaxSocialBonus))
	priority := Priority(score, event.InitialBaseLiquidity, fastPath)
	record.FinalScore = &score
	record.Priority = &priority
	observability.RecordFinalScore(score)
	span.SetAttributes(attribute.Int("final_score", score))

	asset := &domain.ScoredAsset{
		ID:         id,
		Event:      event,
		Report:     report,
		Social:     signal,
		FastPath:   fastPath,
		FinalScore: score,
		Priority:   priority,
		ScoredAt:   o.now().UnixMilli(),
	}
	o.publish(ctx, Event{Kind: KindScored, AssetID: id, Mint: event.Asset.Mint, Asset: asset})

	if !o.cfg.Admit(score, fastPath) {
		return o.reject(ctx, record, asset, domain.RejectLowScore,
			fmt.Sprintf("final score %d below %d", score, o.cfg.admissionBar(fastPath)))
	}
	return o.accept(ctx, record, asset)
}

func (o *Orchestrator) accept(ctx context.Context, record domain.DecisionRecord, asset *domain.ScoredAsset) Decision {
	record.Accepted = true
	record.DecidedAt = o.now().UnixMilli()
	o.count(record)
	o.persistDecision(ctx, record)

	o.log.Info("asset accepted",
		zap.String("asset_id", asset.ID),
		zap.String("mint", record.Mint),
		zap.String("symbol", asset.Event.Asset.DisplaySymbol()),
		zap.Int("final_score", asset.FinalScore),
		zap.String("priority", asset.Priority.String()),
		zap.Bool("fast_path", record.FastPath))
	o.publish(ctx, Event{Kind: KindAccepted, AssetID: asset.ID, Mint: record.Mint, Asset: asset})

	if o.executor != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.execute(ctx, *asset)
		}()
	}
	return Decision{Record: record, Asset: asset}
}

func (o *Orchestrator) reject(ctx context.Context, record domain.DecisionRecord, asset *domain.ScoredAsset, reason domain.RejectReason, detail string) Decision {
	record.Reason = reason
	record.Detail = detail
	record.DecidedAt = o.now().UnixMilli()
	o.count(record)
	o.persistDecision(ctx, record)

	fields := []zap.Field{
		zap.String("asset_id", record.DecisionID),
		zap.String("mint", record.Mint),
		zap.String("reason", string(reason)),
		zap.String("detail", detail),
		zap.Bool("fast_path", record.FastPath),
		zap.Float64("liquidity_sol", record.LiquiditySOL),
	}
	if record.RiskScore != nil {
		fields = append(fields, zap.Int("risk_score", *record.RiskScore))
	}
	if record.FinalScore != nil {
		fields = append(fields, zap.Int("final_score", *record.FinalScore))
	}
	o.log.Debug("asset rejected", fields...)

	o.publish(ctx, Event{
		Kind:    KindRejected,
		AssetID: record.DecisionID,
		Mint:    record.Mint,
		Asset:   asset,
		Reason:  reason,
		Detail:  detail,
	})
	return Decision{Record: record, Asset: asset}
}

// unsafeDetail lists what kept an analyzed asset from a safe verdict.
func unsafeDetail(r domain.SecurityReport) string {
	var causes []string
	if r.Details.Honeypot {
		causes = append(causes, "honeypot")
	}
	if !r.Details.MintAuthorityRevoked {
		causes = append(causes, "mint authority active")
	}
	if !r.Details.FreezeAuthorityRevoked {
		causes = append(causes, "freeze authority active")
	}
	if !r.Details.HasLiquidity {
		causes = append(causes, "no liquidity")
	}
	if len(causes) == 0 {
		causes = append(causes, fmt.Sprintf("risk score %d", r.RiskScore))
	}
	return "unsafe: " + strings.Join(causes, ", ")
}

func (o *Orchestrator) execute(ctx context.Context, asset domain.ScoredAsset) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.ExecuteTimeout)
	defer cancel()

	receipt, err := o.executor.Submit(ctx, asset)
	observability.RecordExecution(err)
	if err != nil {
		o.executionFailed.Add(1)
		o.log.Error("execution submit failed", zap.String("asset_id", asset.ID), zap.Error(err))
		o.publish(ctx, Event{Kind: KindExecutionFailed, AssetID: asset.ID, Mint: asset.Event.Asset.Mint, Asset: &asset, Err: err})
		return
	}
	o.executed.Add(1)
	o.publish(ctx, Event{Kind: KindExecuted, AssetID: asset.ID, Mint: asset.Event.Asset.Mint, Asset: &asset, Receipt: &receipt})
}

// signal fetches the social signal. Failures count as no signal.
func (o *Orchestrator) signal(ctx context.Context, mint string) *domain.SocialSignal {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.SocialTimeout)
	defer cancel()

	s, err := o.social.Signal(ctx, mint)
	if err != nil {
		o.log.Debug("social signal unavailable", zap.String("mint", mint), zap.Error(err))
		return nil
	}
	return s
}

func (o *Orchestrator) count(record domain.DecisionRecord) {
	o.processed.Add(1)
	if record.FastPath {
		o.fastPath.Add(1)
	}
	if record.Accepted {
		o.accepted.Add(1)
	} else {
		o.rejected.Add(1)
		o.reasonsMu.Lock()
		o.reasons[record.Reason]++
		o.reasonsMu.Unlock()
	}
	observability.RecordDecision(record.Accepted, record.FastPath, string(record.Reason))
}

func (o *Orchestrator) persistDecision(ctx context.Context, record domain.DecisionRecord) {
	if o.decisions == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PersistTimeout)
	defer cancel()
	if err := o.decisions.Insert(ctx, &record); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		o.log.Warn("persist decision failed", zap.String("decision_id", record.DecisionID), zap.Error(err))
	}
}

func (o *Orchestrator) persistReport(ctx context.Context, report domain.SecurityReport) {
	if o.reports == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PersistTimeout)
	defer cancel()
	if err := o.reports.Insert(ctx, &report); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		o.log.Warn("persist report failed", zap.String("mint", report.Asset.Mint), zap.Error(err))
	}
}

// publish drops the event once ctx is done.
func (o *Orchestrator) publish(ctx context.Context, e Event) {
	e.At = o.now().UnixMilli()
	if err := o.bus.Publish(ctx, e); err != nil && !errors.Is(err, eventbus.ErrClosed) {
		o.log.Debug("event dropped", zap.String("kind", string(e.Kind)), zap.Error(err))
	}
}

// Stats returns a snapshot of the counters.
func (o *Orchestrator) Stats() Stats {
	s := Stats{
		Processed:       o.processed.Load(),
		Accepted:        o.accepted.Load(),
		Rejected:        o.rejected.Load(),
		FastPath:        o.fastPath.Load(),
		Executed:        o.executed.Load(),
		ExecutionFailed: o.executionFailed.Load(),
		ByReason:        make(map[domain.RejectReason]uint64),
	}
	o.reasonsMu.Lock()
	for k, v := range o.reasons {
		s.ByReason[k] = v
	}
	o.reasonsMu.Unlock()
	if s.Processed > 0 {
		s.AcceptanceRate = float64(s.Accepted) / float64(s.Processed)
	}
	return s
}
