// Package ingestion turns the Raydium log stream into market events.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"solana-launch-gate/internal/dedup"
	"solana-launch-gate/internal/discovery"
	"solana-launch-gate/internal/domain"
	"solana-launch-gate/internal/eventbus"
	"solana-launch-gate/internal/observability"
	"solana-launch-gate/internal/pricing"
	"solana-launch-gate/internal/solana"
)

// Default configuration values.
const (
	DefaultFastCheckThreshold = 100.0 // SOL
	DefaultFetchTimeout       = 15 * time.Second
	DefaultMaxConcurrentFetch = 16
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("ingestor already started")

// Config holds ingestor settings.
type Config struct {
	ProgramID          string        // AMM program, empty = Raydium AMM v4
	Marker             string        // log marker, empty = "initialize2"
	CacheCapacity      int           // dedup capacity
	CacheTTL           time.Duration // dedup TTL
	SweepInterval      time.Duration // dedup sweep period
	EnableFastCheck    bool
	FastCheckThreshold float64       // SOL
	FetchTimeout       time.Duration // per transaction, retries included
	RetryDelay         time.Duration // first getTransaction retry delay
	MaxConcurrentFetch int64
}

// DefaultConfig returns the default ingestor configuration.
func DefaultConfig() Config {
	return Config{
		ProgramID:          discovery.RaydiumAMMV4,
		Marker:             discovery.DefaultMarker,
		CacheCapacity:      dedup.DefaultCapacity,
		CacheTTL:           dedup.DefaultTTL,
		SweepInterval:      dedup.DefaultSweepInterval,
		EnableFastCheck:    true,
		FastCheckThreshold: DefaultFastCheckThreshold,
		FetchTimeout:       DefaultFetchTimeout,
		RetryDelay:         DefaultBaseRetryDelay,
		MaxConcurrentFetch: DefaultMaxConcurrentFetch,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.ProgramID == "" {
		c.ProgramID = d.ProgramID
	}
	if c.Marker == "" {
		c.Marker = d.Marker
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = d.CacheCapacity
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.FastCheckThreshold <= 0 {
		c.FastCheckThreshold = d.FastCheckThreshold
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.MaxConcurrentFetch <= 0 {
		c.MaxConcurrentFetch = d.MaxConcurrentFetch
	}
}

// Stats is a snapshot of ingestor counters.
type Stats struct {
	Notifications uint64
	Filtered      uint64 // failed or without marker
	Duplicates    uint64
	FetchErrors   uint64
	Skipped       uint64 // fetched but not decoded
	Markets       uint64
	FastChecks    uint64
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Ingestor) {
		if l != nil {
			i.log = l
		}
	}
}

// WithMetadataResolver enables best-effort name/symbol lookup.
func WithMetadataResolver(r *discovery.MetadataResolver) Option {
	return func(i *Ingestor) {
		i.metadata = r
	}
}

// WithPriceOracle enables USD valuation of initial liquidity.
func WithPriceOracle(o pricing.Oracle) Option {
	return func(i *Ingestor) {
		i.oracle = o
	}
}

// WithCache replaces the dedup cache.
func WithCache(c *dedup.Cache) Option {
	return func(i *Ingestor) {
		i.cache = c
	}
}

// WithClock sets the time source for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) {
		i.now = now
	}
}

// Ingestor filters, deduplicates and decodes pool-creation notifications
// and publishes them as events.
type Ingestor struct {
	cfg      Config
	source   LogSource
	rpc      solana.RPCClient
	decoder  *discovery.Decoder
	metadata *discovery.MetadataResolver
	oracle   pricing.Oracle
	cache    *dedup.Cache
	bus      *eventbus.Bus[Event]
	sem      *semaphore.Weighted
	now      func() time.Time
	log      *zap.Logger

	started   atomic.Bool
	stopOnce  sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	connected atomic.Bool

	notifications atomic.Uint64
	filtered      atomic.Uint64
	duplicates    atomic.Uint64
	fetchErrors   atomic.Uint64
	skipped       atomic.Uint64
	markets       atomic.Uint64
	fastChecks    atomic.Uint64
}

// New creates an ingestor reading from source and fetching transactions through rpc.
func New(cfg Config, source LogSource, rpc solana.RPCClient, opts ...Option) *Ingestor {
	cfg.applyDefaults()
	i := &Ingestor{
		cfg:     cfg,
		source:  source,
		rpc:     rpc,
		decoder: discovery.NewDecoder(cfg.ProgramID),
		bus:     eventbus.New[Event](),
		sem:     semaphore.NewWeighted(cfg.MaxConcurrentFetch),
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.cache == nil {
		i.cache = dedup.New(cfg.CacheCapacity, cfg.CacheTTL)
	}
	i.log = i.log.Named("ingest")
	return i
}

// Subscribe returns a channel receiving every event published after the call.
// The channel is closed by Stop. Slow subscribers apply backpressure.
func (i *Ingestor) Subscribe(buffer int) <-chan Event {
	return i.bus.Subscribe(buffer)
}

// Start subscribes to the log source and starts the dedup sweeper.
// Subscribers should be registered first: connection events are published
// while the source connects.
func (i *Ingestor) Start(ctx context.Context) error {
	if !i.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	i.ctx, i.cancel = context.WithCancel(ctx)

	notifications, err := i.source.Subscribe(i.ctx, i.onState)
	if err != nil {
		i.cancel()
		i.bus.Close()
		return fmt.Errorf("subscribe log source: %w", err)
	}

	i.wg.Add(2)
	go func() {
		defer i.wg.Done()
		i.cache.Run(i.ctx, i.cfg.SweepInterval, func(removed int) {
			observability.UpdateDedupCacheSize(i.cache.Len())
			if removed > 0 {
				i.log.Debug("dedup sweep", zap.Int("removed", removed))
			}
		})
	}()
	go func() {
		defer i.wg.Done()
		i.consume(notifications)
	}()

	i.log.Info("ingestor started",
		zap.String("program", i.cfg.ProgramID),
		zap.String("marker", i.cfg.Marker),
		zap.Bool("fast_check", i.cfg.EnableFastCheck),
		zap.Float64("fast_check_threshold", i.cfg.FastCheckThreshold))
	return nil
}

// Stop cancels the subscription and sweeper, waits for in-flight work and
// closes subscriber channels. It is idempotent.
func (i *Ingestor) Stop() {
	i.stopOnce.Do(func() {
		if i.cancel != nil {
			i.cancel()
		}
		if err := i.source.Close(); err != nil {
			i.log.Warn("close log source", zap.Error(err))
		}
		i.wg.Wait()
		i.bus.Close()
		i.log.Info("ingestor stopped")
	})
}

// Stats returns a snapshot of the counters.
func (i *Ingestor) Stats() Stats {
	return Stats{
		Notifications: i.notifications.Load(),
		Filtered:      i.filtered.Load(),
		Duplicates:    i.duplicates.Load(),
		FetchErrors:   i.fetchErrors.Load(),
		Skipped:       i.skipped.Load(),
		Markets:       i.markets.Load(),
		FastChecks:    i.fastChecks.Load(),
	}
}

// Connected reports the last known stream state.
func (i *Ingestor) Connected() bool {
	return i.connected.Load()
}

func (i *Ingestor) consume(notifications <-chan Notification) {
	for {
		select {
		case <-i.ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			i.handle(n)
		}
	}
}

// handle filters and deduplicates n, then decodes it on its own goroutine.
func (i *Ingestor) handle(n Notification) {
	i.notifications.Add(1)
	observability.RecordNotification()
	if n.Slot > 0 {
		observability.UpdateHighestSlot(n.Slot)
	}

	if n.Failed {
		i.drop("tx_failed")
		return
	}
	if !n.Unfiltered && !discovery.HasMarker(n.Logs, i.cfg.Marker) {
		i.drop("no_marker")
		return
	}
	if i.cache.Seen(n.Signature) {
		i.duplicates.Add(1)
		observability.RecordDropped("duplicate")
		return
	}

	if err := i.sem.Acquire(i.ctx, 1); err != nil {
		return
	}
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		defer i.sem.Release(1)
		i.process(n)
	}()
}

func (i *Ingestor) drop(reason string) {
	i.filtered.Add(1)
	observability.RecordDropped(reason)
}

func (i *Ingestor) process(n Notification) {
	ctx, cancel := context.WithTimeout(i.ctx, i.cfg.FetchTimeout)
	defer cancel()

	tx, err := retryGetTransaction(ctx, i.rpc, n.Signature, i.cfg.RetryDelay, i.log)
	if err != nil {
		if i.ctx.Err() != nil {
			return
		}
		i.fetchErrors.Add(1)
		observability.RecordFetchError()
		i.log.Warn("fetch transaction failed", zap.String("signature", n.Signature), zap.Error(err))
		i.publish(Event{Kind: KindError, Err: fmt.Errorf("fetch %s: %w", n.Signature, err)})
		return
	}

	if n.Unfiltered && tx != nil && (tx.Meta == nil || !discovery.HasMarker(tx.Meta.LogMessages, i.cfg.Marker)) {
		i.drop("no_marker")
		return
	}

	switch res := i.decoder.Decode(tx, i.now().UnixMilli()).(type) {
	case discovery.Skipped:
		i.skipped.Add(1)
		observability.RecordDecodeSkip(string(res.Reason))
		i.log.Debug("transaction skipped",
			zap.String("signature", n.Signature),
			zap.String("reason", string(res.Reason)),
			zap.Error(res.Err))

	case discovery.Decoded:
		event := res.Event
		i.enrich(ctx, &event)
		i.emit(event)
	}
}

// enrich adds best-effort metadata and USD valuation.
func (i *Ingestor) enrich(ctx context.Context, event *domain.MarketOpenEvent) {
	if i.metadata != nil {
		name, symbol, err := i.metadata.Resolve(ctx, event.Asset.Mint)
		if err != nil {
			i.log.Debug("metadata lookup failed", zap.String("mint", event.Asset.Mint), zap.Error(err))
		}
		event.Asset.Name, event.Asset.Symbol = name, symbol
	}
	event.InitialLiquidityUSD = pricing.LiquidityUSD(ctx, i.oracle, event.InitialBaseLiquidity)
}

func (i *Ingestor) emit(event domain.MarketOpenEvent) {
	i.markets.Add(1)
	observability.RecordMarket(event.Slot, event.ObservedAt/1000)
	i.log.Info("new market",
		zap.String("mint", event.Asset.Mint),
		zap.String("symbol", event.Asset.DisplaySymbol()),
		zap.String("market", event.MarketID),
		zap.String("signature", event.Signature),
		zap.Float64("liquidity_sol", event.InitialBaseLiquidity),
		zap.Float64("price_sol", event.InitialPriceEstimate))

	i.publish(Event{Kind: KindNewMarket, Market: &event})

	if i.cfg.EnableFastCheck && event.InitialBaseLiquidity >= i.cfg.FastCheckThreshold {
		i.fastChecks.Add(1)
		observability.RecordFastCheck()
		fast := event
		i.publish(Event{Kind: KindFastCheck, Market: &fast})
	}
}

func (i *Ingestor) onState(s StateChange) {
	i.connected.Store(s.Connected)
	observability.SetStreamConnected(s.Connected)
	if s.Connected {
		i.log.Info("log stream connected")
		i.publish(Event{Kind: KindConnected})
		return
	}
	i.log.Warn("log stream disconnected", zap.Error(s.Err))
	i.publish(Event{Kind: KindDisconnected, Err: s.Err})
}

func (i *Ingestor) publish(e Event) {
	e.At = i.now().UnixMilli()
	if err := i.bus.Publish(i.ctx, e); err != nil && i.ctx.Err() == nil {
		i.log.Warn("publish event", zap.String("kind", string(e.Kind)), zap.Error(err))
	}
}
