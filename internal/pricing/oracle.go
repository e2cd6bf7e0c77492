// Package pricing provides the SOL/USD reference price used to value new pools.
package pricing

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"solana-launch-gate/internal/solana"
)

// DefaultCacheTTL is how long a fetched price is reused.
const DefaultCacheTTL = 30 * time.Second

// ErrInvalidPrice is returned when a price is not positive.
var ErrInvalidPrice = errors.New("invalid price")

// Oracle returns the current SOL price in USD.
type Oracle interface {
	SOLPriceUSD(ctx context.Context) (float64, error)
}

// FixedOracle returns a constant price.
type FixedOracle struct {
	Price float64
}

// SOLPriceUSD returns the configured price.
func (o FixedOracle) SOLPriceUSD(context.Context) (float64, error) {
	if o.Price <= 0 {
		return 0, ErrInvalidPrice
	}
	return o.Price, nil
}

// PriceSource fetches the USD price of a mint.
type PriceSource interface {
	Price(ctx context.Context, mint string) (float64, error)
}

// CachedOracle queries a PriceSource for wrapped SOL and caches the result.
// Concurrent refreshes share one fetch. A failed refresh returns the last good
// price while it is younger than maxStale.
type CachedOracle struct {
	source   PriceSource
	ttl      time.Duration
	maxStale time.Duration
	now      func() time.Time
	flight   singleflight.Group

	mu        sync.Mutex // guards price and fetchedAt, never held across a fetch
	price     float64
	fetchedAt time.Time
}

// NewCachedOracle creates an oracle over source. Non-positive ttl uses DefaultCacheTTL.
func NewCachedOracle(source PriceSource, ttl time.Duration) *CachedOracle {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedOracle{
		source:   source,
		ttl:      ttl,
		maxStale: 10 * ttl,
		now:      time.Now,
	}
}

// SOLPriceUSD returns the cached price or fetches a fresh one.
func (o *CachedOracle) SOLPriceUSD(ctx context.Context) (float64, error) {
	price, fetchedAt := o.cached()
	if price > 0 && o.now().Sub(fetchedAt) < o.ttl {
		return price, nil
	}

	var err error
	select {
	case r := <-o.flight.DoChan(solana.NativeMint, func() (any, error) { return o.refresh(ctx) }):
		if r.Err == nil {
			return r.Val.(float64), nil
		}
		err = r.Err
	case <-ctx.Done():
		err = ctx.Err()
	}

	price, fetchedAt = o.cached()
	if price > 0 && o.now().Sub(fetchedAt) < o.maxStale {
		return price, nil
	}
	return 0, err
}

func (o *CachedOracle) cached() (float64, time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.price, o.fetchedAt
}

func (o *CachedOracle) refresh(ctx context.Context) (float64, error) {
	price, err := o.source.Price(ctx, solana.NativeMint)
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, ErrInvalidPrice
	}

	o.mu.Lock()
	o.price = price
	o.fetchedAt = o.now()
	o.mu.Unlock()
	return price, nil
}

// LiquidityUSD values sol at the oracle price. A nil oracle or a failed
// lookup yields nil.
func LiquidityUSD(ctx context.Context, oracle Oracle, sol float64) *float64 {
	if oracle == nil {
		return nil
	}
	price, err := oracle.SOLPriceUSD(ctx)
	if err != nil {
		return nil
	}
	usd := sol * price
	return &usd
}
