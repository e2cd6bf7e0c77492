package discovery

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Raydium AMM v4 LiquidityStateV4 account layout.
const (
	PoolStateSize = 752

	poolBaseDecimalOffset  = 32
	poolQuoteDecimalOffset = 40
	poolOpenTimeOffset     = 224
	PoolBaseVaultOffset    = 336
	PoolQuoteVaultOffset   = 368
	PoolBaseMintOffset     = 400
	PoolQuoteMintOffset    = 432
	PoolLPMintOffset       = 464
	poolOpenOrdersOffset   = 496
	poolMarketIDOffset     = 528
	poolLPReserveOffset    = 720
)

// PoolState is the subset of an AMM v4 pool account used for risk checks.
type PoolState struct {
	BaseDecimals  uint64
	QuoteDecimals uint64
	OpenTime      uint64
	BaseVault     string
	QuoteVault    string
	BaseMint      string
	QuoteMint     string
	LPMint        string
	OpenOrders    string
	MarketID      string
	LPReserve     uint64
}

// ParsePoolState decodes an AMM v4 pool account.
func ParsePoolState(data []byte) (*PoolState, error) {
	if len(data) != PoolStateSize {
		return nil, fmt.Errorf("%w: pool state size %d != %d", ErrLayout, len(data), PoolStateSize)
	}
	key := func(off int) string { return base58.Encode(data[off : off+32]) }

	return &PoolState{
		BaseDecimals:  readUint64LE(data, poolBaseDecimalOffset),
		QuoteDecimals: readUint64LE(data, poolQuoteDecimalOffset),
		OpenTime:      readUint64LE(data, poolOpenTimeOffset),
		BaseVault:     key(PoolBaseVaultOffset),
		QuoteVault:    key(PoolQuoteVaultOffset),
		BaseMint:      key(PoolBaseMintOffset),
		QuoteMint:     key(PoolQuoteMintOffset),
		LPMint:        key(PoolLPMintOffset),
		OpenOrders:    key(poolOpenOrdersOffset),
		MarketID:      key(poolMarketIDOffset),
		LPReserve:     readUint64LE(data, poolLPReserveOffset),
	}, nil
}

// NativeVault returns the vault holding nativeMint, if the pool pairs with it.
func (p *PoolState) NativeVault(nativeMint string) (string, bool) {
	switch nativeMint {
	case p.QuoteMint:
		return p.QuoteVault, true
	case p.BaseMint:
		return p.BaseVault, true
	}
	return "", false
}
