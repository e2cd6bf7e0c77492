package domain

// UnknownLabel is displayed when a token has no on-chain name or symbol.
const UnknownLabel = "UNKNOWN"

// AssetIdentity identifies a tradable token.
type AssetIdentity struct {
	Mint     string  // token mint address
	Decimals int     // token decimals
	Name     *string // metadata name (nullable)
	Symbol   *string // metadata symbol (nullable)
}

// DisplayName returns the name or UnknownLabel.
func (a AssetIdentity) DisplayName() string {
	if a.Name == nil || *a.Name == "" {
		return UnknownLabel
	}
	return *a.Name
}

// DisplaySymbol returns the symbol or UnknownLabel.
func (a AssetIdentity) DisplaySymbol() string {
	if a.Symbol == nil || *a.Symbol == "" {
		return UnknownLabel
	}
	return *a.Symbol
}

// MarketOpenEvent is a newly created liquidity pool for an asset paired with SOL.
type MarketOpenEvent struct {
	Asset                AssetIdentity
	MarketID             string   // AMM pool account
	Signature            string   // pool creation transaction
	Slot                 int64    // Solana slot number
	LPMint               string   // pool LP token mint
	BaseVault            string   // vault holding the asset
	QuoteVault           string   // vault holding wrapped SOL
	InitialBaseLiquidity float64  // SOL deposited at creation
	InitialPriceEstimate float64  // SOL per token
	InitialLiquidityUSD  *float64 // SOL liquidity valued in USD (nullable)
	OpenTime             int64    // pool open time, Unix seconds (0 = immediately)
	ObservedAt           int64    // Unix timestamp in milliseconds
}
