package discovery

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"

	"solana-launch-gate/internal/domain"
	"solana-launch-gate/internal/solana"
)

// SkipReason explains why a transaction did not produce a market event.
type SkipReason string

const (
	SkipNotFound        SkipReason = "not_found"
	SkipFailed          SkipReason = "tx_failed"
	SkipNoInstruction   SkipReason = "no_instruction"
	SkipLayoutMismatch  SkipReason = "layout_mismatch"
	SkipNotSOLPair      SkipReason = "not_sol_pair"
	SkipUnknownDecimals SkipReason = "unknown_decimals"
)

// DecodeResult is either Decoded or Skipped.
type DecodeResult interface {
	isDecodeResult()
}

// Decoded carries a market event extracted from a pool-creation transaction.
type Decoded struct {
	Event domain.MarketOpenEvent
}

// Skipped carries the reason a transaction was not decoded.
type Skipped struct {
	Reason SkipReason
	Err    error // optional detail
}

func (Decoded) isDecodeResult() {}
func (Skipped) isDecodeResult() {}

// Decoder turns Raydium AMM v4 pool-creation transactions into market events.
type Decoder struct {
	programID  string
	nativeMint string
}

// NewDecoder creates a decoder for the given AMM program.
// An empty programID selects RaydiumAMMV4.
func NewDecoder(programID string) *Decoder {
	if programID == "" {
		programID = RaydiumAMMV4
	}
	return &Decoder{programID: programID, nativeMint: solana.NativeMint}
}

// Decode extracts a MarketOpenEvent from tx.
// Only pools pairing a token with wrapped SOL are decoded. Liquidity and
// price come from the vaults' post-transaction balances, falling back to
// the amounts in the instruction data.
func (d *Decoder) Decode(tx *solana.Transaction, observedAt int64) DecodeResult {
	if tx == nil {
		return Skipped{Reason: SkipNotFound}
	}
	if tx.Failed() {
		return Skipped{Reason: SkipFailed}
	}

	ix, err := FindInitialize2(tx, d.programID)
	if err != nil {
		if errors.Is(err, ErrLayout) {
			return Skipped{Reason: SkipLayoutMismatch, Err: err}
		}
		return Skipped{Reason: SkipNoInstruction, Err: err}
	}

	var (
		assetMint, assetVault, nativeVault string
		assetInit, nativeInit              uint64
		assetIsCoin                        bool
	)
	switch {
	case ix.PCMint == d.nativeMint && ix.CoinMint != d.nativeMint:
		assetMint, assetVault, nativeVault = ix.CoinMint, ix.CoinVault, ix.PCVault
		assetInit, nativeInit = ix.InitCoinAmount, ix.InitPCAmount
		assetIsCoin = true
	case ix.CoinMint == d.nativeMint && ix.PCMint != d.nativeMint:
		assetMint, assetVault, nativeVault = ix.PCMint, ix.PCVault, ix.CoinVault
		assetInit, nativeInit = ix.InitPCAmount, ix.InitCoinAmount
	default:
		return Skipped{Reason: SkipNotSOLPair}
	}

	keys := tx.AccountKeys()
	var balances []solana.TokenBalance
	if tx.Meta != nil {
		balances = tx.Meta.PostTokenBalances
	}

	decimals, ok := mintDecimals(balances, assetMint)
	if !ok && tx.Meta != nil {
		if initLog, found := ParseInitLog(tx.Meta.LogMessages); found {
			if assetIsCoin {
				decimals = int(initLog.CoinDecimals)
			} else {
				decimals = int(initLog.PCDecimals)
			}
			ok = true
		}
	}
	if !ok {
		return Skipped{Reason: SkipUnknownDecimals}
	}

	nativeRaw := vaultBalance(keys, balances, nativeVault, nativeInit)
	assetRaw := vaultBalance(keys, balances, assetVault, assetInit)

	liquidity := nativeRaw.Shift(-9)
	price := decimal.Zero
	if tokens := assetRaw.Shift(-int32(decimals)); tokens.IsPositive() {
		price = liquidity.DivRound(tokens, 18)
	}

	return Decoded{Event: domain.MarketOpenEvent{
		Asset: domain.AssetIdentity{
			Mint:     assetMint,
			Decimals: decimals,
		},
		MarketID:             ix.AMM,
		Signature:            tx.Signature,
		Slot:                 tx.Slot,
		LPMint:               ix.LPMint,
		BaseVault:            assetVault,
		QuoteVault:           nativeVault,
		InitialBaseLiquidity: liquidity.InexactFloat64(),
		InitialPriceEstimate: price.InexactFloat64(),
		OpenTime:             int64(ix.OpenTime),
		ObservedAt:           observedAt,
	}}
}

// mintDecimals returns the decimals reported for mint by any token balance.
func mintDecimals(balances []solana.TokenBalance, mint string) (int, bool) {
	for _, b := range balances {
		if b.Mint == mint {
			return b.Decimals, true
		}
	}
	return 0, false
}

// vaultBalance returns the raw post balance of vault, or fallback if the
// balance is not reported.
func vaultBalance(keys []string, balances []solana.TokenBalance, vault string, fallback uint64) decimal.Decimal {
	for _, b := range balances {
		if b.AccountIndex < 0 || b.AccountIndex >= len(keys) || keys[b.AccountIndex] != vault {
			continue
		}
		amount, err := decimal.NewFromString(b.Amount)
		if err == nil {
			return amount
		}
	}
	return RawAmount(fallback)
}

// RawAmount converts a base-unit token amount to a decimal.
func RawAmount(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
