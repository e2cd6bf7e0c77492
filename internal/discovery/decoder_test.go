package discovery

import (
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-launch-gate/internal/solana"
)

const assetMint = "AssetMint1111111111111111111111111111111111"

func requireDecoded(t *testing.T, r DecodeResult) Decoded {
	t.Helper()
	d, ok := r.(Decoded)
	require.Truef(t, ok, "expected Decoded, got %#v", r)
	return d
}

func requireSkipped(t *testing.T, r DecodeResult, reason SkipReason) {
	t.Helper()
	s, ok := r.(Skipped)
	require.Truef(t, ok, "expected Skipped, got %#v", r)
	assert.Equal(t, reason, s.Reason)
}

func TestDecoder_CoinIsAsset(t *testing.T) {
	tx := buildInitTx(initTx{
		coinMint: assetMint,
		pcMint:   solana.NativeMint,
		balances: []solana.TokenBalance{
			{AccountIndex: accCoinVault, Mint: assetMint, Amount: "1000000000000", Decimals: 6},
			{AccountIndex: accPCVault, Mint: solana.NativeMint, Amount: "45000000000", Decimals: 9},
		},
	})

	d := requireDecoded(t, NewDecoder("").Decode(tx, 42))
	ev := d.Event

	assert.Equal(t, assetMint, ev.Asset.Mint)
	assert.Equal(t, 6, ev.Asset.Decimals)
	assert.Equal(t, "key4", ev.MarketID)
	assert.Equal(t, "key7", ev.LPMint)
	assert.Equal(t, "key10", ev.BaseVault)
	assert.Equal(t, "key11", ev.QuoteVault)
	assert.Equal(t, "sig-init", ev.Signature)
	assert.Equal(t, int64(1000), ev.Slot)
	assert.Equal(t, int64(42), ev.ObservedAt)
	assert.InDelta(t, 45.0, ev.InitialBaseLiquidity, 1e-9)
	// 45 SOL / 1,000,000 tokens
	assert.InDelta(t, 0.000045, ev.InitialPriceEstimate, 1e-12)
	assert.Nil(t, ev.Asset.Name)
}

func TestDecoder_PCIsAsset(t *testing.T) {
	tx := buildInitTx(initTx{
		coinMint: solana.NativeMint,
		pcMint:   assetMint,
		balances: []solana.TokenBalance{
			{AccountIndex: accCoinVault, Mint: solana.NativeMint, Amount: "10000000000", Decimals: 9},
			{AccountIndex: accPCVault, Mint: assetMint, Amount: "500000000", Decimals: 9},
		},
	})

	ev := requireDecoded(t, NewDecoder(RaydiumAMMV4).Decode(tx, 0)).Event
	assert.Equal(t, assetMint, ev.Asset.Mint)
	assert.Equal(t, "key11", ev.BaseVault)
	assert.Equal(t, "key10", ev.QuoteVault)
	assert.InDelta(t, 10.0, ev.InitialBaseLiquidity, 1e-9)
	assert.InDelta(t, 20.0, ev.InitialPriceEstimate, 1e-9)
}

func TestDecoder_FallsBackToInstructionAmounts(t *testing.T) {
	tx := buildInitTx(initTx{
		coinMint:   assetMint,
		pcMint:     solana.NativeMint,
		pcAmount:   7_500_000_000,
		coinAmount: 3_000_000_000,
		balances: []solana.TokenBalance{
			// Only a user account reports the asset mint decimals.
			{AccountIndex: 18, Mint: assetMint, Amount: "0", Decimals: 3},
		},
	})

	ev := requireDecoded(t, NewDecoder("").Decode(tx, 0)).Event
	assert.Equal(t, 3, ev.Asset.Decimals)
	assert.InDelta(t, 7.5, ev.InitialBaseLiquidity, 1e-9)
	// 7.5 SOL / 3,000,000 tokens
	assert.InDelta(t, 0.0000025, ev.InitialPriceEstimate, 1e-12)
}

func TestDecoder_DecimalsFromRayLog(t *testing.T) {
	data := make([]byte, rayLogInitLen)
	data[0] = rayLogInit
	data[9] = 9  // pc decimals
	data[10] = 5 // coin decimals
	binary.LittleEndian.PutUint64(data[27:], 1)
	logLine := "Program log: ray_log: " + base64.StdEncoding.EncodeToString(data)

	tx := buildInitTx(initTx{
		coinMint:   assetMint,
		pcMint:     solana.NativeMint,
		pcAmount:   1_000_000_000,
		coinAmount: 100_000,
		logs:       []string{"Program log: initialize2: InitializeInstruction2", logLine},
	})

	ev := requireDecoded(t, NewDecoder("").Decode(tx, 0)).Event
	assert.Equal(t, 5, ev.Asset.Decimals)
	assert.InDelta(t, 1.0, ev.InitialPriceEstimate, 1e-9)
}

func TestDecoder_InnerInstruction(t *testing.T) {
	tx := buildInitTx(initTx{
		coinMint: assetMint,
		pcMint:   solana.NativeMint,
		inner:    true,
		balances: []solana.TokenBalance{
			{AccountIndex: accPCVault, Mint: solana.NativeMint, Amount: "5000000000", Decimals: 9},
			{AccountIndex: accCoinVault, Mint: assetMint, Amount: "5000000000", Decimals: 9},
		},
	})

	ev := requireDecoded(t, NewDecoder("").Decode(tx, 0)).Event
	assert.InDelta(t, 5.0, ev.InitialBaseLiquidity, 1e-9)
	assert.InDelta(t, 1.0, ev.InitialPriceEstimate, 1e-9)
}

func TestDecoder_Skips(t *testing.T) {
	decoder := NewDecoder("")

	t.Run("nil transaction", func(t *testing.T) {
		requireSkipped(t, decoder.Decode(nil, 0), SkipNotFound)
	})

	t.Run("failed transaction", func(t *testing.T) {
		tx := buildInitTx(initTx{coinMint: assetMint, pcMint: solana.NativeMint})
		tx.Meta.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
		requireSkipped(t, decoder.Decode(tx, 0), SkipFailed)
	})

	t.Run("too few accounts fails closed", func(t *testing.T) {
		tx := buildInitTx(initTx{coinMint: assetMint, pcMint: solana.NativeMint, accounts: 18})
		requireSkipped(t, decoder.Decode(tx, 0), SkipLayoutMismatch)
	})

	t.Run("short data fails closed", func(t *testing.T) {
		tx := buildInitTx(initTx{coinMint: assetMint, pcMint: solana.NativeMint})
		tx.Message.Instructions[0].Data = base58.Encode([]byte{initialize2Discriminator, 1, 2})
		requireSkipped(t, decoder.Decode(tx, 0), SkipLayoutMismatch)
	})

	t.Run("other instruction", func(t *testing.T) {
		tx := buildInitTx(initTx{coinMint: assetMint, pcMint: solana.NativeMint})
		tx.Message.Instructions[0].Data = base58.Encode([]byte{9, 0, 0})
		requireSkipped(t, decoder.Decode(tx, 0), SkipNoInstruction)
	})

	t.Run("other program", func(t *testing.T) {
		tx := buildInitTx(initTx{coinMint: assetMint, pcMint: solana.NativeMint})
		tx.Message.AccountKeys[21] = "SomeOtherProgram"
		requireSkipped(t, decoder.Decode(tx, 0), SkipNoInstruction)
	})

	t.Run("not a SOL pair", func(t *testing.T) {
		tx := buildInitTx(initTx{coinMint: assetMint, pcMint: "USDCMint"})
		requireSkipped(t, decoder.Decode(tx, 0), SkipNotSOLPair)
	})

	t.Run("unknown decimals", func(t *testing.T) {
		tx := buildInitTx(initTx{coinMint: assetMint, pcMint: solana.NativeMint, pcAmount: 1, coinAmount: 1})
		requireSkipped(t, decoder.Decode(tx, 0), SkipUnknownDecimals)
	})
}

func TestHasMarker(t *testing.T) {
	logs := []string{
		"Program 675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8 invoke [1]",
		"Program log: initialize2: InitializeInstruction2 { nonce: 254, open_time: 0 }",
	}
	assert.True(t, HasMarker(logs, DefaultMarker))
	assert.False(t, HasMarker(logs[:1], DefaultMarker))
	assert.False(t, HasMarker(nil, DefaultMarker))
}
