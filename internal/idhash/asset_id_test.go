package idhash

import (
	"testing"
)

func TestComputeAssetID(t *testing.T) {
	tests := []struct {
		name        string
		mint        string
		marketID    string
		txSignature string
		fastPath    bool
		wantLen     int // hash length should be 64
	}{
		{
			name:        "standard path",
			mint:        "TokenMint123ABC",
			marketID:    "PoolAddr456DEF",
			txSignature: "TxSig789GHI",
			wantLen:     64,
		},
		{
			name:        "fast path",
			mint:        "TokenMint123ABC",
			marketID:    "PoolAddr456DEF",
			txSignature: "TxSig789GHI",
			fastPath:    true,
			wantLen:     64,
		},
		{
			name:        "empty market",
			mint:        "AnotherMint999",
			txSignature: "DifferentTx222",
			wantLen:     64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeAssetID(tt.mint, tt.marketID, tt.txSignature, tt.fastPath)

			if len(got) != tt.wantLen {
				t.Errorf("ComputeAssetID() length = %d, want %d", len(got), tt.wantLen)
			}

			got2 := ComputeAssetID(tt.mint, tt.marketID, tt.txSignature, tt.fastPath)
			if got != got2 {
				t.Errorf("ComputeAssetID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeAssetID_DifferentInputs(t *testing.T) {
	base := ComputeAssetID("Mint", "Pool", "Tx", false)

	if base == ComputeAssetID("DifferentMint", "Pool", "Tx", false) {
		t.Error("Different mint should produce different hash")
	}
	if base == ComputeAssetID("Mint", "OtherPool", "Tx", false) {
		t.Error("Different market should produce different hash")
	}
	if base == ComputeAssetID("Mint", "Pool", "OtherTx", false) {
		t.Error("Different signature should produce different hash")
	}
	if base == ComputeAssetID("Mint", "Pool", "Tx", true) {
		t.Error("Fast path should produce different hash")
	}
}
