package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Evaluation paths used in asset IDs.
const (
	PathStandard = "standard"
	PathFast     = "fast"
)

// ComputeAssetID computes a deterministic id for one evaluation of a market event.
// Formula: SHA256(mint|market_id|tx_signature|path)
// The fast and standard evaluations of the same market get distinct ids.
// Returns hex-encoded hash (64 characters).
func ComputeAssetID(
	mint string,
	marketID string,
	txSignature string,
	fastPath bool,
) string {
	path := PathStandard
	if fastPath {
		path = PathFast
	}

	data := fmt.Sprintf("%s|%s|%s|%s",
		mint,
		marketID,
		txSignature,
		path,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
