package solana

import (
	"encoding/base64"
	"fmt"
)

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// Bytes decodes the base64 account data.
func (a *AccountInfo) Bytes() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return b, nil
}

// KeyedAccount is an account returned by getProgramAccounts.
type KeyedAccount struct {
	Pubkey  string
	Account AccountInfo
}

// ProgramAccountsOpts configures getProgramAccounts.
type ProgramAccountsOpts struct {
	DataSize  uint64     // 0 = no dataSize filter
	Memcmp    []Memcmp   // all must match
	DataSlice *DataSlice // nil = full data
}

// Memcmp compares base58 bytes at offset.
type Memcmp struct {
	Offset uint64
	Bytes  string
}

// DataSlice limits returned account data.
type DataSlice struct {
	Offset uint64
	Length uint64
}

// SimulationResult is the value of simulateTransaction.
type SimulationResult struct {
	Err           interface{}
	Logs          []string
	UnitsConsumed uint64
}
