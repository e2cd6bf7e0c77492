package solana

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// SPL account sizes.
const (
	MintAccountSize  = 82
	TokenAccountSize = 165
)

// Offsets into a token account.
const (
	TokenAccountMintOffset   = 0
	TokenAccountOwnerOffset  = 32
	TokenAccountAmountOffset = 64
)

// MintAccount is the decoded base layout of an SPL mint.
// Token-2022 mints share the first 82 bytes.
type MintAccount struct {
	MintAuthority   *string // nil = revoked
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *string // nil = revoked
}

// ParseMint decodes SPL Token mint account data.
// Layout: mintAuthority COption<Pubkey> (4+32), supply u64, decimals u8,
// isInitialized bool, freezeAuthority COption<Pubkey> (4+32).
func ParseMint(data []byte) (*MintAccount, error) {
	if len(data) < MintAccountSize {
		return nil, fmt.Errorf("mint data too short: %d", len(data))
	}

	m := &MintAccount{
		Supply:        binary.LittleEndian.Uint64(data[36:44]),
		Decimals:      data[44],
		IsInitialized: data[45] != 0,
	}
	if binary.LittleEndian.Uint32(data[0:4]) != 0 {
		auth := base58.Encode(data[4:36])
		m.MintAuthority = &auth
	}
	if binary.LittleEndian.Uint32(data[46:50]) != 0 {
		auth := base58.Encode(data[50:82])
		m.FreezeAuthority = &auth
	}
	return m, nil
}

// TokenAccount is the decoded prefix of an SPL token account.
type TokenAccount struct {
	Mint   string
	Owner  string
	Amount uint64
}

// ParseTokenAccount decodes the mint, owner and amount of a token account.
func ParseTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) < TokenAccountAmountOffset+8 {
		return nil, fmt.Errorf("token account data too short: %d", len(data))
	}
	return &TokenAccount{
		Mint:   base58.Encode(data[TokenAccountMintOffset : TokenAccountMintOffset+32]),
		Owner:  base58.Encode(data[TokenAccountOwnerOffset : TokenAccountOwnerOffset+32]),
		Amount: binary.LittleEndian.Uint64(data[TokenAccountAmountOffset : TokenAccountAmountOffset+8]),
	}, nil
}

// TokenMetadata holds the name and symbol of a Metaplex metadata account.
type TokenMetadata struct {
	Name   string
	Symbol string
}

// ParseMetadata decodes name and symbol from a Metaplex metadata account.
// Layout: key u8 (4 = MetadataV1), updateAuthority, mint, then borsh strings
// name and symbol, null-padded.
func ParseMetadata(data []byte) (*TokenMetadata, error) {
	if len(data) < 69 {
		return nil, fmt.Errorf("metadata too short: %d", len(data))
	}
	if data[0] != 4 {
		return nil, fmt.Errorf("unexpected metadata key %d", data[0])
	}

	offset := 65
	name, offset, err := readBorshString(data, offset, 200)
	if err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	symbol, _, err := readBorshString(data, offset, 50)
	if err != nil {
		return nil, fmt.Errorf("symbol: %w", err)
	}

	return &TokenMetadata{
		Name:   strings.TrimSpace(strings.TrimRight(name, "\x00")),
		Symbol: strings.TrimSpace(strings.TrimRight(symbol, "\x00")),
	}, nil
}

func readBorshString(data []byte, offset, maxLen int) (string, int, error) {
	if offset+4 > len(data) {
		return "", offset, fmt.Errorf("length prefix out of range")
	}
	n := int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4
	if n > maxLen || offset+n > len(data) {
		return "", offset, fmt.Errorf("invalid string length %d", n)
	}
	return string(data[offset : offset+n]), offset + n, nil
}
