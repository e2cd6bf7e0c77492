package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known program and mint addresses.
const (
	SystemProgramID          = "11111111111111111111111111111111"
	TokenProgramID           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID       = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	MetadataProgramID        = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

	// NativeMint is the wrapped SOL mint.
	NativeMint = "So11111111111111111111111111111111111111112"

	// LamportsPerSOL converts lamports to SOL.
	LamportsPerSOL = 1_000_000_000
)

const (
	pubkeyLen  = 32
	maxSeedLen = 32
	maxSeeds   = 16
	pdaMarker  = "ProgramDerivedAddress"
)

// ErrNoViableBump is returned when no bump seed yields an off-curve address.
var ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

// DecodePubkey decodes a base58 public key and checks its length.
func DecodePubkey(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode pubkey %q: %w", s, err)
	}
	if len(b) != pubkeyLen {
		return nil, fmt.Errorf("pubkey %q: invalid length %d", s, len(b))
	}
	return b, nil
}

// FindProgramAddress derives a PDA for seeds under programID.
// Bumps are tried from 255 downwards; the first off-curve hash wins.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	program, err := DecodePubkey(programID)
	if err != nil {
		return "", 0, err
	}
	if len(seeds) >= maxSeeds {
		return "", 0, fmt.Errorf("too many seeds: %d", len(seeds))
	}
	for _, seed := range seeds {
		if len(seed) > maxSeedLen {
			return "", 0, fmt.Errorf("seed exceeds %d bytes", maxSeedLen)
		}
	}

	for bump := 255; bump > 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{byte(bump)})
		h.Write(program)
		h.Write([]byte(pdaMarker))
		sum := h.Sum(nil)

		if !IsOnCurve(sum) {
			return base58.Encode(sum), uint8(bump), nil
		}
	}
	return "", 0, ErrNoViableBump
}

// IsOnCurve reports whether b is a valid compressed ed25519 point.
func IsOnCurve(b []byte) bool {
	if len(b) != pubkeyLen {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// FindAssociatedTokenAddress derives the associated token account of owner for mint
// under the classic token program.
func FindAssociatedTokenAddress(owner, mint string) (string, error) {
	ownerKey, err := DecodePubkey(owner)
	if err != nil {
		return "", err
	}
	mintKey, err := DecodePubkey(mint)
	if err != nil {
		return "", err
	}
	tokenProgram, err := DecodePubkey(TokenProgramID)
	if err != nil {
		return "", err
	}
	addr, _, err := FindProgramAddress([][]byte{ownerKey, tokenProgram, mintKey}, AssociatedTokenProgramID)
	return addr, err
}

// FindMetadataAddress derives the Metaplex metadata account of mint.
func FindMetadataAddress(mint string) (string, error) {
	mintKey, err := DecodePubkey(mint)
	if err != nil {
		return "", err
	}
	program, err := DecodePubkey(MetadataProgramID)
	if err != nil {
		return "", err
	}
	addr, _, err := FindProgramAddress([][]byte{[]byte("metadata"), program, mintKey}, MetadataProgramID)
	return addr, err
}
