package discovery

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"

	"github.com/mr-tron/base58"

	"solana-launch-gate/internal/solana"
)

// Known program IDs.
const (
	// RaydiumAMMV4 is the Raydium AMM v4 program ID.
	RaydiumAMMV4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	// RaydiumAuthorityV4 owns the token vaults of every AMM v4 pool.
	RaydiumAuthorityV4 = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"
)

// DefaultMarker is the log marker emitted by the pool-creation instruction.
const DefaultMarker = "initialize2"

// initialize2 instruction layout (layout version 1).
//
// Data: discriminator u8 (=1), nonce u8, openTime u64, initPcAmount u64, initCoinAmount u64.
//
// Accounts:
//
//	0: Token program          11: Pool PC token account
//	1: Associated token prog  12: Pool withdraw queue
//	2: System program         13: AMM target orders
//	3: Rent sysvar            14: Pool temp LP
//	4: AMM ID (pool)          15: Serum program
//	5: AMM authority          16: Serum market
//	6: AMM open orders        17: User wallet
//	7: LP mint                18: User coin token account
//	8: Coin mint              19: User PC token account
//	9: PC mint                20: User LP token account
//	10: Pool coin token account
const (
	initialize2Discriminator = 1
	initialize2DataLen       = 26
	initialize2MinAccounts   = 21

	accAMM        = 4
	accLPMint     = 7
	accCoinMint   = 8
	accPCMint     = 9
	accCoinVault  = 10
	accPCVault    = 11
	accUserWallet = 17
)

// ray_log InitLog layout: logType u8 (=0), time u64, pcDecimals u8, coinDecimals u8,
// pcLotSize u64, coinLotSize u64, pcAmount u64, coinAmount u64, market Pubkey.
const (
	rayLogInit    = 0
	rayLogInitLen = 75
)

var rayLogPattern = regexp.MustCompile(`ray_log: ([A-Za-z0-9+/=]+)`)

// HasMarker reports whether any log line contains marker.
func HasMarker(logs []string, marker string) bool {
	for _, l := range logs {
		if strings.Contains(l, marker) {
			return true
		}
	}
	return false
}

// Initialize2 is the decoded pool-creation instruction.
type Initialize2 struct {
	Nonce          uint8
	OpenTime       uint64
	InitPCAmount   uint64
	InitCoinAmount uint64

	AMM        string
	LPMint     string
	CoinMint   string
	PCMint     string
	CoinVault  string
	PCVault    string
	UserWallet string
}

// FindInitialize2 locates the initialize2 instruction of programID in tx,
// searching top-level instructions first and then inner (CPI) instructions.
// Returns ErrNoInstruction if absent and an ErrLayout-wrapped error if the
// instruction does not match the known layout.
func FindInitialize2(tx *solana.Transaction, programID string) (*Initialize2, error) {
	keys := tx.AccountKeys()
	if len(keys) == 0 {
		return nil, ErrNoInstruction
	}

	candidates := append([]solana.CompiledInstruction(nil), tx.Message.Instructions...)
	if tx.Meta != nil {
		for _, set := range tx.Meta.InnerInstructions {
			candidates = append(candidates, set.Instructions...)
		}
	}

	var layoutErr error
	for _, ix := range candidates {
		if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(keys) || keys[ix.ProgramIDIndex] != programID {
			continue
		}
		data, err := base58.Decode(ix.Data)
		if err != nil || len(data) == 0 || data[0] != initialize2Discriminator {
			continue
		}
		decoded, err := decodeInitialize2(data, ix.Accounts, keys)
		if err != nil {
			layoutErr = err
			continue
		}
		return decoded, nil
	}

	if layoutErr != nil {
		return nil, layoutErr
	}
	return nil, ErrNoInstruction
}

func decodeInitialize2(data []byte, accounts []int, keys []string) (*Initialize2, error) {
	if len(data) < initialize2DataLen {
		return nil, fmt.Errorf("%w: data length %d < %d", ErrLayout, len(data), initialize2DataLen)
	}
	if len(accounts) < initialize2MinAccounts {
		return nil, fmt.Errorf("%w: %d accounts < %d", ErrLayout, len(accounts), initialize2MinAccounts)
	}

	key := func(pos int) (string, error) {
		idx := accounts[pos]
		if idx < 0 || idx >= len(keys) {
			return "", fmt.Errorf("%w: account index %d out of range", ErrLayout, idx)
		}
		return keys[idx], nil
	}

	ix := &Initialize2{
		Nonce:          data[1],
		OpenTime:       readUint64LE(data, 2),
		InitPCAmount:   readUint64LE(data, 10),
		InitCoinAmount: readUint64LE(data, 18),
	}

	fields := []struct {
		pos int
		dst *string
	}{
		{accAMM, &ix.AMM},
		{accLPMint, &ix.LPMint},
		{accCoinMint, &ix.CoinMint},
		{accPCMint, &ix.PCMint},
		{accCoinVault, &ix.CoinVault},
		{accPCVault, &ix.PCVault},
		{accUserWallet, &ix.UserWallet},
	}
	for _, f := range fields {
		v, err := key(f.pos)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	return ix, nil
}

// InitLog is the ray_log record emitted by initialize2.
type InitLog struct {
	OpenTime     uint64
	PCDecimals   uint8
	CoinDecimals uint8
	PCAmount     uint64
	CoinAmount   uint64
	Market       string
}

// ParseInitLog finds and decodes the initialize ray_log entry in logs.
func ParseInitLog(logs []string) (*InitLog, bool) {
	for _, l := range logs {
		m := rayLogPattern.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(m[1])
		if err != nil || len(data) < rayLogInitLen || data[0] != rayLogInit {
			continue
		}
		return &InitLog{
			OpenTime:     readUint64LE(data, 1),
			PCDecimals:   data[9],
			CoinDecimals: data[10],
			PCAmount:     readUint64LE(data, 27),
			CoinAmount:   readUint64LE(data, 35),
			Market:       base58.Encode(data[43:75]),
		}, true
	}
	return nil, false
}

// readUint64LE reads a little-endian uint64 from data at offset.
func readUint64LE(data []byte, offset int) uint64 {
	if offset+8 > len(data) {
		return 0
	}
	return binary.LittleEndian.Uint64(data[offset:])
}
