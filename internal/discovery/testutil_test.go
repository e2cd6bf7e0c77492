package discovery

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"solana-launch-gate/internal/solana"
)

func randomKey(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base58.Encode(pub)
}

func initialize2Data(openTime, pcAmount, coinAmount uint64) string {
	data := make([]byte, initialize2DataLen)
	data[0] = initialize2Discriminator
	data[1] = 254
	binary.LittleEndian.PutUint64(data[2:], openTime)
	binary.LittleEndian.PutUint64(data[10:], pcAmount)
	binary.LittleEndian.PutUint64(data[18:], coinAmount)
	return base58.Encode(data)
}

type initTx struct {
	coinMint, pcMint     string
	pcAmount, coinAmount uint64
	balances             []solana.TokenBalance
	inner                bool
	accounts             int
	logs                 []string
}

// buildInitTx builds a pool-creation transaction whose account keys are
// "key0".."key20" except for the mints, and the program at index 21.
func buildInitTx(p initTx) *solana.Transaction {
	keys := make([]string, 22)
	for i := range keys {
		keys[i] = fmt.Sprintf("key%d", i)
	}
	keys[accCoinMint] = p.coinMint
	keys[accPCMint] = p.pcMint
	keys[21] = RaydiumAMMV4

	n := p.accounts
	if n == 0 {
		n = initialize2MinAccounts
	}
	accounts := make([]int, n)
	for i := range accounts {
		accounts[i] = i
	}

	ix := solana.CompiledInstruction{
		ProgramIDIndex: 21,
		Accounts:       accounts,
		Data:           initialize2Data(0, p.pcAmount, p.coinAmount),
	}

	tx := &solana.Transaction{
		Slot:      1000,
		Signature: "sig-init",
		Meta: &solana.TransactionMeta{
			LogMessages:       p.logs,
			PostTokenBalances: p.balances,
		},
		Message: &solana.TransactionMessage{AccountKeys: keys},
	}
	if p.inner {
		tx.Message.Instructions = []solana.CompiledInstruction{{ProgramIDIndex: 0, Data: "1"}}
		tx.Meta.InnerInstructions = []solana.InnerInstructionSet{{Index: 0, Instructions: []solana.CompiledInstruction{ix}}}
	} else {
		tx.Message.Instructions = []solana.CompiledInstruction{ix}
	}
	return tx
}
