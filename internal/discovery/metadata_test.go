package discovery

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-launch-gate/internal/solana"
	"solana-launch-gate/internal/solana/stub"
)

func metadataAccount(name, symbol string) []byte {
	data := make([]byte, 65)
	data[0] = 4
	for _, s := range []string{name, symbol} {
		l := make([]byte, 4)
		binary.LittleEndian.PutUint32(l, uint32(len(s)))
		data = append(data, l...)
		data = append(data, s...)
	}
	return data
}

func TestMetadataResolver_Resolve(t *testing.T) {
	mint := randomKey(t)
	pda, err := solana.FindMetadataAddress(mint)
	require.NoError(t, err)

	rpc := stub.NewRPCClient()
	rpc.SetAccount(pda, solana.MetadataProgramID, metadataAccount("Moon Cat", "MCAT"))

	name, symbol, err := NewMetadataResolver(rpc, 0).Resolve(context.Background(), mint)
	require.NoError(t, err)
	require.NotNil(t, name)
	require.NotNil(t, symbol)
	assert.Equal(t, "Moon Cat", *name)
	assert.Equal(t, "MCAT", *symbol)
}

func TestMetadataResolver_Missing(t *testing.T) {
	rpc := stub.NewRPCClient()
	name, symbol, err := NewMetadataResolver(rpc, 0).Resolve(context.Background(), randomKey(t))
	assert.NoError(t, err)
	assert.Nil(t, name)
	assert.Nil(t, symbol)
}

func TestMetadataResolver_RPCError(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetError("getAccountInfo", errors.New("boom"))

	name, _, err := NewMetadataResolver(rpc, 0).Resolve(context.Background(), randomKey(t))
	assert.Error(t, err)
	assert.Nil(t, name)
}
