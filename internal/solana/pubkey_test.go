package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomPubkey(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base58.Encode(pub)
}

func TestDecodePubkey(t *testing.T) {
	b, err := DecodePubkey(NativeMint)
	require.NoError(t, err)
	assert.Len(t, b, 32)

	_, err = DecodePubkey("short")
	assert.Error(t, err)

	_, err = DecodePubkey("0OIl") // not base58
	assert.Error(t, err)
}

func TestIsOnCurve(t *testing.T) {
	key, err := DecodePubkey(randomPubkey(t))
	require.NoError(t, err)
	assert.True(t, IsOnCurve(key))
	assert.False(t, IsOnCurve([]byte{1, 2, 3}))
}

func TestFindProgramAddress_OffCurveAndDeterministic(t *testing.T) {
	seeds := [][]byte{[]byte("metadata"), []byte("seed")}

	addr1, bump1, err := FindProgramAddress(seeds, MetadataProgramID)
	require.NoError(t, err)
	addr2, bump2, err := FindProgramAddress(seeds, MetadataProgramID)
	require.NoError(t, err)

	assert.Equal(t, addr1, addr2)
	assert.Equal(t, bump1, bump2)

	raw, err := DecodePubkey(addr1)
	require.NoError(t, err)
	assert.False(t, IsOnCurve(raw), "PDA must be off curve")
}

func TestFindProgramAddress_SeedTooLong(t *testing.T) {
	_, _, err := FindProgramAddress([][]byte{make([]byte, 33)}, TokenProgramID)
	assert.Error(t, err)
}

func TestFindAssociatedTokenAddress(t *testing.T) {
	owner := randomPubkey(t)
	mint := randomPubkey(t)

	ata, err := FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	assert.NotEqual(t, owner, ata)

	other, err := FindAssociatedTokenAddress(owner, NativeMint)
	require.NoError(t, err)
	assert.NotEqual(t, ata, other)

	_, err = FindAssociatedTokenAddress("bad", mint)
	assert.Error(t, err)
}

func TestFindMetadataAddress(t *testing.T) {
	addr, err := FindMetadataAddress(NativeMint)
	require.NoError(t, err)
	raw, err := DecodePubkey(addr)
	require.NoError(t, err)
	assert.False(t, IsOnCurve(raw))
}

func buildMint(mintAuth, freezeAuth []byte, supply uint64, decimals uint8) []byte {
	data := make([]byte, MintAccountSize)
	if mintAuth != nil {
		binary.LittleEndian.PutUint32(data[0:4], 1)
		copy(data[4:36], mintAuth)
	}
	binary.LittleEndian.PutUint64(data[36:44], supply)
	data[44] = decimals
	data[45] = 1
	if freezeAuth != nil {
		binary.LittleEndian.PutUint32(data[46:50], 1)
		copy(data[50:82], freezeAuth)
	}
	return data
}

func TestParseMint(t *testing.T) {
	auth, err := DecodePubkey(randomPubkey(t))
	require.NoError(t, err)

	m, err := ParseMint(buildMint(auth, nil, 1_000_000, 6))
	require.NoError(t, err)
	require.NotNil(t, m.MintAuthority)
	assert.Equal(t, base58.Encode(auth), *m.MintAuthority)
	assert.Nil(t, m.FreezeAuthority)
	assert.Equal(t, uint64(1_000_000), m.Supply)
	assert.Equal(t, uint8(6), m.Decimals)
	assert.True(t, m.IsInitialized)

	revoked, err := ParseMint(buildMint(nil, nil, 5, 9))
	require.NoError(t, err)
	assert.Nil(t, revoked.MintAuthority)
	assert.Nil(t, revoked.FreezeAuthority)

	_, err = ParseMint(make([]byte, 40))
	assert.Error(t, err)
}

func TestParseTokenAccount(t *testing.T) {
	mint, err := DecodePubkey(NativeMint)
	require.NoError(t, err)

	data := make([]byte, TokenAccountSize)
	copy(data[0:32], mint)
	binary.LittleEndian.PutUint64(data[64:72], 42)

	acct, err := ParseTokenAccount(data)
	require.NoError(t, err)
	assert.Equal(t, NativeMint, acct.Mint)
	assert.Equal(t, uint64(42), acct.Amount)

	_, err = ParseTokenAccount(data[:50])
	assert.Error(t, err)
}

func TestParseMetadata(t *testing.T) {
	data := make([]byte, 65)
	data[0] = 4
	appendStr := func(s string, pad int) {
		l := make([]byte, 4)
		binary.LittleEndian.PutUint32(l, uint32(len(s)+pad))
		data = append(data, l...)
		data = append(data, []byte(s)...)
		data = append(data, make([]byte, pad)...)
	}
	appendStr("Launch Token", 20)
	appendStr("LNCH", 6)

	md, err := ParseMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, "Launch Token", md.Name)
	assert.Equal(t, "LNCH", md.Symbol)

	data[0] = 1
	_, err = ParseMetadata(data)
	assert.Error(t, err)
}
