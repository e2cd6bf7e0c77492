package stub

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/mr-tron/base58"

	"solana-launch-gate/internal/solana"
)

// ErrNotFound is returned when a transaction is not found.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
// Program accounts are filtered in memory the same way a node applies
// dataSize and memcmp filters.
type RPCClient struct {
	mu sync.RWMutex

	Transactions    map[string]*solana.Transaction
	Signatures      map[string][]solana.SignatureInfo
	Accounts        map[string]*solana.AccountInfo
	ProgramAccounts map[string][]solana.KeyedAccount
	Simulation      *solana.SimulationResult

	// Errors forces a method (by RPC name) to fail.
	Errors map[string]error
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions:    make(map[string]*solana.Transaction),
		Signatures:      make(map[string][]solana.SignatureInfo),
		Accounts:        make(map[string]*solana.AccountInfo),
		ProgramAccounts: make(map[string][]solana.KeyedAccount),
		Errors:          make(map[string]error),
	}
}

func (c *RPCClient) failure(method string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Errors[method]
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	if err := c.failure("getTransaction"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, ErrNotFound
	}
	return tx, nil
}

// GetSignaturesForAddress retrieves signatures for an address from the stub store.
// Signatures are stored newest first; Until stops before the given signature.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	if err := c.failure("getSignaturesForAddress"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	sigs := append([]solana.SignatureInfo(nil), c.Signatures[address]...)
	c.mu.RUnlock()

	if opts != nil && opts.Until != "" {
		for i, s := range sigs {
			if s.Signature == opts.Until {
				sigs = sigs[:i]
				break
			}
		}
	}
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		sigs = sigs[:opts.Limit]
	}
	return sigs, nil
}

// GetAccountInfo returns a stored account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	if err := c.failure("getAccountInfo"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Accounts[pubkey], nil
}

// GetMultipleAccounts returns stored accounts positionally.
func (c *RPCClient) GetMultipleAccounts(_ context.Context, pubkeys []string) ([]*solana.AccountInfo, error) {
	if err := c.failure("getMultipleAccounts"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*solana.AccountInfo, len(pubkeys))
	for i, k := range pubkeys {
		out[i] = c.Accounts[k]
	}
	return out, nil
}

// GetProgramAccounts applies dataSize, memcmp and dataSlice to stored accounts.
func (c *RPCClient) GetProgramAccounts(_ context.Context, programID string, opts *solana.ProgramAccountsOpts) ([]solana.KeyedAccount, error) {
	if err := c.failure("getProgramAccounts"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	all := c.ProgramAccounts[programID]
	c.mu.RUnlock()

	var out []solana.KeyedAccount
	for _, acct := range all {
		data, err := base64.StdEncoding.DecodeString(acct.Account.Data)
		if err != nil {
			continue
		}
		if opts != nil && !matches(data, opts) {
			continue
		}
		if opts != nil && opts.DataSlice != nil {
			start := int(opts.DataSlice.Offset)
			end := start + int(opts.DataSlice.Length)
			if start > len(data) {
				start = len(data)
			}
			if end > len(data) {
				end = len(data)
			}
			data = data[start:end]
		}
		sliced := acct
		sliced.Account.Data = base64.StdEncoding.EncodeToString(data)
		out = append(out, sliced)
	}
	return out, nil
}

func matches(data []byte, opts *solana.ProgramAccountsOpts) bool {
	if opts.DataSize > 0 && uint64(len(data)) != opts.DataSize {
		return false
	}
	for _, m := range opts.Memcmp {
		want, err := base58.Decode(m.Bytes)
		if err != nil {
			return false
		}
		off := int(m.Offset)
		if off+len(want) > len(data) || string(data[off:off+len(want)]) != string(want) {
			return false
		}
	}
	return true
}

// SimulateTransaction returns the configured simulation result.
func (c *RPCClient) SimulateTransaction(_ context.Context, _ string) (*solana.SimulationResult, error) {
	if err := c.failure("simulateTransaction"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Simulation == nil {
		return &solana.SimulationResult{}, nil
	}
	return c.Simulation, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddSignatures adds signatures for an address to the stub store.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

// SetAccount stores raw account data under pubkey.
func (c *RPCClient) SetAccount(pubkey, owner string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = &solana.AccountInfo{
		Owner: owner,
		Data:  base64.StdEncoding.EncodeToString(data),
	}
}

// AddProgramAccount registers an account owned by programID.
func (c *RPCClient) AddProgramAccount(programID, pubkey string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ProgramAccounts[programID] = append(c.ProgramAccounts[programID], solana.KeyedAccount{
		Pubkey: pubkey,
		Account: solana.AccountInfo{
			Owner: programID,
			Data:  base64.StdEncoding.EncodeToString(data),
		},
	})
}

// SetError makes the named RPC method fail with err. A nil err clears it.
func (c *RPCClient) SetError(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.Errors, method)
		return
	}
	c.Errors[method] = err
}

// MintData builds SPL mint account bytes. Empty authorities are encoded as revoked.
func MintData(mintAuthority, freezeAuthority string, supply uint64, decimals uint8) []byte {
	data := make([]byte, solana.MintAccountSize)
	if key, err := base58.Decode(mintAuthority); err == nil && len(key) == 32 {
		binary.LittleEndian.PutUint32(data[0:4], 1)
		copy(data[4:36], key)
	}
	binary.LittleEndian.PutUint64(data[36:44], supply)
	data[44] = decimals
	data[45] = 1
	if key, err := base58.Decode(freezeAuthority); err == nil && len(key) == 32 {
		binary.LittleEndian.PutUint32(data[46:50], 1)
		copy(data[50:82], key)
	}
	return data
}

// TokenAccountData builds SPL token account bytes.
func TokenAccountData(mint, owner string, amount uint64) []byte {
	data := make([]byte, solana.TokenAccountSize)
	if key, err := base58.Decode(mint); err == nil {
		copy(data[0:32], key)
	}
	if key, err := base58.Decode(owner); err == nil {
		copy(data[32:64], key)
	}
	binary.LittleEndian.PutUint64(data[64:72], amount)
	return data
}
