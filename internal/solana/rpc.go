package solana

import "context"

// RPCClient defines Solana RPC HTTP interface.
type RPCClient interface {
	// GetTransaction retrieves a transaction by signature.
	// Returns nil if the transaction is not (yet) available.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves signatures for an address with pagination.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetAccountInfo retrieves account info by public key. Returns nil if not found.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetMultipleAccounts retrieves several accounts at once.
	// The result is positional; missing accounts are nil.
	GetMultipleAccounts(ctx context.Context, pubkeys []string) ([]*AccountInfo, error)

	// GetProgramAccounts retrieves accounts owned by a program matching the filters.
	GetProgramAccounts(ctx context.Context, programID string, opts *ProgramAccountsOpts) ([]KeyedAccount, error)

	// SimulateTransaction simulates a base64-encoded transaction without signature checks.
	SimulateTransaction(ctx context.Context, txBase64 string) (*SimulationResult, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	LogMessages       []string
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	InnerInstructions []InnerInstructionSet
	LoadedAddresses   *LoadedAddresses
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys  []string
	Instructions []CompiledInstruction
}

// CompiledInstruction is an instruction referencing accounts by index.
type CompiledInstruction struct {
	ProgramIDIndex int
	Accounts       []int
	Data           string // base58 encoded
}

// InnerInstructionSet groups CPI instructions issued by a top-level instruction.
type InnerInstructionSet struct {
	Index        int
	Instructions []CompiledInstruction
}

// TokenBalance is a pre/post token balance entry from transaction meta.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       string // raw amount, base units
	Decimals     int
}

// LoadedAddresses are accounts resolved from address lookup tables (v0 transactions).
type LoadedAddresses struct {
	Writable []string
	Readonly []string
}

// AccountKeys returns the full account list: static keys followed by
// writable and readonly lookup-table addresses.
func (tx *Transaction) AccountKeys() []string {
	if tx.Message == nil {
		return nil
	}
	keys := make([]string, 0, len(tx.Message.AccountKeys))
	keys = append(keys, tx.Message.AccountKeys...)
	if tx.Meta != nil && tx.Meta.LoadedAddresses != nil {
		keys = append(keys, tx.Meta.LoadedAddresses.Writable...)
		keys = append(keys, tx.Meta.LoadedAddresses.Readonly...)
	}
	return keys
}

// Failed reports whether the transaction errored on-chain.
func (tx *Transaction) Failed() bool {
	return tx.Meta != nil && tx.Meta.Err != nil
}
