package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// ErrRateLimited is returned for an HTTP 429 after retries are exhausted.
var ErrRateLimited = errors.New("rpc rate limited")

// RPCError is an error object returned by the node. It is never retried.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// backoff is the retry schedule shared by all calls of one client.
type backoff struct {
	retries int
	initial time.Duration
	max     time.Duration
	factor  float64
}

func (b backoff) next(d time.Duration) time.Duration {
	return min(time.Duration(float64(d)*b.factor), b.max)
}

// HTTPClient is the JSON-RPC 2.0 over HTTP implementation of RPCClient.
type HTTPClient struct {
	endpoint string
	http     *http.Client
	retry    backoff
	nextID   atomic.Uint64
	observe  func(method string, d time.Duration, err error)
}

type ClientOption func(*HTTPClient)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.http.Timeout = d }
}

// WithMaxRetries sets how many times a transport failure is retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) { c.retry.retries = n }
}

// WithRetryDelay sets the first backoff interval.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.retry.initial = d }
}

// WithMaxDelay caps the backoff interval.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.retry.max = d }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) { c.http = client }
}

// WithObserver registers a callback invoked once per RPC call with its latency and outcome.
func WithObserver(fn func(method string, d time.Duration, err error)) ClientOption {
	return func(c *HTTPClient) { c.observe = fn }
}

// NewHTTPClient returns a client for the given RPC endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: DefaultTimeout},
		retry: backoff{
			retries: DefaultMaxRetries,
			initial: DefaultRetryDelay,
			max:     DefaultMaxDelay,
			factor:  DefaultBackoffMult,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method,omitempty"`
	Params  []any           `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// requestConfig is the trailing config object most RPC methods accept.
type requestConfig map[string]any

func withEncoding(encoding, commitment string) requestConfig {
	cfg := requestConfig{"commitment": commitment}
	if encoding != "" {
		cfg["encoding"] = encoding
	}
	return cfg
}

// setIf stores v under key unless v is the zero value.
func setIf[T comparable](cfg requestConfig, key string, v T) {
	var zero T
	if v != zero {
		cfg[key] = v
	}
}

// call issues method and decodes the result into out. Transport failures,
// non-200 responses and malformed bodies are retried with backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params []any, out any) (err error) {
	if c.observe != nil {
		start := time.Now()
		defer func() { c.observe(method, time.Since(start), err) }()
	}

	body, err := json.Marshal(envelope{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	delay := c.retry.initial
	var lastErr error
	for attempt := 0; attempt <= c.retry.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = c.retry.next(delay)
		}

		result, retryable, err := c.send(ctx, body)
		if err == nil {
			if out == nil || len(result) == 0 {
				return nil
			}
			if err := json.Unmarshal(result, out); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
			return nil
		}
		if !retryable || ctx.Err() != nil {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", method, c.retry.retries+1, lastErr)
}

// send performs one HTTP round trip and reports whether a failure may be retried.
func (c *HTTPClient) send(ctx context.Context, body []byte) (json.RawMessage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	switch {
	case err != nil:
		return nil, true, fmt.Errorf("read response: %w", err)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return nil, true, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, true, fmt.Errorf("decode response: %w", err)
	}
	if env.Error != nil {
		return nil, false, env.Error
	}
	return env.Result, false, nil
}

// GetTransaction fetches a confirmed transaction. A transaction the node does
// not know yet yields (nil, nil).
func (c *HTTPClient) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	cfg := withEncoding("json", "confirmed")
	cfg["maxSupportedTransactionVersion"] = 0

	var raw *wireTransaction
	if err := c.call(ctx, "getTransaction", []any{signature, cfg}, &raw); err != nil {
		return nil, err
	}
	if raw == nil || (raw.Slot == 0 && raw.BlockTime == nil) {
		return nil, nil
	}
	return raw.decode(signature), nil
}

// GetSignaturesForAddress lists signatures touching address, newest first.
func (c *HTTPClient) GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error) {
	cfg := withEncoding("", "confirmed")
	if opts != nil {
		setIf(cfg, "before", opts.Before)
		setIf(cfg, "until", opts.Until)
		setIf(cfg, "limit", opts.Limit)
	}

	var raw []struct {
		Signature string `json:"signature"`
		Slot      int64  `json:"slot"`
		BlockTime *int64 `json:"blockTime"`
		Err       any    `json:"err"`
	}
	if err := c.call(ctx, "getSignaturesForAddress", []any{address, cfg}, &raw); err != nil {
		return nil, err
	}

	sigs := make([]SignatureInfo, 0, len(raw))
	for _, r := range raw {
		sigs = append(sigs, SignatureInfo{Signature: r.Signature, Slot: r.Slot, BlockTime: r.BlockTime, Err: r.Err})
	}
	return sigs, nil
}

// GetAccountInfo returns nil when the account does not exist.
func (c *HTTPClient) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	var raw struct {
		Value *wireAccount `json:"value"`
	}
	if err := c.call(ctx, "getAccountInfo", []any{pubkey, withEncoding("base64", "confirmed")}, &raw); err != nil {
		return nil, err
	}
	return raw.Value.decode(), nil
}

// GetMultipleAccounts returns one entry per key, nil for missing accounts.
func (c *HTTPClient) GetMultipleAccounts(ctx context.Context, pubkeys []string) ([]*AccountInfo, error) {
	if len(pubkeys) == 0 {
		return nil, nil
	}
	var raw struct {
		Value []*wireAccount `json:"value"`
	}
	if err := c.call(ctx, "getMultipleAccounts", []any{pubkeys, withEncoding("base64", "confirmed")}, &raw); err != nil {
		return nil, err
	}

	accounts := make([]*AccountInfo, len(pubkeys))
	for i, acc := range raw.Value {
		if i == len(accounts) {
			break
		}
		accounts[i] = acc.decode()
	}
	return accounts, nil
}

// GetProgramAccounts scans accounts owned by programID.
func (c *HTTPClient) GetProgramAccounts(ctx context.Context, programID string, opts *ProgramAccountsOpts) ([]KeyedAccount, error) {
	cfg := withEncoding("base64", "confirmed")
	if opts != nil {
		var filters []any
		if opts.DataSize > 0 {
			filters = append(filters, map[string]any{"dataSize": opts.DataSize})
		}
		for _, m := range opts.Memcmp {
			filters = append(filters, map[string]any{"memcmp": map[string]any{"offset": m.Offset, "bytes": m.Bytes}})
		}
		if len(filters) > 0 {
			cfg["filters"] = filters
		}
		if s := opts.DataSlice; s != nil {
			cfg["dataSlice"] = map[string]any{"offset": s.Offset, "length": s.Length}
		}
	}

	var raw []struct {
		Pubkey  string       `json:"pubkey"`
		Account *wireAccount `json:"account"`
	}
	if err := c.call(ctx, "getProgramAccounts", []any{programID, cfg}, &raw); err != nil {
		return nil, err
	}

	accounts := make([]KeyedAccount, 0, len(raw))
	for _, r := range raw {
		if info := r.Account.decode(); info != nil {
			accounts = append(accounts, KeyedAccount{Pubkey: r.Pubkey, Account: *info})
		}
	}
	return accounts, nil
}

// SimulateTransaction runs a base64 transaction against the latest bank with
// signature verification off and a substituted blockhash.
func (c *HTTPClient) SimulateTransaction(ctx context.Context, txBase64 string) (*SimulationResult, error) {
	cfg := withEncoding("base64", "processed")
	cfg["sigVerify"] = false
	cfg["replaceRecentBlockhash"] = true

	var raw struct {
		Value SimulationResult `json:"value"`
	}
	if err := c.call(ctx, "simulateTransaction", []any{txBase64, cfg}, &raw); err != nil {
		return nil, err
	}
	return &raw.Value, nil
}

// Wire shapes. Only the fields the gate reads are decoded.

type wireAccount struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"` // [payload, encoding]
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

func (w *wireAccount) decode() *AccountInfo {
	if w == nil {
		return nil
	}
	info := &AccountInfo{Lamports: w.Lamports, Owner: w.Owner, Executable: w.Executable, RentEpoch: w.RentEpoch}
	if len(w.Data) > 0 {
		info.Data = w.Data[0]
	}
	return info
}

type wireInstruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"`
}

type wireBalance struct {
	AccountIndex int    `json:"accountIndex"`
	Mint         string `json:"mint"`
	Owner        string `json:"owner"`
	Amount       struct {
		Amount   string `json:"amount"`
		Decimals int    `json:"decimals"`
	} `json:"uiTokenAmount"`
}

type wireTransaction struct {
	Slot      int64  `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Meta      *struct {
		Err               any           `json:"err"`
		LogMessages       []string      `json:"logMessages"`
		PreTokenBalances  []wireBalance `json:"preTokenBalances"`
		PostTokenBalances []wireBalance `json:"postTokenBalances"`
		InnerInstructions []struct {
			Index        int               `json:"index"`
			Instructions []wireInstruction `json:"instructions"`
		} `json:"innerInstructions"`
		LoadedAddresses *LoadedAddresses `json:"loadedAddresses"`
	} `json:"meta"`
	Transaction *struct {
		Signatures []string `json:"signatures"`
		Message    *struct {
			AccountKeys  []string          `json:"accountKeys"`
			Instructions []wireInstruction `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

func (w *wireTransaction) decode(signature string) *Transaction {
	tx := &Transaction{Slot: w.Slot, Signature: signature}
	if w.BlockTime != nil {
		tx.BlockTime = *w.BlockTime
	}

	if m := w.Meta; m != nil {
		tx.Meta = &TransactionMeta{
			Err:               m.Err,
			LogMessages:       m.LogMessages,
			PreTokenBalances:  decodeBalances(m.PreTokenBalances),
			PostTokenBalances: decodeBalances(m.PostTokenBalances),
			LoadedAddresses:   m.LoadedAddresses,
		}
		for _, set := range m.InnerInstructions {
			tx.Meta.InnerInstructions = append(tx.Meta.InnerInstructions, InnerInstructionSet{
				Index:        set.Index,
				Instructions: decodeInstructions(set.Instructions),
			})
		}
	}

	if t := w.Transaction; t != nil && t.Message != nil {
		tx.Message = &TransactionMessage{
			AccountKeys:  t.Message.AccountKeys,
			Instructions: decodeInstructions(t.Message.Instructions),
		}
		if tx.Signature == "" && len(t.Signatures) > 0 {
			tx.Signature = t.Signatures[0]
		}
	}
	return tx
}

func decodeInstructions(in []wireInstruction) []CompiledInstruction {
	var out []CompiledInstruction
	for _, ix := range in {
		out = append(out, CompiledInstruction(ix))
	}
	return out
}

func decodeBalances(in []wireBalance) []TokenBalance {
	var out []TokenBalance
	for _, b := range in {
		out = append(out, TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
			Owner:        b.Owner,
			Amount:       b.Amount.Amount,
			Decimals:     b.Amount.Decimals,
		})
	}
	return out
}
