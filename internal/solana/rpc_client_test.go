package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode answers every request for method with result and hands the decoded
// request to inspect.
func fakeNode(t *testing.T, method string, result any, inspect func(req envelope)) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req envelope
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, method, req.Method)
		if inspect != nil {
			inspect(req)
		}
		writeResult(w, req.ID, result)
	}))
	t.Cleanup(server.Close)
	return NewHTTPClient(server.URL)
}

func writeResult(w http.ResponseWriter, id uint64, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

// configOf returns the trailing config object of a request.
func configOf(t *testing.T, req envelope) map[string]any {
	t.Helper()
	require.Len(t, req.Params, 2)
	cfg, ok := req.Params[1].(map[string]any)
	require.True(t, ok, "config is %T", req.Params[1])
	return cfg
}

func TestHTTPClient_GetTransaction(t *testing.T) {
	client := fakeNode(t, "getTransaction", map[string]any{
		"slot":      123456,
		"blockTime": 1700000000,
		"meta": map[string]any{
			"err":         nil,
			"logMessages": []string{"Program log: initialize2: InitializeInstruction2 { nonce: 254 }"},
			"postTokenBalances": []any{map[string]any{
				"accountIndex":  3,
				"mint":          NativeMint,
				"owner":         "pool-authority",
				"uiTokenAmount": map[string]any{"amount": "45000000000", "decimals": 9},
			}},
			"innerInstructions": []any{map[string]any{
				"index":        0,
				"instructions": []any{map[string]any{"programIdIndex": 2, "accounts": []int{0, 1}, "data": "3Bxs"}},
			}},
			"loadedAddresses": map[string]any{"writable": []string{"lut-w"}, "readonly": []string{"lut-r"}},
		},
		"transaction": map[string]any{
			"signatures": []string{"init-sig"},
			"message": map[string]any{
				"accountKeys":  []string{"payer", "amm"},
				"instructions": []any{map[string]any{"programIdIndex": 1, "accounts": []int{0}, "data": "2"}},
			},
		},
	}, func(req envelope) {
		cfg := configOf(t, req)
		assert.Equal(t, "init-sig", req.Params[0])
		assert.Equal(t, float64(0), cfg["maxSupportedTransactionVersion"])
		assert.Equal(t, "json", cfg["encoding"])
	})

	tx, err := client.GetTransaction(context.Background(), "init-sig")
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, int64(123456), tx.Slot)
	assert.Equal(t, int64(1700000000), tx.BlockTime)
	assert.False(t, tx.Failed())

	require.Len(t, tx.Meta.PostTokenBalances, 1)
	assert.Equal(t, TokenBalance{AccountIndex: 3, Mint: NativeMint, Owner: "pool-authority", Amount: "45000000000", Decimals: 9},
		tx.Meta.PostTokenBalances[0])
	require.Len(t, tx.Meta.InnerInstructions, 1)
	assert.Equal(t, []CompiledInstruction{{ProgramIDIndex: 2, Accounts: []int{0, 1}, Data: "3Bxs"}},
		tx.Meta.InnerInstructions[0].Instructions)
	assert.Equal(t, []CompiledInstruction{{ProgramIDIndex: 1, Accounts: []int{0}, Data: "2"}}, tx.Message.Instructions)
	assert.Equal(t, []string{"payer", "amm", "lut-w", "lut-r"}, tx.AccountKeys())
}

func TestHTTPClient_GetTransaction_Pending(t *testing.T) {
	client := fakeNode(t, "getTransaction", nil, nil)

	tx, err := client.GetTransaction(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestHTTPClient_GetSignaturesForAddress(t *testing.T) {
	client := fakeNode(t, "getSignaturesForAddress", []any{
		map[string]any{"signature": "sig1", "slot": 100, "blockTime": 1700000000, "err": nil},
		map[string]any{"signature": "sig2", "slot": 101, "blockTime": nil, "err": map[string]any{"InstructionError": []any{0, "Custom"}}},
	}, func(req envelope) {
		cfg := configOf(t, req)
		assert.Equal(t, float64(10), cfg["limit"])
		assert.Equal(t, "newest", cfg["until"])
		assert.NotContains(t, cfg, "before")
		assert.NotContains(t, cfg, "encoding")
	})

	sigs, err := client.GetSignaturesForAddress(context.Background(), "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8", &SignaturesOpts{Until: "newest", Limit: 10})
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, "sig1", sigs[0].Signature)
	require.NotNil(t, sigs[0].BlockTime)
	assert.Equal(t, int64(1700000000), *sigs[0].BlockTime)
	assert.Equal(t, int64(101), sigs[1].Slot)
	assert.Nil(t, sigs[1].BlockTime)
	assert.NotNil(t, sigs[1].Err)
}

func TestHTTPClient_GetProgramAccounts(t *testing.T) {
	client := fakeNode(t, "getProgramAccounts", []any{
		map[string]any{"pubkey": "holder-ata", "account": map[string]any{
			"lamports": 2039280, "owner": TokenProgramID, "data": []string{"AAAAAAAAAAA=", "base64"},
		}},
		map[string]any{"pubkey": "gone", "account": nil},
	}, func(req envelope) {
		cfg := configOf(t, req)
		filters, ok := cfg["filters"].([]any)
		assert.True(t, ok && len(filters) == 2, "filters: %v", cfg["filters"])
		assert.Equal(t, map[string]any{"offset": float64(64), "length": float64(8)}, cfg["dataSlice"])
	})

	accounts, err := client.GetProgramAccounts(context.Background(), TokenProgramID, &ProgramAccountsOpts{
		DataSize:  165,
		Memcmp:    []Memcmp{{Offset: 0, Bytes: "mint"}},
		DataSlice: &DataSlice{Offset: 64, Length: 8},
	})
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "holder-ata", accounts[0].Pubkey)

	data, err := accounts[0].Account.Bytes()
	require.NoError(t, err)
	assert.Len(t, data, 8)
}

func TestHTTPClient_GetMultipleAccounts(t *testing.T) {
	client := fakeNode(t, "getMultipleAccounts", map[string]any{
		"value": []any{
			map[string]any{"lamports": 1, "owner": "o", "data": []string{"", "base64"}},
			nil,
		},
	}, nil)

	accounts, err := client.GetMultipleAccounts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	require.NotNil(t, accounts[0])
	assert.Equal(t, uint64(1), accounts[0].Lamports)
	assert.Nil(t, accounts[1])

	empty, err := client.GetMultipleAccounts(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestHTTPClient_SimulateTransaction(t *testing.T) {
	client := fakeNode(t, "simulateTransaction", map[string]any{
		"context": map[string]any{"slot": 1},
		"value": map[string]any{
			"err":           map[string]any{"InstructionError": []any{2, map[string]any{"Custom": 6001}}},
			"logs":          []string{"Program log: Error: transfer not allowed"},
			"unitsConsumed": 52000,
		},
	}, func(req envelope) {
		cfg := configOf(t, req)
		assert.Equal(t, false, cfg["sigVerify"])
		assert.Equal(t, true, cfg["replaceRecentBlockhash"])
		assert.Equal(t, "processed", cfg["commitment"])
	})

	sim, err := client.SimulateTransaction(context.Background(), "AQAB")
	require.NoError(t, err)
	assert.NotNil(t, sim.Err)
	assert.Equal(t, []string{"Program log: Error: transfer not allowed"}, sim.Logs)
	assert.Equal(t, uint64(52000), sim.UnitsConsumed)
}

func TestHTTPClient_GetAccountInfo(t *testing.T) {
	client := fakeNode(t, "getAccountInfo", map[string]any{
		"value": map[string]any{
			"lamports":   1000000,
			"owner":      SystemProgramID,
			"data":       []string{"SGVsbG8gV29ybGQ=", "base64"},
			"executable": false,
			"rentEpoch":  100,
		},
	}, func(req envelope) {
		assert.Equal(t, "base64", configOf(t, req)["encoding"])
	})

	info, err := client.GetAccountInfo(context.Background(), "pk")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, uint64(1000000), info.Lamports)
	assert.Equal(t, SystemProgramID, info.Owner)
	assert.Equal(t, uint64(100), info.RentEpoch)

	data, err := info.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "Hello World", string(data))
}

func TestHTTPClient_GetAccountInfo_Missing(t *testing.T) {
	client := fakeNode(t, "getAccountInfo", map[string]any{"value": nil}, nil)

	info, err := client.GetAccountInfo(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestHTTPClient_RetriesRateLimit(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req envelope
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeResult(w, req.ID, map[string]any{"value": map[string]any{"lamports": 999, "owner": "o"}})
	}))
	defer server.Close()

	var observed atomic.Int32
	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(5*time.Millisecond),
		WithObserver(func(method string, _ time.Duration, err error) {
			assert.Equal(t, "getAccountInfo", method)
			assert.NoError(t, err)
			observed.Add(1)
		}),
	)

	info, err := client.GetAccountInfo(context.Background(), "pk")
	require.NoError(t, err)
	assert.Equal(t, uint64(999), info.Lamports)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, int32(1), observed.Load(), "one observation per call, not per attempt")
}

func TestHTTPClient_GivesUpAfterRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithMaxRetries(2), WithRetryDelay(time.Millisecond), WithMaxDelay(2*time.Millisecond))

	_, err := client.GetAccountInfo(context.Background(), "pk")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestHTTPClient_NodeErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		var req envelope
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]any{"code": -32600, "message": "Invalid Request"},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond))

	_, err := client.GetAccountInfo(context.Background(), "pk")
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32600, rpcErr.Code)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestHTTPClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetAccountInfo(ctx, "pk")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoff_Next(t *testing.T) {
	b := backoff{initial: time.Second, max: 3 * time.Second, factor: 2}
	assert.Equal(t, 2*time.Second, b.next(time.Second))
	assert.Equal(t, 3*time.Second, b.next(2*time.Second))
}

func TestSetIf_SkipsZeroValues(t *testing.T) {
	cfg := requestConfig{}
	setIf(cfg, "before", "")
	setIf(cfg, "limit", 0)
	setIf(cfg, "until", "sig")
	assert.Equal(t, requestConfig{"until": "sig"}, cfg)
}
