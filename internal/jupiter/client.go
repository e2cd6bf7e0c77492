// Package jupiter is a minimal client for the Jupiter swap aggregator:
// quotes, serialized swap transactions and token prices.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Default endpoints.
const (
	DefaultSwapURL  = "https://lite-api.jup.ag/swap/v1"
	DefaultPriceURL = "https://lite-api.jup.ag/price/v2"
	DefaultTimeout  = 10 * time.Second

	DefaultSlippageBps = 1000
)

var (
	// ErrNoRoute is returned when the aggregator has no route for a pair.
	ErrNoRoute = errors.New("no route")
	// ErrNoPrice is returned when no price is published for a mint.
	ErrNoPrice = errors.New("no price")
)

// Client talks to the Jupiter HTTP APIs.
type Client struct {
	swapURL  string
	priceURL string
	client   *http.Client
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithPriceURL sets the price API base URL.
func WithPriceURL(u string) ClientOption {
	return func(c *Client) {
		c.priceURL = strings.TrimRight(u, "/")
	}
}

// NewClient creates a client for the swap API at swapURL.
// An empty swapURL selects DefaultSwapURL.
func NewClient(swapURL string, opts ...ClientOption) *Client {
	if swapURL == "" {
		swapURL = DefaultSwapURL
	}
	c := &Client{
		swapURL:  strings.TrimRight(swapURL, "/"),
		priceURL: DefaultPriceURL,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QuoteRequest describes an exact-in swap.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64 // base units of InputMint
	SlippageBps int
}

// Quote is a swap route offered by the aggregator.
type Quote struct {
	InputMint      string
	OutputMint     string
	InAmount       uint64
	OutAmount      uint64
	PriceImpactPct float64
	Hops           int

	raw json.RawMessage // echoed back verbatim to the swap endpoint
}

type quoteResponse struct {
	InputMint      string            `json:"inputMint"`
	OutputMint     string            `json:"outputMint"`
	InAmount       string            `json:"inAmount"`
	OutAmount      string            `json:"outAmount"`
	PriceImpactPct string            `json:"priceImpactPct"`
	RoutePlan      []json.RawMessage `json:"routePlan"`
}

type apiError struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

// Quote requests a route for req.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	slippage := req.SlippageBps
	if slippage <= 0 {
		slippage = DefaultSlippageBps
	}
	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippage))

	body, status, err := c.do(ctx, http.MethodGet, c.swapURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(status, body)
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	if len(resp.RoutePlan) == 0 {
		return nil, ErrNoRoute
	}

	quote := &Quote{
		InputMint:  resp.InputMint,
		OutputMint: resp.OutputMint,
		Hops:       len(resp.RoutePlan),
		raw:        body,
	}
	if quote.InAmount, err = parseAmount(resp.InAmount); err != nil {
		return nil, fmt.Errorf("decode inAmount: %w", err)
	}
	if quote.OutAmount, err = parseAmount(resp.OutAmount); err != nil {
		return nil, fmt.Errorf("decode outAmount: %w", err)
	}
	if resp.PriceImpactPct != "" {
		quote.PriceImpactPct, _ = strconv.ParseFloat(resp.PriceImpactPct, 64)
	}
	return quote, nil
}

type swapRequest struct {
	QuoteResponse    json.RawMessage `json:"quoteResponse"`
	UserPublicKey    string          `json:"userPublicKey"`
	WrapAndUnwrapSol bool            `json:"wrapAndUnwrapSol"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// SwapTransaction returns the base64 serialized, unsigned swap transaction
// for quote on behalf of userPublicKey.
func (c *Client) SwapTransaction(ctx context.Context, quote *Quote, userPublicKey string) (string, error) {
	if quote == nil || len(quote.raw) == 0 {
		return "", errors.New("quote required")
	}
	payload, err := json.Marshal(swapRequest{
		QuoteResponse:    quote.raw,
		UserPublicKey:    userPublicKey,
		WrapAndUnwrapSol: true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal swap request: %w", err)
	}

	body, status, err := c.do(ctx, http.MethodPost, c.swapURL+"/swap", payload)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", statusError(status, body)
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode swap: %w", err)
	}
	if resp.SwapTransaction == "" {
		return "", errors.New("empty swap transaction")
	}
	return resp.SwapTransaction, nil
}

type priceResponse struct {
	Data map[string]*struct {
		ID    string `json:"id"`
		Price string `json:"price"`
	} `json:"data"`
}

// Price returns the USD price of mint.
func (c *Client) Price(ctx context.Context, mint string) (float64, error) {
	body, status, err := c.do(ctx, http.MethodGet, c.priceURL+"?ids="+url.QueryEscape(mint), nil)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, statusError(status, body)
	}

	var resp priceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode price: %w", err)
	}
	entry := resp.Data[mint]
	if entry == nil || entry.Price == "" {
		return 0, ErrNoPrice
	}
	price, err := strconv.ParseFloat(entry.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("decode price: %w", err)
	}
	if price <= 0 {
		return 0, ErrNoPrice
	}
	return price, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// statusError maps a non-200 response to an error. Route-not-found codes
// map to ErrNoRoute.
func statusError(status int, body []byte) error {
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil {
		switch apiErr.ErrorCode {
		case "COULD_NOT_FIND_ANY_ROUTE", "NO_ROUTES_FOUND", "TOKEN_NOT_TRADABLE":
			return fmt.Errorf("%w: %s", ErrNoRoute, apiErr.Error)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("HTTP %d: %s", status, apiErr.Error)
		}
	}
	return fmt.Errorf("HTTP %d: %s", status, string(body))
}

func parseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
