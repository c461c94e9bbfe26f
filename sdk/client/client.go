package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"tokenescrow/core/types"
)

const jsonRPCVersion = "2.0"

// Client wraps an escrow node JSON-RPC endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	authToken  string
	nextID     atomic.Int64
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for RPC calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAuthToken sets the bearer token attached to transaction submissions.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = strings.TrimSpace(token)
	}
}

// New initialises a client bound to the provided JSON-RPC endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("client: endpoint required")
	}
	c := &Client{
		endpoint:   trimmed,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c, nil
}

// Submit sends a signed transaction and waits for its receipt. Rejections
// are returned as *RPCError carrying the failure kind.
func (c *Client) Submit(ctx context.Context, tx *types.Transaction) (*Receipt, error) {
	var receipt Receipt
	if err := c.call(ctx, "escrow_sendTransaction", []interface{}{tx}, true, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// SubmitBatch sends transactions that the node applies in order, each one
// atomically.
func (c *Client) SubmitBatch(ctx context.Context, txs []*types.Transaction) ([]BatchEntry, error) {
	var entries []BatchEntry
	if err := c.call(ctx, "escrow_sendBatch", []interface{}{txs}, true, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) Account(ctx context.Context, address string) (*Account, error) {
	var out Account
	if err := c.call(ctx, "escrow_getAccount", []interface{}{address}, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TokenAccount(ctx context.Context, address string) (*TokenAccount, error) {
	var out TokenAccount
	if err := c.call(ctx, "escrow_getTokenAccount", []interface{}{address}, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Escrow fetches a decoded escrow record.
func (c *Client) Escrow(ctx context.Context, address string) (*Escrow, error) {
	var out Escrow
	if err := c.call(ctx, "escrow_getEscrow", []interface{}{address}, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListOpen lists open escrows matching filter.
func (c *Client) ListOpen(ctx context.Context, filter ListFilter) ([]Escrow, error) {
	var out []Escrow
	if err := c.call(ctx, "escrow_listOpen", []interface{}{filter}, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeriveCustody asks the node for the custody address of a record.
func (c *Client) DeriveCustody(ctx context.Context, record string) (*Custody, error) {
	var out Custody
	if err := c.call(ctx, "escrow_deriveCustody", []interface{}{record}, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc,omitempty"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, requireAuth bool, out interface{}) error {
	if requireAuth && strings.TrimSpace(c.authToken) == "" {
		return fmt.Errorf("client: auth token required for %s", method)
	}
	payload := rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("client: encode rpc payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: rpc call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("client: read rpc response: %w", err)
	}
	var decoded rpcResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("client: rpc error status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return fmt.Errorf("client: decode rpc response: %w", err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: rpc error status %d", resp.StatusCode)
	}
	if out == nil || len(decoded.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("client: decode rpc result: %w", err)
	}
	return nil
}
