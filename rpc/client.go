// ════════════════════════════════════════════════════════════════════════════════════════════════
// JSON-RPC Chain Client
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Block Hash Horse Race
// Component: HTTP JSON-RPC transport for tip queries and block fetches
//
// Description:
//   Thin Ethereum JSON-RPC client. Answers the three questions the race asks of a chain:
//   what is the tip, what is block N, and (when no websocket is configured) which new
//   heads appeared since the last poll.
//
// Failure Model:
//   - Every transport, HTTP or RPC-level failure wraps types.ErrSourceUnavailable
//   - No retries: the caller decides whether a failure is fatal
//   - A null block result means "not produced yet" and is reported as (nil, nil)
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/mjpowersjr/block-hash-experiments/constants"
	"github.com/mjpowersjr/block-hash-experiments/types"
	"github.com/mjpowersjr/block-hash-experiments/utils"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// WIRE TYPES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Request is a JSON-RPC 2.0 call.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

// Response is a JSON-RPC 2.0 reply with a typed result.
type Response[T any] struct {
	JSONRPC string `json:"jsonrpc"`
	Result  T      `json:"result"`
	Error   *Error `json:"error"`
	ID      uint64 `json:"id"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// BlockHeader is the subset of an eth_getBlockByNumber result the race needs.
type BlockHeader struct {
	Number   string `json:"number"`
	Hash     string `json:"hash"`
	GasUsed  string `json:"gasUsed"`
	GasLimit string `json:"gasLimit"`
}

// Decode converts hex quantities and the hash into a types.Block.
func (h *BlockHeader) Decode() (types.Block, error) {
	number, err := utils.ParseHexU64(h.Number)
	if err != nil {
		return types.Block{}, fmt.Errorf("number %q: %w", h.Number, err)
	}
	hash, err := utils.DecodeHexData(h.Hash)
	if err != nil {
		return types.Block{}, fmt.Errorf("hash %q: %w", h.Hash, err)
	}
	used, err := utils.ParseHexU64(h.GasUsed)
	if err != nil {
		return types.Block{}, fmt.Errorf("gasUsed %q: %w", h.GasUsed, err)
	}
	limit, err := utils.ParseHexU64(h.GasLimit)
	if err != nil {
		return types.Block{}, fmt.Errorf("gasLimit %q: %w", h.GasLimit, err)
	}
	return types.Block{Height: number, Hash: hash, GasUsed: used, GasLimit: limit}, nil
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CLIENT
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Client talks to one JSON-RPC HTTP endpoint. It is safe for concurrent use.
type Client struct {
	url    string
	client *http.Client
	nextID atomic.Uint64
}

// NewClient creates a client with a per-request timeout.
// A zero timeout uses constants.RequestTimeout.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = constants.RequestTimeout
	}
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// URL returns the endpoint the client talks to.
func (c *Client) URL() string { return c.url }

// call performs one round trip and decodes the typed result.
func call[T any](ctx context.Context, c *Client, method string, params ...any) (T, error) {
	var zero T
	if params == nil {
		params = []any{}
	}
	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}

	data, err := sonnet.Marshal(req)
	if err != nil {
		return zero, fmt.Errorf("failed to encode %s: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return zero, fmt.Errorf("%w: %s: %w", types.ErrSourceUnavailable, method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return zero, fmt.Errorf("%w: %s: %w", types.ErrSourceUnavailable, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return zero, fmt.Errorf("%w: %s: HTTP %d", types.ErrSourceUnavailable, method, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("%w: %s: %w", types.ErrSourceUnavailable, method, err)
	}

	var rpcResp Response[T]
	if err := sonnet.Unmarshal(body, &rpcResp); err != nil {
		return zero, fmt.Errorf("%w: %s: decode: %w", types.ErrSourceUnavailable, method, err)
	}
	if rpcResp.Error != nil {
		return zero, fmt.Errorf("%w: %s: %w", types.ErrSourceUnavailable, method, rpcResp.Error)
	}
	return rpcResp.Result, nil
}

// BlockNumber returns the current chain tip (eth_blockNumber).
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	result, err := call[string](ctx, c, "eth_blockNumber")
	if err != nil {
		return 0, err
	}
	height, err := utils.ParseHexU64(result)
	if err != nil {
		return 0, fmt.Errorf("%w: eth_blockNumber %q: %w", types.ErrSourceUnavailable, result, err)
	}
	return height, nil
}

// BlockByNumber fetches the header of block height. It returns (nil, nil)
// when the node has not produced that block yet.
func (c *Client) BlockByNumber(ctx context.Context, height uint64) (*types.Block, error) {
	header, err := call[*BlockHeader](ctx, c, "eth_getBlockByNumber", utils.FormatHexU64(height), false)
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, nil
	}
	blk, err := header.Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: malformed block %d: %w", types.ErrSourceUnavailable, height, err)
	}
	if blk.Height != height {
		return nil, fmt.Errorf("%w: asked for block %d, node returned %d", types.ErrSourceUnavailable, height, blk.Height)
	}
	return &blk, nil
}
