// Package client implements the remote indexer capability consumed by the
// sync engine: JSON-RPC point, paged, and tabular queries over HTTP, and push
// subscriptions over websocket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"numsync/core"
	"numsync/entity"
)

const (
	jsonRPCVersion = "2.0"
	defaultRPCID   = 1

	defaultHTTPTimeout = 15 * time.Second
)

// Client wraps the indexer's JSON-RPC endpoint.
type Client struct {
	endpoint   string
	wsEndpoint string
	httpClient *http.Client
	authToken  string
	limiter    *rate.Limiter
	log        *slog.Logger

	reconnectMin time.Duration
	reconnectMax time.Duration
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for RPC calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithWSEndpoint sets the websocket endpoint used for push subscriptions.
func WithWSEndpoint(endpoint string) Option {
	return func(c *Client) { c.wsEndpoint = strings.TrimSpace(endpoint) }
}

// WithAuthToken sets the bearer token attached to RPC requests.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = strings.TrimSpace(token) }
}

// WithRateLimit caps outbound request rate. Zero disables the limiter.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New initialises a client bound to the provided JSON-RPC endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("client: endpoint required")
	}
	c := &Client{
		endpoint: trimmed,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   defaultHTTPTimeout,
		},
		log:          slog.Default(),
		reconnectMin: time.Second,
		reconnectMax: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type entityQueryParams struct {
	Model   string `json:"model"`
	Clause  string `json:"clause,omitempty"`
	Limit   uint32 `json:"limit,omitempty"`
	Offset  uint32 `json:"offset,omitempty"`
	OrderBy string `json:"orderBy,omitempty"`
	Desc    bool   `json:"desc,omitempty"`
}

type entitiesResult struct {
	Entities []entity.Record `json:"entities"`
}

type rowsResult struct {
	Rows []core.Row `json:"rows"`
}

// Entities runs a point or bulk query for one model.
func (c *Client) Entities(ctx context.Context, model, clause string) ([]entity.Record, error) {
	var result entitiesResult
	params := entityQueryParams{Model: model, Clause: clause}
	if err := c.call(ctx, "idx_getEntities", []interface{}{params}, &result); err != nil {
		return nil, err
	}
	return result.Entities, nil
}

// EntitiesPage runs an offset-paged query with server-side ordering.
func (c *Client) EntitiesPage(ctx context.Context, model, clause string, limit, offset uint32, orderBy string, desc bool) ([]entity.Record, error) {
	var result entitiesResult
	params := entityQueryParams{Model: model, Clause: clause, Limit: limit, Offset: offset, OrderBy: orderBy, Desc: desc}
	if err := c.call(ctx, "idx_getEntities", []interface{}{params}, &result); err != nil {
		return nil, err
	}
	return result.Entities, nil
}

// Query runs a raw tabular query and returns named, typed columns.
func (c *Client) Query(ctx context.Context, query string) ([]core.Row, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("client: query required")
	}
	var result rowsResult
	if err := c.call(ctx, "idx_query", []interface{}{query}, &result); err != nil {
		return nil, err
	}
	return result.Rows, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("client: rate limit wait: %w", err)
		}
	}
	payload := rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      defaultRPCID,
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
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: rpc call failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("client: rpc error status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("client: decode rpc response: %w", err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("client: rpc error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	if out == nil || len(decoded.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("client: decode rpc result: %w", err)
	}
	return nil
}
