package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/nextlevelbuilder/hedgewatch/pkg/protocol"
)

// maxErrorBody caps how much of a failed response is kept for the error.
const maxErrorBody = 4096

// Opener opens the event stream for a request.
type Opener interface {
	Open(ctx context.Context, req Request) (io.ReadCloser, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, req Request) (io.ReadCloser, error)

func (f OpenerFunc) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	return f(ctx, req)
}

// ClientConfig configures the upstream analysis client.
type ClientConfig struct {
	BaseURL      string            // e.g. "http://192.168.110.81:8000"
	RunPath      string            // default "/hedge-fund/run"
	TickerSuffix string            // appended to the symbol, e.g. "-USDT"
	Crypto       bool              // sent as "crypto" in the request body
	Token        string            // bearer token (empty = none)
	Headers      map[string]string // extra request headers
	HTTPClient   *http.Client      // default: a client without a timeout
}

// Client issues analysis requests to the upstream service.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient creates a client. The HTTP client must not impose a total
// timeout, or long analyses would be cut off mid-stream.
func NewClient(cfg ClientConfig) *Client {
	if cfg.RunPath == "" {
		cfg.RunPath = "/hedge-fund/run"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{cfg: cfg, http: hc}
}

// Endpoint returns the full URL requests are POSTed to.
func (c *Client) Endpoint() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(c.cfg.RunPath, "/")
}

// BuildRunRequest converts a Request into the upstream wire body.
func BuildRunRequest(req Request, tickerSuffix string, crypto bool) protocol.RunRequest {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	ticker := symbol
	if tickerSuffix != "" && !strings.HasSuffix(symbol, strings.ToUpper(tickerSuffix)) {
		ticker = symbol + tickerSuffix
	}
	return protocol.RunRequest{
		Tickers:        []string{ticker},
		SelectedAgents: append([]string(nil), req.Agents...),
		ModelName:      req.Model,
		Crypto:         crypto,
	}
}

// Open POSTs the request and returns the streaming response body.
// A non-2xx status returns a *RequestError; a missing body returns ErrEmptyBody.
func (c *Client) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis request: %w", err)
	}
	if _, err := url.Parse(c.Endpoint()); err != nil || c.cfg.BaseURL == "" {
		return nil, fmt.Errorf("invalid analysis endpoint %q", c.Endpoint())
	}

	body, err := json.Marshal(BuildRunRequest(req, c.cfg.TickerSuffix, c.cfg.Crypto))
	if err != nil {
		return nil, fmt.Errorf("marshal analysis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if runID := RunIDFromContext(ctx); runID != "" {
		httpReq.Header.Set("X-Request-Id", runID)
	}
	if c.cfg.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	for k, v := range c.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	slog.Debug("analysis.request", "url", c.Endpoint(), "symbol", req.Symbol, "agents", req.Agents, "model", req.Model)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send analysis request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, ErrEmptyBody
	}
	return resp.Body, nil
}
