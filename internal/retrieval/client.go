package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notaspider/comick-source-api/internal/scraper"
)

// Client is the adapter-facing entry point: it applies a Strategy over a
// shared Runner. Clients are immutable; With returns a copy.
type Client struct {
	runner   *Runner
	strategy Strategy
}

// Option configures a Client.
type Option func(*Client)

// WithClassifier sets the bot-wall classifier.
func WithClassifier(c Classifier) Option {
	return func(cl *Client) { cl.runner.classifier = c }
}

// WithDirectTimeout overrides the direct stage timeout.
func WithDirectTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.runner.directTimeout = d
		}
	}
}

// WithProxyTimeout overrides the proxy stage timeout.
func WithProxyTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.runner.proxyTimeout = d
		}
	}
}

// WithLogger sets the logger used for stage transitions.
func WithLogger(logger *zap.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.runner.logger = logger
		}
	}
}

// WithStrategy sets the default strategy.
func WithStrategy(s Strategy) Option {
	return func(cl *Client) {
		if s != nil {
			cl.strategy = s
		}
	}
}

// NewClient wires the direct and proxy stages. Either may be nil; a strategy
// that reaches a missing stage records ErrStageUnavailable for it.
func NewClient(direct, proxy Fetcher, opts ...Option) *Client {
	c := &Client{
		runner: &Runner{
			direct:        direct,
			proxy:         proxy,
			directTimeout: DefaultDirectTimeout,
			proxyTimeout:  DefaultProxyTimeout,
			logger:        zap.NewNop(),
		},
		strategy: DirectThenProxy{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// With returns a copy of the client that uses s.
func (c *Client) With(s Strategy) *Client {
	if s == nil {
		return c
	}
	cp := *c
	cp.strategy = s
	return &cp
}

// Strategy returns the strategy in use.
func (c *Client) Strategy() Strategy {
	return c.strategy
}

// Do executes req with the client's strategy.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	return c.strategy.Execute(ctx, c.runner, req)
}

// Get fetches rawURL and returns the body.
func (c *Client) Get(ctx context.Context, rawURL string, opts ...RequestOption) ([]byte, error) {
	resp, err := c.Do(ctx, newRequest(rawURL, opts))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// GetHTML fetches rawURL with an HTML Accept header.
func (c *Client) GetHTML(ctx context.Context, rawURL string, opts ...RequestOption) ([]byte, error) {
	return c.Get(ctx, rawURL, append([]RequestOption{WithAccept(AcceptHTML)}, opts...)...)
}

// GetJSON fetches rawURL and decodes the body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any, opts ...RequestOption) error {
	body, err := c.Get(ctx, rawURL, append([]RequestOption{WithAccept(AcceptJSON)}, opts...)...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", scraper.ErrMalformed, rawURL, err)
	}
	return nil
}
