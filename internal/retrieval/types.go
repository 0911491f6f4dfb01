// Package retrieval implements the resilient fetch layer shared by every
// adapter: a direct attempt, a proxy fallback, bounded retries and bot-wall
// classification, modeled as a small state machine whose terminal error
// reports which stage failed.
package retrieval

import (
	"context"
	"net/http"
	"time"
)

// Request describes a single retrieval.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is the raw outcome of a stage. Fetchers return it for any HTTP
// status; classification happens in the state machine.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher performs one stage of a retrieval.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req Request) (Response, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Classifier decides whether a payload is a bot-wall challenge.
type Classifier interface {
	IsChallenge(body []byte) bool
}

// RequestOption mutates a Request before it is executed.
type RequestOption func(*Request)

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Headers == nil {
			r.Headers = make(http.Header)
		}
		r.Headers.Set(key, value)
	}
}

// WithAccept sets the Accept header.
func WithAccept(value string) RequestOption {
	return WithHeader("Accept", value)
}

// WithReferer sets the Referer header.
func WithReferer(value string) RequestOption {
	return WithHeader("Referer", value)
}

// Common Accept values.
const (
	AcceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	AcceptJSON = "application/json"
)

func newRequest(rawURL string, opts []RequestOption) Request {
	req := Request{URL: rawURL}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}
