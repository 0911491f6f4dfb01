// Package proxyfetcher implements the proxy retrieval stage: the target URL
// is handed to an HTML proxy endpoint as ?url=<target>.
package proxyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/notaspider/comick-source-api/internal/retrieval"
)

// ErrNoEndpoint is returned when the proxy endpoint is empty.
var ErrNoEndpoint = errors.New("proxy endpoint not configured")

// Fetcher forwards requests through a proxy endpoint using an inner transport
// fetcher.
type Fetcher struct {
	endpoint *url.URL
	inner    retrieval.Fetcher
}

// New validates endpoint and returns a Fetcher that uses inner for transport.
func New(endpoint string, inner retrieval.Fetcher) (*Fetcher, error) {
	if endpoint == "" {
		return nil, ErrNoEndpoint
	}
	if inner == nil {
		return nil, errors.New("proxy fetcher requires an inner fetcher")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse proxy endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("proxy endpoint must be absolute http(s), got %q", endpoint)
	}
	return &Fetcher{endpoint: u, inner: inner}, nil
}

// Fetch retrieves req.URL through the proxy endpoint.
func (f *Fetcher) Fetch(ctx context.Context, req retrieval.Request) (retrieval.Response, error) {
	proxied := req
	proxied.URL = f.proxyURL(req.URL)
	resp, err := f.inner.Fetch(ctx, proxied)
	if err != nil {
		return retrieval.Response{}, fmt.Errorf("proxy fetch: %w", err)
	}
	resp.URL = req.URL
	return resp, nil
}

func (f *Fetcher) proxyURL(target string) string {
	u := *f.endpoint
	q := u.Query()
	q.Set("url", target)
	u.RawQuery = q.Encode()
	return u.String()
}
