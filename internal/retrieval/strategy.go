package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notaspider/comick-source-api/internal/scraper"
)

// Strategy decides how a request travels through the stages. Adapters may
// replace the whole strategy, not only its parameters.
type Strategy interface {
	Execute(ctx context.Context, r *Runner, req Request) (Response, error)
	String() string
}

// DirectThenProxy tries the direct stage and falls back to the proxy on any
// failure. It is the default.
type DirectThenProxy struct{}

// Execute runs direct then proxy.
func (DirectThenProxy) Execute(ctx context.Context, r *Runner, req Request) (Response, error) {
	return r.Run(ctx, req, scraper.StageDirect, scraper.StageProxy)
}

func (DirectThenProxy) String() string { return "direct-then-proxy" }

// DirectOnly never uses the proxy.
type DirectOnly struct{}

// Execute runs the direct stage only.
func (DirectOnly) Execute(ctx context.Context, r *Runner, req Request) (Response, error) {
	return r.Run(ctx, req, scraper.StageDirect)
}

func (DirectOnly) String() string { return "direct-only" }

// ProxyOnly always routes through the proxy, for sources that refuse direct
// access outright.
type ProxyOnly struct{}

// Execute runs the proxy stage only.
func (ProxyOnly) Execute(ctx context.Context, r *Runner, req Request) (Response, error) {
	return r.Run(ctx, req, scraper.StageProxy)
}

func (ProxyOnly) String() string { return "proxy-only" }

// Retry re-runs Inner up to MaxAttempts times with a fixed Delay between
// runs. Cancellation of the caller's context is never retried.
type Retry struct {
	Inner       Strategy
	MaxAttempts int
	Delay       time.Duration
}

// NewRetry builds a Retry around inner.
func NewRetry(inner Strategy, maxAttempts int, delay time.Duration) Retry {
	return Retry{Inner: inner, MaxAttempts: maxAttempts, Delay: delay}
}

// Execute runs the inner strategy with bounded retries.
func (s Retry) Execute(ctx context.Context, r *Runner, req Request) (Response, error) {
	inner := s.Inner
	if inner == nil {
		inner = DirectThenProxy{}
	}
	maxAttempts := s.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		attempts []scraper.Attempt
		lastErr  error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := inner.Execute(ctx, r, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		var fetchErr *scraper.FetchError
		if errors.As(err, &fetchErr) {
			attempts = append(attempts, fetchErr.Attempts...)
		}
		if !s.shouldRetry(ctx, err, attempt, maxAttempts) {
			break
		}
		if err := sleep(ctx, s.Delay); err != nil {
			break
		}
	}

	var fetchErr *scraper.FetchError
	if errors.As(lastErr, &fetchErr) {
		merged := *fetchErr
		merged.Attempts = attempts
		return Response{}, &merged
	}
	return Response{}, lastErr
}

func (s Retry) shouldRetry(ctx context.Context, err error, attempt, maxAttempts int) bool {
	if attempt >= maxAttempts {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func (s Retry) String() string {
	inner := s.Inner
	if inner == nil {
		inner = DirectThenProxy{}
	}
	return fmt.Sprintf("retry(%s, %d, %s)", inner, s.MaxAttempts, s.Delay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// ParseStrategy maps a configuration name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", "direct-then-proxy":
		return DirectThenProxy{}, nil
	case "direct-only":
		return DirectOnly{}, nil
	case "proxy-only":
		return ProxyOnly{}, nil
	default:
		return nil, fmt.Errorf("unknown retrieval strategy %q", name)
	}
}
