package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/notaspider/comick-source-api/internal/metrics"
	"github.com/notaspider/comick-source-api/internal/scraper"
)

// ErrStageUnavailable is recorded when a strategy asks for a stage that has no fetcher.
var ErrStageUnavailable = errors.New("retrieval stage not configured")

// Default per-stage timeouts.
const (
	DefaultDirectTimeout = 10 * time.Second
	DefaultProxyTimeout  = 20 * time.Second
)

// Runner drives a request through an ordered list of stages. The first stage
// that yields a usable 2xx payload wins; each failure is recorded as an
// Attempt and the machine advances. When the stages are exhausted the
// machine is in scraper.StageFailed and returns a *scraper.FetchError.
type Runner struct {
	direct        Fetcher
	proxy         Fetcher
	classifier    Classifier
	directTimeout time.Duration
	proxyTimeout  time.Duration
	logger        *zap.Logger
}

// Run executes req through stages in order.
func (r *Runner) Run(ctx context.Context, req Request, stages ...scraper.Stage) (Response, error) {
	attempts := make([]scraper.Attempt, 0, len(stages))
	for _, stage := range stages {
		resp, attempt := r.step(ctx, stage, req)
		if attempt.Err == nil {
			return resp, nil
		}
		attempts = append(attempts, attempt)
		r.logger.Debug("retrieval stage failed",
			zap.String("stage", string(stage)),
			zap.String("kind", string(attempt.Kind)),
			zap.Int("status", attempt.StatusCode),
			zap.String("url", req.URL),
			zap.Error(attempt.Err),
		)
		if ctx.Err() != nil {
			break
		}
	}
	return Response{}, failure(req.URL, attempts)
}

func (r *Runner) step(ctx context.Context, stage scraper.Stage, req Request) (Response, scraper.Attempt) {
	fetcher, timeout := r.stage(stage)
	if fetcher == nil {
		metrics.ObserveFetch(string(stage), "unavailable", 0)
		return Response{}, scraper.Attempt{Stage: stage, Kind: scraper.KindNetwork, Err: ErrStageUnavailable}
	}

	stageCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := fetcher.Fetch(stageCtx, req)
	attempt := r.classify(stage, resp, err)
	outcome := "success"
	if attempt.Err != nil {
		outcome = string(attempt.Kind)
	}
	metrics.ObserveFetch(string(stage), outcome, time.Since(start))
	return resp, attempt
}

func (r *Runner) stage(stage scraper.Stage) (Fetcher, time.Duration) {
	switch stage {
	case scraper.StageDirect:
		return r.direct, r.directTimeout
	case scraper.StageProxy:
		return r.proxy, r.proxyTimeout
	default:
		return nil, 0
	}
}

func (r *Runner) classify(stage scraper.Stage, resp Response, err error) scraper.Attempt {
	attempt := scraper.Attempt{Stage: stage}
	switch {
	case err != nil:
		attempt.Kind = transportKind(err)
		attempt.Err = err
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		attempt.StatusCode = resp.StatusCode
		if r.isChallenge(resp.Body) {
			attempt.Kind = scraper.KindBotWall
			attempt.Err = fmt.Errorf("bot wall served with HTTP %d", resp.StatusCode)
		} else {
			attempt.Kind = scraper.KindHTTPStatus
			attempt.Err = errors.New(statusMessage(resp))
		}
	case r.isChallenge(resp.Body):
		attempt.StatusCode = resp.StatusCode
		attempt.Kind = scraper.KindBotWall
		attempt.Err = errors.New("bot wall challenge page")
	}
	return attempt
}

func (r *Runner) isChallenge(body []byte) bool {
	return r.classifier != nil && r.classifier.IsChallenge(body)
}

func transportKind(err error) scraper.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return scraper.KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return scraper.KindTimeout
	}
	return scraper.KindNetwork
}

// statusMessage prefers an {"error": "..."} payload, as served by proxy
// endpoints, and falls back to "HTTP <status>".
func statusMessage(resp Response) string {
	var payload struct {
		Error string `json:"error"`
	}
	if len(resp.Body) > 0 && json.Unmarshal(resp.Body, &payload) == nil {
		if msg := strings.TrimSpace(payload.Error); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}

func failure(rawURL string, attempts []scraper.Attempt) error {
	if len(attempts) == 0 {
		return &scraper.FetchError{URL: rawURL, Stage: scraper.StageFailed, Kind: scraper.KindUnknown, Err: errors.New("no retrieval stages")}
	}
	last := attempts[len(attempts)-1]
	return &scraper.FetchError{
		URL:        rawURL,
		Stage:      last.Stage,
		Kind:       last.Kind,
		StatusCode: last.StatusCode,
		Attempts:   attempts,
		Err:        last.Err,
	}
}
