package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notaspider/comick-source-api/internal/clock/system"
	"github.com/notaspider/comick-source-api/internal/metrics"
	"github.com/notaspider/comick-source-api/internal/retrieval"
	"github.com/notaspider/comick-source-api/internal/scraper"
)

// DefaultProbeTimeout bounds a single source probe.
const DefaultProbeTimeout = 10 * time.Second

// Prober exercises adapters and classifies the outcome. Adapters that
// implement scraper.HealthChecker define their own probe, which for the
// bundled sources follows the adapter's fetch strategy; the rest get a
// direct fetch of their base URL.
type Prober struct {
	fetcher    retrieval.Fetcher
	classifier retrieval.Classifier
	timeout    time.Duration
	clock      scraper.Clock
	logger     *zap.Logger
}

// ProberConfig wires a Prober.
type ProberConfig struct {
	Fetcher    retrieval.Fetcher
	Classifier retrieval.Classifier
	Timeout    time.Duration
	Clock      scraper.Clock
	Logger     *zap.Logger
}

// NewProber builds a Prober.
func NewProber(cfg ProberConfig) *Prober {
	p := &Prober{
		fetcher:    cfg.Fetcher,
		classifier: cfg.Classifier,
		timeout:    cfg.Timeout,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
	if p.timeout <= 0 {
		p.timeout = DefaultProbeTimeout
	}
	if p.clock == nil {
		p.clock = system.New()
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// ProbeAll probes every adapter concurrently and returns results keyed by
// source id. A slow or panicking adapter only affects its own entry.
func (p *Prober) ProbeAll(ctx context.Context, adapters []scraper.Adapter) map[string]Result {
	results := make(map[string]Result, len(adapters))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, a := range adapters {
		wg.Add(1)
		go func(a scraper.Adapter) {
			defer wg.Done()
			res := p.Probe(ctx, a)
			mu.Lock()
			results[a.Descriptor().SourceID] = res
			mu.Unlock()
		}(a)
	}
	wg.Wait()
	return results
}

type probeOutcome struct {
	resp     scraper.ProbeResponse
	err      error
	panicked any
}

// Probe runs one adapter's probe under the per-probe timeout. The probe runs
// in its own goroutine so an adapter that ignores ctx cannot hold the result
// past the deadline; a late result is still reported as a timeout.
func (p *Prober) Probe(ctx context.Context, a scraper.Adapter) Result {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan probeOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- probeOutcome{panicked: r}
			}
		}()
		resp, err := p.run(probeCtx, a)
		done <- probeOutcome{resp: resp, err: err}
	}()

	var res Result
	select {
	case out := <-done:
		if out.panicked != nil {
			p.logger.Error("health probe panicked", zap.String("source", a.Name()), zap.Any("panic", out.panicked))
			res = Result{Status: StatusError, Message: fmt.Sprintf("probe panicked: %v", out.panicked)}
			break
		}
		res = p.classify(probeCtx, out.resp, out.err)
	case <-probeCtx.Done():
		res = p.classify(probeCtx, scraper.ProbeResponse{}, probeCtx.Err())
	}
	if res.Status != StatusTimeout {
		res = p.withElapsed(res, start)
	}
	res.LastChecked = p.clock.Now()

	metrics.ObserveHealth(a.Descriptor().SourceID, string(res.Status), time.Since(start))
	p.logger.Debug("health probe complete",
		zap.String("source", a.Name()),
		zap.String("status", string(res.Status)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res
}

func (p *Prober) withElapsed(res Result, start time.Time) Result {
	ms := time.Since(start).Milliseconds()
	res.ResponseTime = &ms
	if res.LastChecked.IsZero() {
		res.LastChecked = p.clock.Now()
	}
	return res
}

func (p *Prober) run(ctx context.Context, a scraper.Adapter) (scraper.ProbeResponse, error) {
	if hc, ok := a.(scraper.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	if p.fetcher == nil {
		return scraper.ProbeResponse{}, errors.New("no probe fetcher configured")
	}
	resp, err := p.fetcher.Fetch(ctx, retrieval.Request{
		URL:     a.BaseURL(),
		Headers: http.Header{"Accept": {retrieval.AcceptHTML}},
	})
	if err != nil {
		return scraper.ProbeResponse{}, err
	}
	return scraper.ProbeResponse{URL: resp.URL, StatusCode: resp.StatusCode, Headers: resp.Headers, Body: resp.Body}, nil
}

func (p *Prober) classify(ctx context.Context, resp scraper.ProbeResponse, err error) Result {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (err != nil && isTimeout(err)) {
		return Result{Status: StatusTimeout, Message: fmt.Sprintf("Request timed out after %s", p.timeout)}
	}
	if err != nil {
		if hitBotWall(err) {
			return Result{Status: StatusCloudflare, Message: "Cloudflare protection detected"}
		}
		return Result{Status: StatusError, Message: err.Error()}
	}
	if p.classifier != nil && p.classifier.IsChallenge(resp.Body) {
		return Result{Status: StatusCloudflare, Message: "Cloudflare protection detected"}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{Status: StatusHealthy, Message: "Source is accessible"}
	}
	return Result{Status: StatusError, Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if scraper.KindOf(err) == scraper.KindTimeout {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// hitBotWall reports whether any stage of the retrieval was turned away by a
// challenge page, even when a later stage failed for another reason.
func hitBotWall(err error) bool {
	if scraper.KindOf(err) == scraper.KindBotWall {
		return true
	}
	var fe *scraper.FetchError
	if !errors.As(err, &fe) {
		return false
	}
	for _, attempt := range fe.Attempts {
		if attempt.Kind == scraper.KindBotWall {
			return true
		}
	}
	return false
}
