// Package sources holds the pieces shared by every concrete adapter: the
// descriptor, the retrieval client bound to the adapter's strategy, a
// throttle for serial detail fetches and HTML helpers.
package sources

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/notaspider/comick-source-api/internal/clock/system"
	"github.com/notaspider/comick-source-api/internal/policy/ratelimit"
	"github.com/notaspider/comick-source-api/internal/retrieval"
	"github.com/notaspider/comick-source-api/internal/scraper"
)

// Base implements the descriptor half of scraper.Adapter. Concrete adapters
// embed it and add Search, ChapterList and ExtractInfo.
type Base struct {
	desc     scraper.Descriptor
	host     string
	client   *retrieval.Client
	throttle *ratelimit.Limiter
	clock    scraper.Clock
	logger   *zap.Logger
}

// Option customizes a Base.
type Option func(*Base)

// WithBaseURL points the adapter at another origin, keeping its name and id.
// Tests use it to target an httptest server.
func WithBaseURL(rawURL string) Option {
	return func(b *Base) {
		if rawURL != "" {
			b.desc.BaseURL = strings.TrimRight(rawURL, "/")
		}
	}
}

// WithStrategy replaces the adapter's default fetch strategy.
func WithStrategy(s retrieval.Strategy) Option {
	return func(b *Base) {
		if s != nil {
			b.client = b.client.With(s)
		}
	}
}

// WithThrottle sets the limiter used between serial detail fetches.
func WithThrottle(l *ratelimit.Limiter) Option {
	return func(b *Base) {
		if l != nil {
			b.throttle = l
		}
	}
}

// WithClock sets the clock used for relative dates and fallback ids.
func WithClock(c scraper.Clock) Option {
	return func(b *Base) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithLogger sets the adapter logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBase binds client to the adapter's default strategy and applies opts.
func NewBase(desc scraper.Descriptor, client *retrieval.Client, strategy retrieval.Strategy, opts ...Option) *Base {
	b := &Base{
		desc:     desc,
		client:   client.With(strategy),
		throttle: ratelimit.New(ratelimit.Config{}),
		clock:    system.New(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.host = matchHost(b.desc.BaseURL)
	b.logger = b.logger.Named(b.desc.SourceID)
	return b
}

func matchHost(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

// Descriptor returns the adapter identity.
func (b *Base) Descriptor() scraper.Descriptor { return b.desc }

// Name returns the display name.
func (b *Base) Name() string { return b.desc.Name }

// BaseURL returns the source origin.
func (b *Base) BaseURL() string { return b.desc.BaseURL }

// Type returns the source type.
func (b *Base) Type() scraper.SourceType { return b.desc.Type }

// CanHandle reports whether rawURL mentions the source host.
func (b *Base) CanHandle(rawURL string) bool {
	return b.host != "" && strings.Contains(strings.ToLower(rawURL), b.host)
}

// Client returns the retrieval client bound to the adapter strategy.
func (b *Base) Client() *retrieval.Client { return b.client }

// Clock returns the adapter clock.
func (b *Base) Clock() scraper.Clock { return b.clock }

// Logger returns the adapter logger.
func (b *Base) Logger() *zap.Logger { return b.logger }

// Throttle waits for the next detail-fetch slot.
func (b *Base) Throttle(ctx context.Context, rawURL string) error {
	return b.throttle.Wait(ctx, rawURL)
}

// HealthCheck fetches the base URL through the adapter strategy, so a
// source is only healthy when the stages it actually uses can reach it.
// A terminal HTTP status is reported as a response for the prober to
// classify.
func (b *Base) HealthCheck(ctx context.Context) (scraper.ProbeResponse, error) {
	resp, err := b.client.Do(ctx, retrieval.Request{
		URL:     b.desc.BaseURL,
		Headers: http.Header{"Accept": {retrieval.AcceptHTML}},
	})
	if err != nil {
		var fe *scraper.FetchError
		if errors.As(err, &fe) && fe.Kind == scraper.KindHTTPStatus {
			return scraper.ProbeResponse{URL: b.desc.BaseURL, StatusCode: fe.StatusCode}, nil
		}
		return scraper.ProbeResponse{}, err
	}
	return scraper.ProbeResponse{URL: resp.URL, StatusCode: resp.StatusCode, Headers: resp.Headers, Body: resp.Body}, nil
}

// FetchHTML retrieves rawURL with the adapter strategy.
func (b *Base) FetchHTML(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := b.client.GetHTML(ctx, rawURL)
	if err != nil {
		return nil, scraper.WrapSource(b.desc.Name, err)
	}
	return body, nil
}

// Document retrieves rawURL and parses it with goquery.
func (b *Base) Document(ctx context.Context, rawURL string) (*goquery.Document, error) {
	body, err := b.FetchHTML(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, scraper.NewParseError(b.desc.Name, "parse %s: %v", rawURL, err)
	}
	return doc, nil
}

// FetchJSON retrieves rawURL and decodes it into v.
func (b *Base) FetchJSON(ctx context.Context, rawURL string, v any) error {
	if err := b.client.GetJSON(ctx, rawURL, v); err != nil {
		return scraper.WrapSource(b.desc.Name, err)
	}
	return nil
}

// Absolute resolves href against the base URL. Absolute links are returned
// unchanged and protocol-relative links get https.
func (b *Base) Absolute(href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return b.desc.BaseURL + href
	default:
		return b.desc.BaseURL + "/" + href
	}
}

// Endpoint joins path and an encoded query onto the base URL.
func (b *Base) Endpoint(path string, query url.Values) string {
	u := b.desc.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// FirstText returns the trimmed text of the first match of each selector in
// turn, stopping at the first non-empty one.
func FirstText(doc *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// TitleFromPage falls back to the document title, cut at sep.
func TitleFromPage(doc *goquery.Document, sep string) string {
	title := doc.Find("title").First().Text()
	if i := strings.Index(title, sep); i >= 0 {
		title = title[:i]
	}
	return strings.TrimSpace(title)
}

// ImageSource returns src, or data-src for lazy-loaded images.
func ImageSource(img *goquery.Selection) string {
	if src := strings.TrimSpace(img.AttrOr("src", "")); src != "" {
		return src
	}
	return strings.TrimSpace(img.AttrOr("data-src", ""))
}

// FallbackID stands in for a series id the URL does not carry.
func (b *Base) FallbackID() string {
	return strconv.FormatInt(b.clock.Now().UnixMilli(), 10)
}
