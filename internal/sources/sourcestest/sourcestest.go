// Package sourcestest provides fixture servers and retrieval clients for
// adapter tests.
package sourcestest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/notaspider/comick-source-api/internal/botwall"
	collyfetcher "github.com/notaspider/comick-source-api/internal/fetcher/colly"
	proxyfetcher "github.com/notaspider/comick-source-api/internal/fetcher/proxy"
	"github.com/notaspider/comick-source-api/internal/retrieval"
)

// ChallengePage is a minimal Cloudflare interstitial.
const ChallengePage = `<!DOCTYPE html><html><head><title>Just a moment...</title></head>` +
	`<body><div id="challenge-form"></div></body></html>`

// NewClient returns a retrieval client whose direct stage is a colly
// fetcher. When proxyEndpoint is set the proxy stage forwards through it.
func NewClient(t testing.TB, proxyEndpoint string) *retrieval.Client {
	t.Helper()
	direct := collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second})
	var proxy retrieval.Fetcher
	if proxyEndpoint != "" {
		p, err := proxyfetcher.New(proxyEndpoint, direct)
		require.NoError(t, err)
		proxy = p
	}
	return retrieval.NewClient(direct, proxy,
		retrieval.WithClassifier(botwall.Default),
		retrieval.WithDirectTimeout(5*time.Second),
		retrieval.WithProxyTimeout(5*time.Second),
	)
}

// Routes maps a request URI, or failing that a path, to a response body.
type Routes map[string]string

// Serve starts a server answering from routes; anything else is a 404.
func Serve(t testing.TB, routes Routes) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.RequestURI()]
		if !ok {
			body, ok = routes[r.URL.Path]
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		WriteBody(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// WriteBody writes body with a content type guessed from its first byte.
func WriteBody(w http.ResponseWriter, body string) {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	_, _ = io.WriteString(w, body)
}

// ServeProxy starts an HTML proxy endpoint that answers ?url=<target> from
// pages keyed by target URL.
func ServeProxy(t testing.TB, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Query().Get("url")]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"error":"upstream unavailable"}`)
			return
		}
		WriteBody(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}
