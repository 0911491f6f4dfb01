package atsumoe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/notaspider/comick-source-api/internal/clock/system"
	"github.com/notaspider/comick-source-api/internal/policy/ratelimit"
	"github.com/notaspider/comick-source-api/internal/retrieval"
	"github.com/notaspider/comick-source-api/internal/scraper"
	"github.com/notaspider/comick-source-api/internal/sources"
	"github.com/notaspider/comick-source-api/internal/sources/sourcestest"
)

var now = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type api struct {
	searchStatus atomic.Int32
	chapterCalls atomic.Int32
}

func (a *api) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/collections/manga/documents/search":
		if code := a.searchStatus.Load(); code != 0 {
			w.WriteHeader(int(code))
			return
		}
		sourcestest.WriteBody(w, `{"hits":[
			{"document":{"id":"abc123","title":"Tou no Nobori","englishTitle":"Tower Climb","poster":"/posters/abc123.webp"}},
			{"document":{"id":"gone","title":"Gone"}}]}`)
	case "/api/manga/chapters":
		a.chapterCalls.Add(1)
		q := r.URL.Query()
		if q.Get("id") != "abc123" || q.Get("sort") != "desc" {
			http.NotFound(w, r)
			return
		}
		switch q.Get("page") {
		case "0":
			sourcestest.WriteBody(w, fmt.Sprintf(`{"page":0,"pages":2,"chapters":[
				{"id":"c3","title":"Finale","number":3,"createdAt":%q},
				{"id":"c2","title":"Middle","number":2,"createdAt":"2026-09-01T00:00:00.000Z"}]}`,
				now.Add(-3*24*time.Hour).Format(time.RFC3339)))
		case "1":
			sourcestest.WriteBody(w, `{"page":1,"pages":2,"chapters":[
				{"id":"c1","title":"Start","number":1,"createdAt":"2026-08-01T00:00:00Z"},
				{"id":"c2b","title":"Middle again","number":2,"createdAt":"2026-08-15T00:00:00Z"}]}`)
		default:
			http.NotFound(w, r)
		}
	default:
		http.NotFound(w, r)
	}
}

func newScraper(t *testing.T, opts ...sources.Option) (*Scraper, *api, string) {
	t.Helper()
	a := &api{}
	srv := httptest.NewServer(a)
	t.Cleanup(srv.Close)
	base := []sources.Option{
		sources.WithBaseURL(srv.URL),
		sources.WithStrategy(retrieval.DirectOnly{}),
		sources.WithClock(system.NewManual(now)),
		sources.WithThrottle(ratelimit.New(ratelimit.Config{})),
	}
	return New(sourcestest.NewClient(t, ""), append(base, opts...)...), a, srv.URL
}

func TestChapterList_WalksAllPages(t *testing.T) {
	t.Parallel()

	s, a, base := newScraper(t)
	chapters, err := s.ChapterList(context.Background(), base+"/manga/abc123")
	require.NoError(t, err)
	require.Len(t, chapters, 3)
	require.Equal(t, int32(2), a.chapterCalls.Load())

	require.Equal(t, "c1", chapters[0].ID)
	require.Equal(t, "c2", chapters[1].ID)
	require.Equal(t, base+"/read/abc123/c2", chapters[1].URL)
	require.Equal(t, 3.0, chapters[2].Number)
}

func TestChapterList_ThrottlesBetweenPages(t *testing.T) {
	t.Parallel()

	s, _, base := newScraper(t, sources.WithThrottle(ratelimit.New(ratelimit.FromInterval(200*time.Millisecond))))
	start := time.Now()
	_, err := s.ChapterList(context.Background(), base+"/manga/abc123")
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestChapterList_InvalidURL(t *testing.T) {
	t.Parallel()

	s, a, base := newScraper(t)
	_, err := s.ChapterList(context.Background(), base+"/read/abc123")
	require.ErrorIs(t, err, scraper.ErrNotFound)
	require.Zero(t, a.chapterCalls.Load())
}

func TestSearch_EnrichesHits(t *testing.T) {
	t.Parallel()

	s, _, base := newScraper(t)
	results, err := s.Search(context.Background(), "tower")
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, scraper.SearchResult{
		ID:            "abc123",
		Title:         "Tower Climb",
		URL:           base + "/manga/abc123",
		CoverImage:    base + "/posters/abc123.webp",
		LatestChapter: 3,
		LastUpdated:   "3d ago",
	}, results[0])

	require.Equal(t, "Gone", results[1].Title)
	require.Zero(t, results[1].LatestChapter)
	require.Empty(t, results[1].LastUpdated)
	require.Empty(t, results[1].CoverImage)
}

func TestExtractInfo(t *testing.T) {
	t.Parallel()

	s, _, base := newScraper(t)
	info, err := s.ExtractInfo(context.Background(), base+"/manga/abc123")
	require.NoError(t, err)
	require.Equal(t, scraper.SeriesInfo{Title: "abc123", ID: "abc123"}, info)

	_, err = s.ExtractInfo(context.Background(), base+"/manga/gone")
	var fe *scraper.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, 404, fe.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	s, a, _ := newScraper(t)
	resp, err := s.HealthCheck(context.Background())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	a.searchStatus.Store(http.StatusServiceUnavailable)
	resp, err = s.HealthCheck(context.Background())
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestDefaultStrategy(t *testing.T) {
	t.Parallel()

	s := New(sourcestest.NewClient(t, ""))
	require.Equal(t, "retry(direct-only, 3, 500ms)", s.Client().Strategy().String())
	require.True(t, s.CanHandle("https://atsu.moe/manga/abc"))
	require.Equal(t, "atsumoe", s.Descriptor().SourceID)
}

func TestTimeAgo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{2 * 24 * time.Hour, "2d ago"},
		{15 * 24 * time.Hour, "2w ago"},
		{65 * 24 * time.Hour, "2mo ago"},
		{800 * 24 * time.Hour, "2y ago"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, TimeAgo(now, now.Add(-tt.ago)), tt.ago.String())
	}
}
