package madarascans

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/notaspider/comick-source-api/internal/scraper"
	"github.com/notaspider/comick-source-api/internal/sources"
	"github.com/notaspider/comick-source-api/internal/sources/sourcestest"
)

const seriesPage = `<html><head><title>Tower - Madarascans</title></head><body>
<h1>Tower of Ascent</h1>
<div class="ch-list-grid">
  <div class="ch-item locked" data-ch="12"><a class="ch-main-anchor" href="/tower-chapter-12/"><span class="ch-num">Chapter 12</span></a></div>
  <div class="ch-item" data-ch="11"><a class="ch-main-anchor" href="/tower-chapter-11/"><span class="ch-num">Chapter 11</span><span class="ch-date">March 3, 2026</span></a></div>
  <div class="ch-item"><a class="ch-main-anchor" href="/tower-chapter-10-5/"><span class="ch-num">Chapter 10.5</span><span class="ch-date">March 1, 2026</span></a></div>
  <div class="ch-item" data-ch="10"><a class="ch-main-anchor" href="#"><span class="ch-num">Chapter 10</span></a></div>
  <div class="ch-item" data-ch="9"><a class="ch-main-anchor" href="/tower-chapter-9/"><span class="ch-num"></span></a></div>
  <div class="ch-item" data-ch="9"><a class="ch-main-anchor" href="/tower-chapter-9-again/"><span class="ch-num">Chapter 9</span></a></div>
</div>
</body></html>`

func card(slug, title string) string {
	return fmt.Sprintf(`<div class="legend-card"><a class="legend-poster" href="/series/%s/"><img class="legend-img" data-src="/img/%s.webp"></a>`+
		`<div class="legend-content"><div class="legend-title"><a href="/series/%s/">%s</a></div></div>`+
		`<div class="legend-rating">★ 8.5</div></div>`, slug, slug, slug, title)
}

func searchPage() string {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	b.WriteString(card("tower", "Tower of Ascent"))
	b.WriteString(card("gone", "Gone Series"))
	for i := 3; i <= 6; i++ {
		b.WriteString(card(fmt.Sprintf("extra-%d", i), fmt.Sprintf("Extra %d", i)))
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func TestChapterList(t *testing.T) {
	t.Parallel()

	srv := sourcestest.Serve(t, sourcestest.Routes{"/series/tower/": seriesPage})
	s := New(sourcestest.NewClient(t, ""), sources.WithBaseURL(srv.URL))

	chapters, err := s.ChapterList(context.Background(), srv.URL+"/series/tower/")
	require.NoError(t, err)
	require.Len(t, chapters, 3)

	require.Equal(t, 9.0, chapters[0].Number)
	require.Equal(t, "Chapter 9", chapters[0].Title)
	require.Equal(t, srv.URL+"/tower-chapter-9/", chapters[0].URL)
	require.Equal(t, 10.5, chapters[1].Number)
	require.Equal(t, 11.0, chapters[2].Number)
	require.Equal(t, "March 3, 2026", chapters[2].LastUpdated)
}

func TestSearch_EnrichesFirstFive(t *testing.T) {
	t.Parallel()

	srv := sourcestest.Serve(t, sourcestest.Routes{
		"/?s=tower":        searchPage(),
		"/series/tower/":   seriesPage,
		"/series/extra-3/": `<html><body><div class="ch-list-grid"></div></body></html>`,
		"/series/extra-4/": `<html><body></body></html>`,
		"/series/extra-5/": `<html><body></body></html>`,
	})
	s := New(sourcestest.NewClient(t, ""), sources.WithBaseURL(srv.URL))

	results, err := s.Search(context.Background(), "tower")
	require.NoError(t, err)
	require.Len(t, results, 5)

	tower := results[0]
	require.Equal(t, "tower", tower.ID)
	require.Equal(t, srv.URL+"/img/tower.webp", tower.CoverImage)
	require.Equal(t, 11.0, tower.LatestChapter)
	require.Equal(t, "March 3, 2026", tower.LastUpdated)
	require.NotNil(t, tower.LastUpdatedTimestamp)
	require.NotNil(t, tower.Rating)
	require.Equal(t, 8.5, *tower.Rating)

	gone := results[1]
	require.Equal(t, "Gone Series", gone.Title)
	require.Zero(t, gone.LatestChapter)
	require.Empty(t, gone.LastUpdated)
	require.Nil(t, gone.LastUpdatedTimestamp)
}

func TestSearch_SpacesSeriesPageFetches(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		arrivals []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("s") != "" {
			sourcestest.WriteBody(w, searchPage())
			return
		}
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()
		sourcestest.WriteBody(w, `<html><body></body></html>`)
	}))
	t.Cleanup(srv.Close)
	s := New(sourcestest.NewClient(t, ""), sources.WithBaseURL(srv.URL))

	start := time.Now()
	results, err := s.Search(context.Background(), "tower")
	require.NoError(t, err)
	require.Len(t, results, searchEnrichLimit)
	require.GreaterOrEqual(t, time.Since(start), (searchEnrichLimit-1)*DetailInterval)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, arrivals, searchEnrichLimit)
	for i := 1; i < len(arrivals); i++ {
		require.GreaterOrEqual(t, arrivals[i].Sub(arrivals[i-1]), DetailInterval-50*time.Millisecond)
	}
}

func TestChapterImages(t *testing.T) {
	t.Parallel()

	srv := sourcestest.Serve(t, sourcestest.Routes{
		"/tower-chapter-11/": `<html><body><script>ts_reader.run({"post_id":1,"sources":[{"source":"Server 1","images":["https://cdn.example/1.jpg","https://cdn.example/2.jpg"]}]});</script></body></html>`,
		"/tower-chapter-10-5/": `<html><body><p>no reader</p></body></html>`,
		"/broken/":             `<html><body><script>ts_reader.run({"sources": [}) </script></body></html>`,
	})
	s := New(sourcestest.NewClient(t, ""), sources.WithBaseURL(srv.URL))

	images, err := s.ChapterImages(context.Background(), srv.URL+"/tower-chapter-11/")
	require.NoError(t, err)
	require.Equal(t, []scraper.ChapterImage{
		{URL: "https://cdn.example/1.jpg", Page: 1},
		{URL: "https://cdn.example/2.jpg", Page: 2},
	}, images)

	images, err = s.ChapterImages(context.Background(), srv.URL+"/tower-chapter-10-5/")
	require.NoError(t, err)
	require.Empty(t, images)

	images, err = s.ChapterImages(context.Background(), srv.URL+"/broken/")
	require.NoError(t, err)
	require.Empty(t, images)

	p, ok := scraper.SupportsImages(s)
	require.True(t, ok)
	require.NotNil(t, p)
}

func TestExtractInfo(t *testing.T) {
	t.Parallel()

	srv := sourcestest.Serve(t, sourcestest.Routes{"/series/tower/": seriesPage})
	s := New(sourcestest.NewClient(t, ""), sources.WithBaseURL(srv.URL))
	info, err := s.ExtractInfo(context.Background(), srv.URL+"/series/tower/")
	require.NoError(t, err)
	require.Equal(t, scraper.SeriesInfo{Title: "Tower of Ascent", ID: "tower"}, info)
}
