// Package atsumoe talks to the atsu.moe JSON API: a search collection and a
// paginated chapter endpoint.
package atsumoe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/notaspider/comick-source-api/internal/policy/ratelimit"
	"github.com/notaspider/comick-source-api/internal/retrieval"
	"github.com/notaspider/comick-source-api/internal/scraper"
	"github.com/notaspider/comick-source-api/internal/sources"
)

const (
	// Name is the display name.
	Name = "AtsuMoe"
	// DefaultBaseURL is the live origin.
	DefaultBaseURL = "https://atsu.moe"

	// PageInterval spaces out chapter page requests.
	PageInterval = 500 * time.Millisecond
	// HitInterval spaces out per-hit chapter lookups during search.
	HitInterval = 100 * time.Millisecond

	searchLimit = 12
)

var mangaID = regexp.MustCompile(`/manga/([a-zA-Z0-9]+)`)

// Strategy retries direct access only; the API is never proxied.
var Strategy = retrieval.NewRetry(retrieval.DirectOnly{}, 3, 500*time.Millisecond)

type searchResponse struct {
	Hits []struct {
		Document struct {
			ID           string `json:"id"`
			Title        string `json:"title"`
			EnglishTitle string `json:"englishTitle"`
			Poster       string `json:"poster"`
		} `json:"document"`
	} `json:"hits"`
}

type chapter struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Number    float64 `json:"number"`
	Index     int     `json:"index"`
	PageCount int     `json:"pageCount"`
	CreatedAt string  `json:"createdAt"`
}

type chaptersResponse struct {
	Chapters []chapter `json:"chapters"`
	Pages    int       `json:"pages"`
	Page     int       `json:"page"`
}

// Scraper implements scraper.Adapter and scraper.HealthChecker.
type Scraper struct {
	*sources.Base
	hits *ratelimit.Limiter
}

// New builds the adapter. Chapter pages are throttled to PageInterval unless
// opts supply another throttle.
func New(client *retrieval.Client, opts ...sources.Option) *Scraper {
	desc := scraper.NewDescriptor(Name, DefaultBaseURL, scraper.SourceTypeScanlator)
	opts = append([]sources.Option{sources.WithThrottle(ratelimit.New(ratelimit.FromInterval(PageInterval)))}, opts...)
	return &Scraper{
		Base: sources.NewBase(desc, client, Strategy, opts...),
		hits: ratelimit.New(ratelimit.FromInterval(HitInterval)),
	}
}

func (s *Scraper) chaptersURL(id string, page int) string {
	return s.Endpoint("/api/manga/chapters", url.Values{
		"id":     {id},
		"filter": {"all"},
		"sort":   {"desc"},
		"page":   {strconv.Itoa(page)},
	})
}

func (s *Scraper) chapters(ctx context.Context, id string, page int) (chaptersResponse, error) {
	var resp chaptersResponse
	if err := s.FetchJSON(ctx, s.chaptersURL(id, page), &resp); err != nil {
		return chaptersResponse{}, err
	}
	return resp, nil
}

// ExtractInfo validates the manga id against the chapter endpoint. The API
// exposes no title there, so the id doubles as the title.
func (s *Scraper) ExtractInfo(ctx context.Context, rawURL string) (scraper.SeriesInfo, error) {
	m := mangaID.FindStringSubmatch(rawURL)
	if m == nil {
		return scraper.SeriesInfo{}, scraper.WrapSource(Name, fmt.Errorf("%w: invalid atsu.moe manga URL %q", scraper.ErrNotFound, rawURL))
	}
	if _, err := s.chapters(ctx, m[1], 0); err != nil {
		return scraper.SeriesInfo{}, err
	}
	return scraper.SeriesInfo{Title: m[1], ID: m[1]}, nil
}

// ChapterList walks every page of the chapter endpoint.
func (s *Scraper) ChapterList(ctx context.Context, seriesURL string) ([]scraper.Chapter, error) {
	m := mangaID.FindStringSubmatch(seriesURL)
	if m == nil {
		return nil, scraper.WrapSource(Name, fmt.Errorf("%w: invalid atsu.moe manga URL %q", scraper.ErrNotFound, seriesURL))
	}
	id := m[1]

	var all []scraper.Chapter
	for page, total := 0, 1; page < total; page++ {
		if err := s.Throttle(ctx, s.BaseURL()); err != nil {
			return nil, err
		}
		resp, err := s.chapters(ctx, id, page)
		if err != nil {
			return nil, err
		}
		total = resp.Pages
		for _, ch := range resp.Chapters {
			all = append(all, scraper.Chapter{
				ID:     ch.ID,
				Number: ch.Number,
				Title:  ch.Title,
				URL:    s.BaseURL() + "/read/" + id + "/" + ch.ID,
			})
		}
	}
	return scraper.NormalizeChapters(all), nil
}

// Search queries the collection and looks up each hit's newest chapter.
func (s *Scraper) Search(ctx context.Context, query string) ([]scraper.SearchResult, error) {
	var resp searchResponse
	err := s.FetchJSON(ctx, s.Endpoint("/collections/manga/documents/search", url.Values{
		"q":                {query},
		"limit":            {strconv.Itoa(searchLimit)},
		"query_by":         {"title,englishTitle,otherNames"},
		"query_by_weights": {"3,2,1"},
		"include_fields":   {"id,title,englishTitle,poster"},
		"num_typos":        {"4,3,2"},
	}), &resp)
	if err != nil {
		return nil, err
	}

	results := make([]scraper.SearchResult, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		doc := hit.Document
		title := doc.EnglishTitle
		if title == "" {
			title = doc.Title
		}
		res := scraper.SearchResult{
			ID:    doc.ID,
			Title: title,
			URL:   s.BaseURL() + "/manga/" + doc.ID,
		}
		if doc.Poster != "" {
			res.CoverImage = s.BaseURL() + doc.Poster
		}
		if err := s.hits.Wait(ctx, s.BaseURL()); err != nil {
			return nil, err
		}
		s.enrich(ctx, &res)
		results = append(results, res)
	}
	return results, nil
}

func (s *Scraper) enrich(ctx context.Context, res *scraper.SearchResult) {
	page, err := s.chapters(ctx, res.ID, 0)
	if err != nil {
		s.Logger().Warn("latest chapter lookup failed", zap.String("id", res.ID), zap.Error(err))
		return
	}
	if len(page.Chapters) == 0 {
		return
	}
	newest := page.Chapters[0]
	res.LatestChapter = newest.Number
	if created, err := time.Parse(time.RFC3339, newest.CreatedAt); err == nil {
		res.LastUpdated = TimeAgo(s.Clock().Now(), created)
	}
}

// TimeAgo renders the coarsest whole unit between then and now: "3d ago",
// "2mo ago", or "just now" under a minute.
func TimeAgo(now, then time.Time) string {
	secs := int64(now.Sub(then) / time.Second)
	mins := secs / 60
	hours := mins / 60
	days := hours / 24
	switch {
	case days/365 > 0:
		return fmt.Sprintf("%dy ago", days/365)
	case days/30 > 0:
		return fmt.Sprintf("%dmo ago", days/30)
	case days/7 > 0:
		return fmt.Sprintf("%dw ago", days/7)
	case days > 0:
		return fmt.Sprintf("%dd ago", days)
	case hours > 0:
		return fmt.Sprintf("%dh ago", hours)
	case mins > 0:
		return fmt.Sprintf("%dm ago", mins)
	default:
		return "just now"
	}
}

// HealthCheck probes the search collection, which is what the adapter
// depends on, without retries. HTTP failures are reported as responses so
// the prober can classify the status.
func (s *Scraper) HealthCheck(ctx context.Context) (scraper.ProbeResponse, error) {
	probeURL := s.Endpoint("/collections/manga/documents/search", url.Values{"q": {"a"}, "limit": {"1"}})
	resp, err := s.Client().With(retrieval.DirectOnly{}).Do(ctx, retrieval.Request{
		URL:     probeURL,
		Headers: http.Header{"Accept": {retrieval.AcceptJSON}},
	})
	if err != nil {
		var fe *scraper.FetchError
		if errors.As(err, &fe) && fe.Kind == scraper.KindHTTPStatus {
			return scraper.ProbeResponse{URL: probeURL, StatusCode: fe.StatusCode}, nil
		}
		return scraper.ProbeResponse{}, err
	}
	return scraper.ProbeResponse{URL: resp.URL, StatusCode: resp.StatusCode, Headers: resp.Headers, Body: resp.Body}, nil
}
