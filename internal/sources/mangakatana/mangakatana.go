// Package mangakatana scrapes MangaKatana, an aggregator with flaky direct
// availability.
package mangakatana

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/notaspider/comick-source-api/internal/retrieval"
	"github.com/notaspider/comick-source-api/internal/scraper"
	"github.com/notaspider/comick-source-api/internal/sources"
)

const (
	// Name is the display name.
	Name = "MangaKatana"
	// DefaultBaseURL is the live origin.
	DefaultBaseURL = "https://mangakatana.com"

	searchLimit = 5
)

var (
	seriesID       = regexp.MustCompile(`/manga/([^/]+)\.(\d+)`)
	latestPattern  = regexp.MustCompile(`(?i)chapter\s+(\d+)`)
	chapterPattern = regexp.MustCompile(`(?i)Chapter\s+(\d+(?:\.\d+)?)`)
)

// Strategy retries the whole direct-then-proxy sequence.
var Strategy = retrieval.NewRetry(retrieval.DirectThenProxy{}, 3, time.Second)

// Scraper implements scraper.Adapter for MangaKatana.
type Scraper struct {
	*sources.Base
}

// New builds the adapter.
func New(client *retrieval.Client, opts ...sources.Option) *Scraper {
	desc := scraper.NewDescriptor(Name, DefaultBaseURL, scraper.SourceTypeAggregator)
	return &Scraper{Base: sources.NewBase(desc, client, Strategy, opts...)}
}

func idFrom(rawURL string) string {
	if m := seriesID.FindStringSubmatch(rawURL); m != nil {
		return m[1] + "." + m[2]
	}
	return ""
}

// Search returns at most five book-name matches.
func (s *Scraper) Search(ctx context.Context, query string) ([]scraper.SearchResult, error) {
	doc, err := s.Document(ctx, s.Endpoint("/", url.Values{"search": {query}, "search_by": {"book_name"}}))
	if err != nil {
		return nil, err
	}

	results := make([]scraper.SearchResult, 0, searchLimit)
	doc.Find("#book_list .item").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		link := item.Find("h3.title a").First()
		title := strings.TrimSpace(link.Text())
		href := link.AttrOr("href", "")
		id := idFrom(href)
		if title == "" || href == "" || id == "" {
			return true
		}
		var latest float64
		if m := latestPattern.FindStringSubmatch(item.Find("h3.title span").Text()); m != nil {
			latest, _ = strconv.ParseFloat(m[1], 64)
		}
		results = append(results, scraper.SearchResult{
			ID:            id,
			Title:         title,
			URL:           href,
			CoverImage:    strings.TrimSpace(item.Find(".wrap_img img").First().AttrOr("src", "")),
			LatestChapter: latest,
			LastUpdated:   strings.TrimSpace(item.Find(".date").First().Text()),
		})
		return len(results) < searchLimit
	})
	return results, nil
}

// ExtractInfo reads the heading and the "<slug>.<number>" id.
func (s *Scraper) ExtractInfo(ctx context.Context, rawURL string) (scraper.SeriesInfo, error) {
	doc, err := s.Document(ctx, rawURL)
	if err != nil {
		return scraper.SeriesInfo{}, err
	}
	title := sources.FirstText(doc.Selection, "h1.heading")
	if title == "" {
		title = sources.TitleFromPage(doc, " | ")
	}
	id := idFrom(rawURL)
	if id == "" {
		id = s.FallbackID()
	}
	return scraper.SeriesInfo{Title: title, ID: id}, nil
}

// ChapterList reads the chapter table. Rows whose text carries no
// "Chapter N" are skipped.
func (s *Scraper) ChapterList(ctx context.Context, seriesURL string) ([]scraper.Chapter, error) {
	doc, err := s.Document(ctx, seriesURL)
	if err != nil {
		return nil, err
	}

	rows := doc.Find(".chapters table tbody tr")
	set := scraper.NewChapterSet(rows.Length())
	rows.Each(func(_ int, row *goquery.Selection) {
		link := row.Find(".chapter a").First()
		href := link.AttrOr("href", "")
		text := strings.TrimSpace(link.Text())
		if href == "" || text == "" {
			return
		}
		m := chapterPattern.FindStringSubmatch(text)
		if m == nil {
			return
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return
		}
		set.Add(scraper.Chapter{
			ID:          scraper.FormatChapterNumber(n),
			Number:      n,
			Title:       text,
			URL:         s.Absolute(href),
			LastUpdated: strings.TrimSpace(row.Find(".update_time").Text()),
		})
	})
	return set.Sorted(), nil
}
