// Package madarascans scrapes Madarascans. Chapter numbers come from the
// data-ch attribute, falling back to the visible label; locked chapters are
// skipped everywhere.
package madarascans

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/notaspider/comick-source-api/internal/policy/ratelimit"
	"github.com/notaspider/comick-source-api/internal/retrieval"
	"github.com/notaspider/comick-source-api/internal/scraper"
	"github.com/notaspider/comick-source-api/internal/sources"
)

const (
	// Name is the display name.
	Name = "Madarascans"
	// DefaultBaseURL is the live origin.
	DefaultBaseURL = "https://madarascans.com"

	// DetailInterval spaces the series-page fetches made while enriching
	// search results.
	DetailInterval = 250 * time.Millisecond

	// searchEnrichLimit caps the serial series-page fetches per search.
	searchEnrichLimit = 5
)

var (
	seriesSlug    = regexp.MustCompile(`/series/([^/]+)`)
	ratingPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
	readerPayload = regexp.MustCompile(`(?s)ts_reader\.run\((\{.*?\})\)`)

	dateLayouts = []string{
		"January 2, 2006",
		"Jan 2, 2006",
		"2006-01-02",
		"02/01/2006",
	}
)

// Scraper implements scraper.Adapter and scraper.ImageProvider.
type Scraper struct {
	*sources.Base
}

// New builds the adapter. Series-page fetches are throttled to
// DetailInterval unless opts supply another throttle.
func New(client *retrieval.Client, opts ...sources.Option) *Scraper {
	desc := scraper.NewDescriptor(Name, DefaultBaseURL, scraper.SourceTypeScanlator)
	opts = append([]sources.Option{sources.WithThrottle(ratelimit.New(ratelimit.FromInterval(DetailInterval)))}, opts...)
	return &Scraper{Base: sources.NewBase(desc, client, retrieval.DirectThenProxy{}, opts...)}
}

type chapterItem struct {
	number float64
	label  string
	date   string
	href   string
}

// chapterItems lists the unlocked chapter entries of a series page in
// document order.
func chapterItems(doc *goquery.Document) []chapterItem {
	var items []chapterItem
	doc.Find(".ch-list-grid .ch-item").Each(func(_ int, ch *goquery.Selection) {
		if ch.HasClass("locked") {
			return
		}
		link := ch.Find("a.ch-main-anchor").First()
		href := link.AttrOr("href", "")
		if href == "" || strings.Contains(href, "#") {
			return
		}
		label := strings.TrimSpace(link.Find(".ch-num").Text())
		items = append(items, chapterItem{
			number: scraper.CanonicalChapterNumber(scraper.Fragment{Attr: ch.AttrOr("data-ch", ""), Text: label}),
			label:  label,
			date:   strings.TrimSpace(link.Find(".ch-date").Text()),
			href:   href,
		})
	})
	return items
}

// ChapterList returns the unlocked chapters.
func (s *Scraper) ChapterList(ctx context.Context, seriesURL string) ([]scraper.Chapter, error) {
	doc, err := s.Document(ctx, seriesURL)
	if err != nil {
		return nil, err
	}
	items := chapterItems(doc)
	set := scraper.NewChapterSet(len(items))
	for _, it := range items {
		title := it.label
		if title == "" {
			title = "Chapter " + scraper.FormatChapterNumber(it.number)
		}
		set.Add(scraper.Chapter{
			ID:          scraper.FormatChapterNumber(it.number),
			Number:      it.number,
			Title:       title,
			URL:         s.Absolute(it.href),
			LastUpdated: it.date,
		})
	}
	return set.Sorted(), nil
}

// ExtractInfo reads the series title and slug.
func (s *Scraper) ExtractInfo(ctx context.Context, rawURL string) (scraper.SeriesInfo, error) {
	doc, err := s.Document(ctx, rawURL)
	if err != nil {
		return scraper.SeriesInfo{}, err
	}
	title := sources.FirstText(doc.Selection, "h1", ".legend-title")
	if title == "" {
		title = sources.TitleFromPage(doc, " - ")
	}
	id := s.FallbackID()
	if m := seriesSlug.FindStringSubmatch(rawURL); m != nil {
		id = m[1]
	}
	return scraper.SeriesInfo{Title: title, ID: id}, nil
}

// Search matches series by name, then visits up to five series pages one
// at a time to fill in the latest chapter. A failed visit leaves that result
// with zero values rather than failing the search.
func (s *Scraper) Search(ctx context.Context, query string) ([]scraper.SearchResult, error) {
	doc, err := s.Document(ctx, s.Endpoint("/", url.Values{"s": {query}}))
	if err != nil {
		return nil, err
	}

	matches := make([]scraper.SearchResult, 0, searchEnrichLimit)
	doc.Find(".legend-card").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		link := card.Find(".legend-content .legend-title a").First()
		title := strings.TrimSpace(link.Text())
		href := link.AttrOr("href", "")
		if href == "" {
			href = card.Find("a.legend-poster").First().AttrOr("href", "")
		}
		if href == "" || title == "" {
			return true
		}
		res := scraper.SearchResult{
			Title:      title,
			URL:        s.Absolute(href),
			CoverImage: s.Absolute(sources.ImageSource(card.Find("img.legend-img").First())),
		}
		if m := seriesSlug.FindStringSubmatch(href); m != nil {
			res.ID = m[1]
		}
		if m := ratingPattern.FindStringSubmatch(card.Find(".legend-rating").First().Text()); m != nil {
			if r, err := strconv.ParseFloat(m[1], 64); err == nil {
				res.Rating = &r
			}
		}
		matches = append(matches, res)
		return len(matches) < searchEnrichLimit
	})

	for i := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.enrich(ctx, &matches[i])
	}
	return matches, nil
}

func (s *Scraper) enrich(ctx context.Context, res *scraper.SearchResult) {
	if err := s.Throttle(ctx, res.URL); err != nil {
		return
	}
	doc, err := s.Document(ctx, res.URL)
	if err != nil {
		s.Logger().Warn("series page fetch failed", zap.String("title", res.Title), zap.Error(err))
		return
	}
	for _, it := range chapterItems(doc) {
		if it.number > res.LatestChapter {
			res.LatestChapter = it.number
			res.LastUpdated = it.date
		}
	}
	if ts, ok := parseDate(res.LastUpdated); ok {
		res.LastUpdatedTimestamp = &ts
	}
}

func parseDate(text string) (int64, bool) {
	if text == "" {
		return 0, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// SupportsChapterImages reports true.
func (s *Scraper) SupportsChapterImages() bool { return true }

// ChapterImages reads the reader bootstrap payload embedded in the chapter
// page. A page without one yields no images.
func (s *Scraper) ChapterImages(ctx context.Context, chapterURL string) ([]scraper.ChapterImage, error) {
	body, err := s.FetchHTML(ctx, chapterURL)
	if err != nil {
		return nil, err
	}
	images := make([]scraper.ChapterImage, 0)
	m := readerPayload.FindSubmatch(body)
	if m == nil {
		return images, nil
	}
	var payload struct {
		Sources []struct {
			Images []string `json:"images"`
		} `json:"sources"`
	}
	if err := json.Unmarshal(m[1], &payload); err != nil || len(payload.Sources) == 0 {
		return images, nil
	}
	for i, u := range payload.Sources[0].Images {
		images = append(images, scraper.ChapterImage{URL: u, Page: i + 1})
	}
	return images, nil
}
