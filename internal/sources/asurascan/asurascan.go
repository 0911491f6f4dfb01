// Package asurascan scrapes AsuraScan, a scanlator whose chapter URLs carry
// the chapter number with an optional tenths suffix ("/chapter/12-5").
package asurascan

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/notaspider/comick-source-api/internal/retrieval"
	"github.com/notaspider/comick-source-api/internal/scraper"
	"github.com/notaspider/comick-source-api/internal/sources"
)

const (
	// Name is the display name.
	Name = "AsuraScan"
	// DefaultBaseURL is the live origin.
	DefaultBaseURL = "https://asuracomic.net"
)

const (
	searchCard    = `a[href^="series/"]`
	searchTitle   = `span.block.text-\[13\.3px\].font-bold`
	searchChapter = `span.text-\[13px\].text-\[\#999\]`
	chapterLink   = `a[href*="/chapter/"]`
	// SVG ids are matched instead of tag names: the HTML parser keeps
	// camel-cased SVG element names, which tag selectors never match.
	premiumMarker = `#clip0_568_418, circle[fill="#913FE2"]`
)

var (
	searchSlug    = regexp.MustCompile(`series/([^/?]+)`)
	seriesSlug    = regexp.MustCompile(`/series/([^/?]+)`)
	latestPattern = regexp.MustCompile(`(?i)Chapter\s+([\d.]+)`)
)

// Scraper implements scraper.Adapter for AsuraScan.
type Scraper struct {
	*sources.Base
}

// New builds the adapter. AsuraScan is usually reachable directly, so it
// keeps the direct-then-proxy default.
func New(client *retrieval.Client, opts ...sources.Option) *Scraper {
	desc := scraper.NewDescriptor(Name, DefaultBaseURL, scraper.SourceTypeScanlator)
	return &Scraper{Base: sources.NewBase(desc, client, retrieval.DirectThenProxy{}, opts...)}
}

// Search queries the series listing.
func (s *Scraper) Search(ctx context.Context, query string) ([]scraper.SearchResult, error) {
	doc, err := s.Document(ctx, s.Endpoint("/series", url.Values{"page": {"1"}, "name": {query}}))
	if err != nil {
		return nil, err
	}

	results := make([]scraper.SearchResult, 0)
	doc.Find(searchCard).Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Attr("href")
		if !ok {
			return
		}
		title := strings.TrimSpace(card.Find(searchTitle).First().Text())
		if title == "" {
			return
		}
		var id string
		if m := searchSlug.FindStringSubmatch(href); m != nil {
			id = m[1]
		}
		var latest float64
		if m := latestPattern.FindStringSubmatch(card.Find(searchChapter).First().Text()); m != nil {
			latest, _ = strconv.ParseFloat(strings.TrimRight(m[1], "."), 64)
		}
		results = append(results, scraper.SearchResult{
			ID:            id,
			Title:         title,
			URL:           s.Absolute(href),
			CoverImage:    s.Absolute(sources.ImageSource(card.Find("img").First())),
			LatestChapter: latest,
		})
	})
	return results, nil
}

// ExtractInfo reads the series title and slug.
func (s *Scraper) ExtractInfo(ctx context.Context, rawURL string) (scraper.SeriesInfo, error) {
	doc, err := s.Document(ctx, rawURL)
	if err != nil {
		return scraper.SeriesInfo{}, err
	}
	title := sources.FirstText(doc.Selection, "h1", "h2", "h3")
	if title == "" {
		title = sources.TitleFromPage(doc, " - ")
		if i := strings.Index(title, "|"); i >= 0 {
			title = strings.TrimSpace(title[:i])
		}
	}
	id := s.FallbackID()
	if m := seriesSlug.FindStringSubmatch(rawURL); m != nil {
		id = m[1]
	}
	return scraper.SeriesInfo{Title: title, ID: id}, nil
}

// ChapterList returns the free chapters of a series. Premium chapters are
// rendered with a lock icon and skipped.
func (s *Scraper) ChapterList(ctx context.Context, seriesURL string) ([]scraper.Chapter, error) {
	doc, err := s.Document(ctx, seriesURL)
	if err != nil {
		return nil, err
	}

	links := doc.Find(chapterLink)
	set := scraper.NewChapterSet(links.Length())
	links.Each(func(_ int, link *goquery.Selection) {
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if href == "" || link.Find(premiumMarker).Length() > 0 {
			return
		}
		full := s.chapterURL(href)
		n := scraper.ChapterNumberFromURL(full)
		set.Add(scraper.Chapter{
			ID:     scraper.FormatChapterNumber(n),
			Number: n,
			Title:  strings.TrimSpace(link.Find("h3").First().Text()),
			URL:    full,
		})
	})
	return set.Sorted(), nil
}

// Relative chapter links are relative to /series/.
func (s *Scraper) chapterURL(href string) string {
	if strings.HasPrefix(href, "http") || strings.HasPrefix(href, "/") {
		return s.Absolute(href)
	}
	return s.BaseURL() + "/series/" + href
}
