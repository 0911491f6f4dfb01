// Package novelcool scrapes NovelCool. The site refuses direct access, so
// every request goes through the proxy stage.
package novelcool

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notaspider/comick-source-api/internal/retrieval"
	"github.com/notaspider/comick-source-api/internal/scraper"
	"github.com/notaspider/comick-source-api/internal/sources"
)

const (
	// Name is the display name.
	Name = "NovelCool"
	// DefaultBaseURL is the live origin.
	DefaultBaseURL = "https://www.novelcool.com"

	enrichConcurrency = 4
	pageImage         = ".mangaread-img img, #manga_picid_1"
)

var (
	novelID         = regexp.MustCompile(`/novel/([^/]+)\.html`)
	chapterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)/Chapter[/-](\d+(?:\.\d+)?)/`),
		regexp.MustCompile(`(?i)/chapter/Chapter[/-](\d+(?:\.\d+)?)/`),
	}
)

// Scraper implements scraper.Adapter and scraper.ImageProvider.
type Scraper struct {
	*sources.Base
}

// New builds the adapter with the proxy-only strategy.
func New(client *retrieval.Client, opts ...sources.Option) *Scraper {
	desc := scraper.NewDescriptor(Name, DefaultBaseURL, scraper.SourceTypeAggregator)
	return &Scraper{Base: sources.NewBase(desc, client, retrieval.ProxyOnly{}, opts...)}
}

func chapterNumber(rawURL string) float64 {
	for _, re := range chapterPatterns {
		if m := re.FindStringSubmatch(rawURL); m != nil {
			if n, err := strconv.ParseFloat(m[1], 64); err == nil {
				return n
			}
		}
	}
	return scraper.ChapterNumberFromURL(rawURL)
}

// ChapterList reads the chapter links; numbers come from their URLs.
func (s *Scraper) ChapterList(ctx context.Context, seriesURL string) ([]scraper.Chapter, error) {
	doc, err := s.Document(ctx, seriesURL)
	if err != nil {
		return nil, err
	}
	links := doc.Find("div.chp-item a")
	set := scraper.NewChapterSet(links.Length())
	links.Each(func(_ int, link *goquery.Selection) {
		href := link.AttrOr("href", "")
		if href == "" {
			return
		}
		full := s.Absolute(href)
		n := chapterNumber(full)
		set.Add(scraper.Chapter{
			ID:     scraper.FormatChapterNumber(n),
			Number: n,
			Title:  strings.TrimSpace(link.Find("span.chapter-item-headtitle").Text()),
			URL:    full,
		})
	})
	return set.Sorted(), nil
}

// ExtractInfo reads the book name and the novel id.
func (s *Scraper) ExtractInfo(ctx context.Context, rawURL string) (scraper.SeriesInfo, error) {
	doc, err := s.Document(ctx, rawURL)
	if err != nil {
		return scraper.SeriesInfo{}, err
	}
	title := sources.FirstText(doc.Selection, `div.book-name[itemprop="name"]`, "h1")
	if title == "" {
		title = sources.TitleFromPage(doc, " - ")
	}
	id := s.FallbackID()
	if m := novelID.FindStringSubmatch(rawURL); m != nil {
		id = m[1]
	}
	return scraper.SeriesInfo{Title: title, ID: id}, nil
}

// Search lists matching books and fetches each chapter list concurrently to
// report the latest chapter. A failed chapter fetch leaves it at zero.
func (s *Scraper) Search(ctx context.Context, query string) ([]scraper.SearchResult, error) {
	doc, err := s.Document(ctx, s.Endpoint("/search", url.Values{"name": {query}}))
	if err != nil {
		return nil, err
	}

	results := make([]scraper.SearchResult, 0)
	doc.Find("div.book-item").Each(func(_ int, item *goquery.Selection) {
		href := item.Find(`a[href*="/novel/"]`).First().AttrOr("href", "")
		if href == "" {
			return
		}
		res := scraper.SearchResult{
			Title:       bookName(item.Find(`div.book-name[itemprop="name"]`).First()),
			URL:         s.Absolute(href),
			LastUpdated: strings.TrimSpace(item.Find(`span.book-data-time[itemprop="dateModified"]`).Text()),
		}
		if m := novelID.FindStringSubmatch(href); m != nil {
			res.ID = m[1]
		}
		img := item.Find("img").First()
		cover := strings.TrimSpace(img.AttrOr("src", ""))
		if cover == "" {
			cover = strings.TrimSpace(img.AttrOr("cover_url", ""))
		}
		res.CoverImage = s.Absolute(cover)
		if text := strings.TrimSpace(item.Find(`div.book-rate-num[itemprop="aggregateRating"]`).Text()); text != "" {
			if r, err := strconv.ParseFloat(text, 64); err == nil {
				res.Rating = &r
			}
		}
		results = append(results, res)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i := range results {
		res := &results[i]
		g.Go(func() error {
			chapters, err := s.ChapterList(gctx, res.URL)
			if err != nil {
				s.Logger().Warn("chapter list fetch failed", zap.String("title", res.Title), zap.Error(err))
				return nil
			}
			if n := len(chapters); n > 0 {
				res.LatestChapter = chapters[n-1].Number
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// bookName prefers the element's own text over nested badges.
func bookName(sel *goquery.Selection) string {
	own := strings.TrimSpace(sel.Clone().Children().Remove().End().Text())
	if own != "" {
		return own
	}
	full := strings.TrimSpace(sel.Text())
	if i := strings.Index(full, "\n"); i >= 0 {
		full = full[:i]
	}
	return strings.TrimSpace(full)
}

// SupportsChapterImages reports true.
func (s *Scraper) SupportsChapterImages() bool { return true }

// ChapterImages walks the paged reader: page 1 is the chapter URL and page N
// is "<chapter>-N.html". The walk stops at the first page that fails.
func (s *Scraper) ChapterImages(ctx context.Context, chapterURL string) ([]scraper.ChapterImage, error) {
	doc, err := s.Document(ctx, chapterURL)
	if err != nil {
		return nil, err
	}
	pages := doc.Find("select.sl-page option").Length()
	if pages == 0 {
		pages = 1
	}

	images := make([]scraper.ChapterImage, 0, pages)
	if src := strings.TrimSpace(doc.Find(pageImage).First().AttrOr("src", "")); src != "" {
		images = append(images, scraper.ChapterImage{URL: src, Page: 1})
	}

	stem := strings.TrimSuffix(chapterURL, ".html")
	for page := 2; page <= pages; page++ {
		pageDoc, err := s.Document(ctx, fmt.Sprintf("%s-%d.html", stem, page))
		if err != nil {
			s.Logger().Debug("stopping page walk", zap.Int("page", page), zap.Error(err))
			break
		}
		if src := strings.TrimSpace(pageDoc.Find(pageImage).First().AttrOr("src", "")); src != "" {
			images = append(images, scraper.ChapterImage{URL: src, Page: page})
		}
	}
	return images, nil
}
