package scraper

import (
	"net/http"
	"strings"
	"unicode"
)

// SourceType classifies a content source.
type SourceType string

// Source types reported by adapters.
const (
	SourceTypeScanlator  SourceType = "scanlator"
	SourceTypeAggregator SourceType = "aggregator"
)

// Descriptor identifies one content source. It is immutable after registration.
type Descriptor struct {
	Name     string     `json:"name"`
	SourceID string     `json:"id"`
	BaseURL  string     `json:"baseUrl"`
	Type     SourceType `json:"type"`
}

// NewDescriptor builds a Descriptor, deriving the source id from the name.
func NewDescriptor(name, baseURL string, typ SourceType) Descriptor {
	if typ == "" {
		typ = SourceTypeScanlator
	}
	return Descriptor{
		Name:     name,
		SourceID: SourceIDFromName(name),
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Type:     typ,
	}
}

// SourceIDFromName lower-cases the name and drops everything that is not a
// letter or digit, e.g. "Lua Comic" -> "luacomic".
func SourceIDFromName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SearchResult is one series matched by a source search.
type SearchResult struct {
	ID                   string   `json:"id"`
	Title                string   `json:"title"`
	URL                  string   `json:"url"`
	CoverImage           string   `json:"coverImage,omitempty"`
	LatestChapter        float64  `json:"latestChapter"`
	LastUpdated          string   `json:"lastUpdated"`
	LastUpdatedTimestamp *int64   `json:"lastUpdatedTimestamp,omitempty"`
	Rating               *float64 `json:"rating,omitempty"`
}

// Chapter is a single chapter scraped from a series page. Number may carry a
// tenths sub-part (12.5).
type Chapter struct {
	ID          string  `json:"id"`
	Number      float64 `json:"number"`
	Title       string  `json:"title,omitempty"`
	URL         string  `json:"url"`
	LastUpdated string  `json:"lastUpdated,omitempty"`
}

// ChapterImage is one page image of a chapter. Page is 1-based.
type ChapterImage struct {
	URL  string `json:"url"`
	Page int    `json:"page"`
}

// SeriesInfo is the identity extracted from a series URL.
type SeriesInfo struct {
	Title string `json:"title"`
	ID    string `json:"id"`
}

// ProbeResponse is the raw observation produced by an adapter-defined health probe.
type ProbeResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
}
