package scraper

import (
	"context"
	"time"
)

// Adapter is the uniform contract implemented by every content source.
type Adapter interface {
	Descriptor() Descriptor
	Name() string
	BaseURL() string
	Type() SourceType

	// CanHandle reports whether the URL syntactically belongs to this source.
	CanHandle(rawURL string) bool

	// Search returns fully parsed results only; entries that fail to parse are omitted.
	Search(ctx context.Context, query string) ([]SearchResult, error)

	// ChapterList returns chapters de-duplicated by number and sorted ascending.
	ChapterList(ctx context.Context, seriesURL string) ([]Chapter, error)

	ExtractInfo(ctx context.Context, rawURL string) (SeriesInfo, error)
}

// ImageProvider is the optional chapter-image capability.
type ImageProvider interface {
	SupportsChapterImages() bool
	ChapterImages(ctx context.Context, chapterURL string) ([]ChapterImage, error)
}

// HealthChecker lets an adapter define its own lightweight liveness probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (ProbeResponse, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SupportsImages reports whether the adapter exposes chapter images.
func SupportsImages(a Adapter) (ImageProvider, bool) {
	p, ok := a.(ImageProvider)
	if !ok || !p.SupportsChapterImages() {
		return nil, false
	}
	return p, true
}
