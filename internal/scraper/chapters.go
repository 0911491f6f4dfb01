package scraper

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// NoChapter is the sentinel for a fragment that yields no usable number.
const NoChapter = -1.0

var (
	textPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)chapter\s*(\d+(?:\.\d+)?)`),
		regexp.MustCompile(`(?i)\bch\.?\s*(\d+(?:\.\d+)?)`),
		regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*$`),
	}
	urlPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)/chapter/(\d+)(?:[.-](\d+))?`),
		regexp.MustCompile(`(?i)chapter[/-](\d+)(?:[.-](\d+))?/?(?:[?#].*)?$`),
		regexp.MustCompile(`(?i)\bch[-_](\d+)(?:[.-](\d+))?`),
		regexp.MustCompile(`(?i)-chapter-(\d+)(?:[.-](\d+))?`),
	}
)

// Fragment is the raw material a source exposes for one chapter.
type Fragment struct {
	Attr string
	Text string
	URL  string
}

// ParseChapterAttr parses a machine-readable chapter attribute such as data-ch.
func ParseChapterAttr(attr string) float64 {
	attr = strings.TrimSpace(attr)
	if attr == "" {
		return NoChapter
	}
	n, err := strconv.ParseFloat(attr, 64)
	if err != nil || n < 0 {
		return NoChapter
	}
	return n
}

// ChapterNumberFromText reads "Chapter 12.5", "Ch. 7" or a bare number.
func ChapterNumberFromText(text string) float64 {
	for _, re := range textPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if n, err := strconv.ParseFloat(m[1], 64); err == nil && n >= 0 {
			return n
		}
	}
	return NoChapter
}

// ChapterNumberFromURL reads the chapter number embedded in a URL path. A
// secondary group is a tenths sub-chapter: "/chapter/12-5" is 12.5.
func ChapterNumberFromURL(rawURL string) float64 {
	for _, re := range urlPatterns {
		m := re.FindStringSubmatch(rawURL)
		if m == nil {
			continue
		}
		return tenths(m[1], m[2])
	}
	return NoChapter
}

func tenths(main, sub string) float64 {
	n, err := strconv.Atoi(main)
	if err != nil || n < 0 {
		return NoChapter
	}
	if sub == "" {
		return float64(n)
	}
	d, err := strconv.Atoi(sub)
	if err != nil || d <= 0 {
		return float64(n)
	}
	return float64(n) + float64(d)/10
}

// CanonicalChapterNumber applies attribute, then text, then URL heuristics and
// returns the first non-negative result or NoChapter.
func CanonicalChapterNumber(f Fragment) float64 {
	if n := ParseChapterAttr(f.Attr); n >= 0 {
		return n
	}
	if n := ChapterNumberFromText(f.Text); n >= 0 {
		return n
	}
	if n := ChapterNumberFromURL(f.URL); n >= 0 {
		return n
	}
	return NoChapter
}

// ChapterSet accumulates chapters, keeping the first entry per number.
type ChapterSet struct {
	seen     map[float64]struct{}
	chapters []Chapter
}

// NewChapterSet returns an empty set sized for n chapters.
func NewChapterSet(n int) *ChapterSet {
	return &ChapterSet{
		seen:     make(map[float64]struct{}, n),
		chapters: make([]Chapter, 0, n),
	}
}

// Add keeps ch unless its number is negative or already present.
func (s *ChapterSet) Add(ch Chapter) bool {
	if s.seen == nil {
		s.seen = make(map[float64]struct{})
	}
	if ch.Number < 0 {
		return false
	}
	if _, dup := s.seen[ch.Number]; dup {
		return false
	}
	s.seen[ch.Number] = struct{}{}
	s.chapters = append(s.chapters, ch)
	return true
}

// Len reports how many chapters have been kept.
func (s *ChapterSet) Len() int {
	return len(s.chapters)
}

// Sorted returns the kept chapters in ascending number order.
func (s *ChapterSet) Sorted() []Chapter {
	out := make([]Chapter, len(s.chapters))
	copy(out, s.chapters)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// NormalizeChapters drops sentinel numbers and duplicates (first wins) and
// sorts ascending.
func NormalizeChapters(chapters []Chapter) []Chapter {
	set := NewChapterSet(len(chapters))
	for _, ch := range chapters {
		set.Add(ch)
	}
	return set.Sorted()
}

// FormatChapterNumber renders a number without a trailing ".0", for ids.
func FormatChapterNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
