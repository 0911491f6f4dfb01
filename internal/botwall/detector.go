// Package botwall recognises anti-automation challenge pages ("checking your
// browser", "Attention Required") so callers can treat a 2xx response that
// carries one as a failure.
package botwall

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var defaultHeadingMarkers = []string{
	"just a moment",
	"checking your browser",
	"attention required",
	"ddos protection by",
	"please enable javascript and cookies",
	"please complete the security check",
}

var defaultContainerSelectors = []string{
	"#cf-chl-bypass",
	"#challenge-form",
	"#cf-challenge-running",
	".challenge-platform",
	"#cf-wrapper",
	"[id^='cf-chl']",
	"script[src*='/cdn-cgi/challenge-platform/']",
}

// defaultBrandingPhrases name protection providers. None of them may overlap a
// heading marker, otherwise a single marker would count as two signals.
var defaultBrandingPhrases = []string{
	"cloudflare",
	"ddos-guard",
	"sucuri",
}

// Config adds site-specific markers on top of the built-in ones.
type Config struct {
	HeadingMarkers     []string
	ContainerSelectors []string
	BrandingPhrases    []string
}

// Detector classifies HTML payloads. It is stateless and safe for concurrent use.
type Detector struct {
	headingMarkers []string
	selector       string
	branding       []string
}

// New returns a Detector using the built-in markers plus any in cfg.
func New(cfg Config) *Detector {
	return &Detector{
		headingMarkers: lowerAll(defaultHeadingMarkers, cfg.HeadingMarkers),
		selector:       strings.Join(append(append([]string{}, defaultContainerSelectors...), cfg.ContainerSelectors...), ", "),
		branding:       lowerAll(defaultBrandingPhrases, cfg.BrandingPhrases),
	}
}

// Default is a Detector with only the built-in markers.
var Default = New(Config{})

// IsChallenge reports whether body is a challenge page. A challenge needs a
// waiting/checking marker in the title or a top-level heading, backed by a
// second signal: a challenge container, a provider name in the same heading,
// or a second, different heading marker. Marker text in ordinary body copy is ignored.
func (d *Detector) IsChallenge(body []byte) bool {
	if len(bytes.TrimSpace(body)) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}

	seen := make(map[string]struct{}, 2)
	branded := false
	doc.Find("title, h1, h2").Each(func(_ int, s *goquery.Selection) {
		text := strings.ToLower(strings.TrimSpace(s.Text()))
		if text == "" {
			return
		}
		matched := false
		for _, m := range d.headingMarkers {
			if strings.Contains(text, m) {
				seen[m] = struct{}{}
				matched = true
			}
		}
		if !matched {
			return
		}
		for _, b := range d.branding {
			if strings.Contains(text, b) {
				branded = true
				break
			}
		}
	})
	if len(seen) == 0 {
		return false
	}
	if branded || len(seen) >= 2 {
		return true
	}
	return doc.Find(d.selector).Length() > 0
}

// IsChallenge classifies body with the default Detector.
func IsChallenge(body []byte) bool {
	return Default.IsChallenge(body)
}

func lowerAll(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	for _, s := range base {
		out = append(out, strings.ToLower(s))
	}
	for _, s := range extra {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
