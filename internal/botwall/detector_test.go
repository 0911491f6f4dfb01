package botwall

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsChallenge_WaitingTitleAndCheckingHeading(t *testing.T) {
	t.Parallel()

	html := `<html>
  <head><title>Just a moment...</title></head>
  <body>
    <h1>Checking your browser before accessing the website.</h1>
    <p>This process is automatic. Your browser will redirect to your requested content shortly.</p>
    <div id="cf-chl-bypass"></div>
  </body>
</html>`
	require.True(t, IsChallenge([]byte(html)))
}

func TestIsChallenge_DDoSProtectionTitle(t *testing.T) {
	t.Parallel()

	html := `<html>
  <head><title>DDoS protection by Cloudflare</title></head>
  <body><h1>Please enable JavaScript and cookies to continue</h1></body>
</html>`
	require.True(t, IsChallenge([]byte(html)))
}

func TestIsChallenge_AttentionRequiredWithContainer(t *testing.T) {
	t.Parallel()

	html := `<html>
  <body>
    <h1>Attention Required! | Cloudflare</h1>
    <div class="challenge-platform">
      <p>Please complete the security check to access the website</p>
    </div>
  </body>
</html>`
	require.True(t, IsChallenge([]byte(html)))
}

func TestIsChallenge_NormalChapterPage(t *testing.T) {
	t.Parallel()

	html := `<html>
  <head><title>Solo Leveling - Chapter 1</title></head>
  <body>
    <h1>Solo Leveling</h1>
    <div class="chapter-list"><a href="/chapter-1">Chapter 1</a></div>
  </body>
</html>`
	require.False(t, IsChallenge([]byte(html)))
}

func TestIsChallenge_ProviderMentionedInProse(t *testing.T) {
	t.Parallel()

	html := `<html>
  <head><title>My Website</title></head>
  <body>
    <h1>Welcome</h1>
    <p>This site is protected by various services, but is currently accessible.</p>
    <p>Checking your browser is never required here. Attention required: none.</p>
    <div class="content">Normal content here</div>
  </body>
</html>`
	require.False(t, IsChallenge([]byte(html)))
}

func TestIsChallenge_HeadingMarkerNeedsSecondSignal(t *testing.T) {
	t.Parallel()

	lone := `<html><head><title>Checking your browser</title></head><body><p>hi</p></body></html>`
	require.False(t, IsChallenge([]byte(lone)))

	withScript := `<html><head><title>Checking your browser</title>
<script src="/cdn-cgi/challenge-platform/h/b/orchestrate/jsch/v1"></script></head><body></body></html>`
	require.True(t, IsChallenge([]byte(withScript)))
}

func TestIsChallenge_SeriesTitleWithMarkerPhrase(t *testing.T) {
	t.Parallel()

	html := `<html>
  <head><title>Just a Moment - Chapter 5</title></head>
  <body><h1>Just a Moment</h1><div class="chapter-list"><a href="/chapter-5">Chapter 5</a></div></body>
</html>`
	require.False(t, IsChallenge([]byte(html)))

	branded := `<html><head><title>Just a moment... | Cloudflare</title></head><body></body></html>`
	require.True(t, IsChallenge([]byte(branded)))
}

func TestIsChallenge_EmptyBody(t *testing.T) {
	t.Parallel()

	require.False(t, IsChallenge(nil))
	require.False(t, IsChallenge([]byte("   ")))
}

func TestDetector_CustomMarkers(t *testing.T) {
	t.Parallel()

	d := New(Config{
		HeadingMarkers:     []string{"Verifying you are human"},
		ContainerSelectors: []string{"#ddg-challenge"},
	})
	html := `<html><head><title>Verifying you are human</title></head><body><div id="ddg-challenge"></div></body></html>`
	require.True(t, d.IsChallenge([]byte(html)))
	require.False(t, IsChallenge([]byte(html)))
}
