package scraper

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChapterNumberFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want float64
	}{
		{"https://asuracomic.net/series/foo/chapter/12", 12},
		{"https://asuracomic.net/series/foo/chapter/12-5", 12.5},
		{"https://asuracomic.net/series/foo/chapter/12.5", 12.5},
		{"https://asuracomic.net/series/foo/chapter/12-0", 12},
		{"https://www.novelcool.com/chapter/Foo-Chapter-7/1234/", 7},
		{"https://example.com/manga/foo-chapter-3", 3},
		{"https://example.com/read/ch-44", 44},
		{"https://example.com/series/foo", NoChapter},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, ChapterNumberFromURL(tt.url), tt.url)
	}
}

func TestSubChapterUsesTenths(t *testing.T) {
	t.Parallel()

	got := ChapterNumberFromURL("https://example.com/series/x/chapter/12-5")
	require.Equal(t, 12.5, got)
	require.NotEqual(t, 12.05, got)
	require.NotEqual(t, 125.0, got)
}

func TestChapterNumberFromText(t *testing.T) {
	t.Parallel()

	require.Equal(t, 12.5, ChapterNumberFromText("Chapter 12.5"))
	require.Equal(t, 7.0, ChapterNumberFromText("  chapter7 - The Return"))
	require.Equal(t, 3.0, ChapterNumberFromText("Ch. 3"))
	require.Equal(t, 41.0, ChapterNumberFromText("41"))
	require.Equal(t, NoChapter, ChapterNumberFromText("Prologue"))
}

func TestCanonicalChapterNumber_Priority(t *testing.T) {
	t.Parallel()

	require.Equal(t, 9.0, CanonicalChapterNumber(Fragment{Attr: "9", Text: "Chapter 10", URL: "/chapter/11"}))
	require.Equal(t, 10.0, CanonicalChapterNumber(Fragment{Attr: "x", Text: "Chapter 10", URL: "/chapter/11"}))
	require.Equal(t, 11.0, CanonicalChapterNumber(Fragment{Attr: "-2", Text: "Extra", URL: "/chapter/11"}))
	require.Equal(t, NoChapter, CanonicalChapterNumber(Fragment{Text: "Notice"}))
}

func TestChapterSet_FirstOccurrenceWins(t *testing.T) {
	t.Parallel()

	set := NewChapterSet(4)
	require.True(t, set.Add(Chapter{ID: "a", Number: 2, URL: "first"}))
	require.False(t, set.Add(Chapter{ID: "b", Number: 2, URL: "second"}))
	require.False(t, set.Add(Chapter{ID: "c", Number: NoChapter}))
	require.True(t, set.Add(Chapter{ID: "d", Number: 1}))

	sorted := set.Sorted()
	require.Len(t, sorted, 2)
	require.Equal(t, 1.0, sorted[0].Number)
	require.Equal(t, "first", sorted[1].URL)
}

func TestNormalizeChapters_OrderIndependent(t *testing.T) {
	t.Parallel()

	base := []Chapter{
		{ID: "1", Number: 1},
		{ID: "2", Number: 2},
		{ID: "2.5", Number: 2.5},
		{ID: "3", Number: 3},
		{ID: "10", Number: 10},
	}
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]Chapter(nil), base...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := NormalizeChapters(shuffled)
		require.Len(t, got, len(base))
		for j := range got {
			require.Equal(t, base[j].Number, got[j].Number)
		}
	}
}

func TestNormalizeChapters_Idempotent(t *testing.T) {
	t.Parallel()

	in := []Chapter{{Number: 3, URL: "x"}, {Number: 1}, {Number: 3, URL: "y"}, {Number: -1}}
	once := NormalizeChapters(in)
	twice := NormalizeChapters(once)
	require.Equal(t, once, twice)
	require.Equal(t, "x", once[1].URL)
}

func TestFormatChapterNumber(t *testing.T) {
	t.Parallel()

	require.Equal(t, "12", FormatChapterNumber(12))
	require.Equal(t, "12.5", FormatChapterNumber(12.5))
}
