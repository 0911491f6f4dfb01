package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchError_MessageAndUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := &FetchError{
		URL:        "https://a.example/x",
		Stage:      StageProxy,
		Kind:       KindHTTPStatus,
		StatusCode: 503,
		Err:        cause,
	}

	require.Equal(t, "proxy stage failed (http_status_failure) status 503 for https://a.example/x: connection refused", err.Error())
	require.ErrorIs(t, err, cause)

	var fe *FetchError
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &fe)
	require.Equal(t, StageProxy, fe.Stage)
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, ErrorKind(""), KindOf(nil))
	require.Equal(t, KindBotWall, KindOf(&FetchError{Kind: KindBotWall}))
	require.Equal(t, KindTimeout, KindOf(fmt.Errorf("probe: %w", context.DeadlineExceeded)))
	require.Equal(t, KindNotFound, KindOf(fmt.Errorf("x: %w", ErrNotFound)))
	require.Equal(t, KindParse, KindOf(NewParseError("AsuraScan", "missing title")))
	require.Equal(t, KindUnknown, KindOf(errors.New("boom")))
}

func TestWrapSource(t *testing.T) {
	t.Parallel()

	require.NoError(t, WrapSource("A", nil))

	inner := &FetchError{Kind: KindNetwork, Stage: StageDirect}
	err := WrapSource("MangaKatana", inner)
	var se *SourceError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "MangaKatana", se.Source)
	require.Equal(t, KindNetwork, se.Kind)
	require.Same(t, err, WrapSource("Other", err))
}
