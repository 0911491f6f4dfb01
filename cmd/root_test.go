package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notaspider/comick-source-api/internal/api"
	"github.com/notaspider/comick-source-api/internal/health"
	"github.com/notaspider/comick-source-api/internal/scraper"
	"github.com/notaspider/comick-source-api/internal/search"
)

type fakeHealth struct{ force bool }

func (f *fakeHealth) Check(_ context.Context, force bool) (health.Report, error) {
	f.force = force
	return health.Report{Sources: map[string]health.Result{
		"asurascan": {Status: health.StatusHealthy, Message: "Source is accessible"},
	}}, nil
}

type fakeSearch struct {
	source, query string
}

func (f *fakeSearch) SearchOne(_ context.Context, source, query string) (search.SingleResult, error) {
	f.source, f.query = source, query
	return search.SingleResult{Source: "AsuraScan", Results: []scraper.SearchResult{{ID: "1", Title: query}}}, nil
}

func (f *fakeSearch) SearchAll(_ context.Context, query string) ([]search.SourceResults, error) {
	f.query = query
	return []search.SourceResults{{Source: "AsuraScan", Results: []scraper.SearchResult{}}}, nil
}

type fakeApp struct {
	health *fakeHealth
	search *fakeSearch
	ran    bool
	closed bool
}

func (a *fakeApp) Run(context.Context) error { a.ran = true; return nil }
func (a *fakeApp) Close(context.Context)     { a.closed = true }
func (a *fakeApp) Descriptors() []scraper.Descriptor {
	return []scraper.Descriptor{scraper.NewDescriptor("AsuraScan", "https://asuracomic.net", scraper.SourceTypeScanlator)}
}
func (a *fakeApp) Health() api.HealthService { return a.health }
func (a *fakeApp) Search() api.Searcher      { return a.search }
func (a *fakeApp) Logger() *zap.Logger       { return zap.NewNop() }

// withFakeApp swaps the application factory. Tests using it cannot run in parallel.
func withFakeApp(t *testing.T) *fakeApp {
	t.Helper()
	app := &fakeApp{health: &fakeHealth{}, search: &fakeSearch{}}
	orig := newApp
	newApp = func(context.Context, string) (App, error) { return app, nil }
	t.Cleanup(func() { newApp = orig })
	return app
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSourcesCommandPrintsDescriptors(t *testing.T) {
	app := withFakeApp(t)

	out, err := execute(t, "sources")
	require.NoError(t, err)
	require.True(t, app.closed)

	var got struct {
		Sources []scraper.Descriptor `json:"sources"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Sources, 1)
	require.Equal(t, "asurascan", got.Sources[0].SourceID)
}

func TestHealthCommandRefreshFlag(t *testing.T) {
	app := withFakeApp(t)

	out, err := execute(t, "health")
	require.NoError(t, err)
	require.True(t, app.health.force)
	require.Contains(t, out, `"healthy"`)

	_, err = execute(t, "health", "--refresh=false")
	require.NoError(t, err)
	require.False(t, app.health.force)
}

func TestSearchCommandRoutesBySource(t *testing.T) {
	app := withFakeApp(t)

	out, err := execute(t, "search", "solo", "leveling")
	require.NoError(t, err)
	require.Equal(t, "solo leveling", app.search.query)
	require.Contains(t, out, `"sources"`)

	out, err = execute(t, "search", "--source", "asurascan", "omniscient")
	require.NoError(t, err)
	require.Equal(t, "asurascan", app.search.source)
	require.Contains(t, out, `"omniscient"`)

	_, err = execute(t, "search")
	require.Error(t, err)
}

func TestServeCommandRunsApp(t *testing.T) {
	app := withFakeApp(t)

	_, err := execute(t, "serve")
	require.NoError(t, err)
	require.True(t, app.ran)
}

func TestFactoryFailureAbortsCommand(t *testing.T) {
	orig := newApp
	newApp = func(context.Context, string) (App, error) { return nil, errors.New("boom") }
	t.Cleanup(func() { newApp = orig })

	_, err := execute(t, "sources")
	require.ErrorContains(t, err, "failed to initialize application services: boom")
}
