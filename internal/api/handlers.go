package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/notaspider/comick-source-api/internal/config"
	"github.com/notaspider/comick-source-api/internal/retrieval"
	"github.com/notaspider/comick-source-api/internal/scraper"
	"github.com/notaspider/comick-source-api/internal/search"
)

const (
	msgQueryRequired = "Search query is required"
	msgURLRequired   = "URL is required"
	msgNoScraper     = "No scraper found for this URL. Please provide a valid chapter URL or source name."
	msgInvalidJSON   = "Invalid JSON body"

	defaultHistoryLimit = 50
)

type searchRequest struct {
	Query  string `json:"query"`
	Source string `json:"source"`
}

type urlRequest struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

type pagesResponse struct {
	Images     []scraper.ChapterImage `json:"images"`
	Source     string                 `json:"source"`
	TotalPages int                    `json:"totalPages"`
}

type chaptersResponse struct {
	Chapters []scraper.Chapter `json:"chapters"`
	Source   string            `json:"source"`
	Total    int               `json:"total"`
}

type infoResponse struct {
	scraper.SeriesInfo
	Source string `json:"source"`
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	s.health(w, r, false)
}

func (s *Server) refreshHealth(w http.ResponseWriter, r *http.Request) {
	s.health(w, r, true)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request, force bool) {
	report, err := s.deps.Health.Check(r.Context(), force)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) healthHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusNotFound, "Health history is not enabled")
		return
	}
	adapter, err := s.deps.Registry.ResolveByName(chi.URLParam(r, "source"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown source")
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	id := adapter.Descriptor().SourceID
	entries, err := s.deps.History.History(r.Context(), id, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": id, "entries": entries})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, msgQueryRequired)
		return
	}

	ctx := r.Context()
	if timeout := config.Seconds(s.cfg.Search.TimeoutSeconds); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if search.IsAll(req.Source) {
		results, err := s.deps.Search.SearchAll(ctx, req.Query)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sources": results})
		return
	}

	result, err := s.deps.Search.SearchOne(ctx, req.Source, req.Query)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// resolve picks the adapter by explicit source name. An unknown name falls
// back to the adapter that handles the URL.
func (s *Server) resolve(req urlRequest) (scraper.Adapter, error) {
	if name := strings.TrimSpace(req.Source); name != "" {
		adapter, err := s.deps.Registry.ResolveByName(name)
		if err == nil {
			return adapter, nil
		}
		if !errors.Is(err, scraper.ErrNotFound) {
			return nil, err
		}
	}
	return s.deps.Registry.ResolveByURL(req.URL)
}

// decodeURLRequest reads a {url, source?} body and resolves its adapter. It
// writes the error response itself and returns false on failure.
func (s *Server) decodeURLRequest(w http.ResponseWriter, r *http.Request) (urlRequest, scraper.Adapter, bool) {
	var req urlRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return req, nil, false
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, msgURLRequired)
		return req, nil, false
	}
	adapter, err := s.resolve(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgNoScraper)
		return req, nil, false
	}
	return req, adapter, true
}

func (s *Server) pages(w http.ResponseWriter, r *http.Request) {
	req, adapter, ok := s.decodeURLRequest(w, r)
	if !ok {
		return
	}
	provider, ok := scraper.SupportsImages(adapter)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s does not support fetching chapter images", adapter.Name()))
		return
	}
	images, err := provider.ChapterImages(r.Context(), req.URL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if images == nil {
		images = []scraper.ChapterImage{}
	}
	writeJSON(w, http.StatusOK, pagesResponse{Images: images, Source: adapter.Name(), TotalPages: len(images)})
}

func (s *Server) chapters(w http.ResponseWriter, r *http.Request) {
	req, adapter, ok := s.decodeURLRequest(w, r)
	if !ok {
		return
	}
	chapters, err := adapter.ChapterList(r.Context(), req.URL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if chapters == nil {
		chapters = []scraper.Chapter{}
	}
	writeJSON(w, http.StatusOK, chaptersResponse{Chapters: chapters, Source: adapter.Name(), Total: len(chapters)})
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	req, adapter, ok := s.decodeURLRequest(w, r)
	if !ok {
		return
	}
	info, err := adapter.ExtractInfo(r.Context(), req.URL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, infoResponse{SeriesInfo: info, Source: adapter.Name()})
}

func (s *Server) sources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sources": s.deps.Registry.Descriptors()})
}

// proxyHTML fetches a page of a registered source and relays its HTML. It
// only serves URLs some adapter handles, so it is not an open proxy.
func (s *Server) proxyHTML(w http.ResponseWriter, r *http.Request) {
	if s.deps.Proxy == nil {
		writeError(w, http.StatusNotFound, "HTML proxy is not enabled")
		return
	}
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		writeError(w, http.StatusBadRequest, "URL parameter is required")
		return
	}
	if _, err := s.deps.Registry.ResolveByURL(target); err != nil {
		writeError(w, http.StatusForbidden, "URL is not served by any registered source")
		return
	}

	resp, err := s.deps.Proxy.Fetch(r.Context(), retrieval.Request{
		URL:     target,
		Headers: http.Header{"Accept": {retrieval.AcceptHTML}},
	})
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, r.Context().Err()) || scraper.KindOf(err) == scraper.KindTimeout {
			status = http.StatusGatewayTimeout
		}
		s.logger.Warn("proxy fetch failed", zap.String("url", target), zap.Error(err))
		writeError(w, status, fmt.Sprintf("Failed to fetch: %v", err))
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		writeError(w, resp.StatusCode, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Body)
}
