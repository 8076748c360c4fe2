// Package api exposes indexing control, statistics and search over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/deidaraiorek/sitesearch/internal/scheduler"
	"github.com/deidaraiorek/sitesearch/internal/search"
	"github.com/deidaraiorek/sitesearch/internal/statistics"
)

type Indexing interface {
	StartAll(ctx context.Context) error
	Stop(ctx context.Context) error
	IndexPage(ctx context.Context, url string) error
}

type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Results, error)
}

type Statistics interface {
	Statistics(ctx context.Context) (*statistics.Report, error)
}

type Server struct {
	indexing Indexing
	searcher Searcher
	stats    Statistics
	logger   *slog.Logger
}

func NewServer(indexing Indexing, searcher Searcher, stats Statistics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		indexing: indexing,
		searcher: searcher,
		stats:    stats,
		logger:   logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/statistics", s.handleStatistics)
		r.Get("/startIndexing", s.handleStartIndexing)
		r.Get("/stopIndexing", s.handleStopIndexing)
		r.Post("/indexPage", s.handleIndexPage)
		r.Get("/search", s.handleSearch)
	})
	return r
}

type response struct {
	Result     bool               `json:"result"`
	Error      string             `json:"error,omitempty"`
	Statistics *statistics.Report `json:"statistics,omitempty"`
}

type searchResponse struct {
	Result bool            `json:"result"`
	Count  int             `json:"count"`
	Error  string          `json:"error,omitempty"`
	Data   []search.Result `json:"data"`
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	report, err := s.stats.Statistics(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Result: true, Statistics: report})
}

func (s *Server) handleStartIndexing(w http.ResponseWriter, r *http.Request) {
	err := s.indexing.StartAll(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		writeJSON(w, http.StatusOK, response{Result: false, Error: err.Error()})
	case err != nil:
		s.internalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, response{Result: true})
	}
}

func (s *Server) handleStopIndexing(w http.ResponseWriter, r *http.Request) {
	err := s.indexing.Stop(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrNotRunning):
		writeJSON(w, http.StatusOK, response{Result: false, Error: err.Error()})
	case err != nil:
		s.internalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, response{Result: true})
	}
}

func (s *Server) handleIndexPage(w http.ResponseWriter, r *http.Request) {
	url := strings.TrimSpace(r.FormValue("url"))
	if url == "" {
		writeJSON(w, http.StatusBadRequest, response{Result: false, Error: "url parameter is required"})
		return
	}

	err := s.indexing.IndexPage(r.Context(), url)
	switch {
	case errors.Is(err, scheduler.ErrOutsideSites):
		writeJSON(w, http.StatusOK, response{Result: false, Error: err.Error()})
	case err != nil:
		s.logger.Warn("index page failed", "url", url, "err", err)
		writeJSON(w, http.StatusOK, response{Result: false, Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, response{Result: true})
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	offset, err := intParam(params.Get("offset"), 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Result: false, Error: "invalid offset"})
		return
	}
	limit, err := intParam(params.Get("limit"), 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Result: false, Error: "invalid limit"})
		return
	}

	results, err := s.searcher.Search(r.Context(), search.Query{
		Text:   params.Get("query"),
		Site:   params.Get("site"),
		Offset: offset,
		Limit:  limit,
	})

	var notFound *search.NotFoundError
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		writeJSON(w, http.StatusBadRequest, response{Result: false, Error: err.Error()})
	case errors.As(err, &notFound):
		// Clients expect one blank row when nothing is found.
		writeJSON(w, http.StatusOK, searchResponse{
			Result: true,
			Count:  0,
			Error:  notFound.Reason,
			Data:   []search.Result{{}},
		})
	case err != nil:
		s.internalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, searchResponse{Result: true, Count: results.Count, Data: results.Data})
	}
}

// intParam parses a non-negative integer, returning def for an empty value.
func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative value")
	}
	return n, nil
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
	writeJSON(w, http.StatusInternalServerError, response{Result: false, Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start).Round(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()),
			"remote", r.RemoteAddr,
		)
	})
}
