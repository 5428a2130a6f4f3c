// Package server exposes a read-only HTTP surface next to the CLI: health,
// Prometheus metrics, document reads, search and file downloads.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/asaidimu/go-quire/core/persistence"
	"github.com/asaidimu/go-quire/core/query"
	"github.com/asaidimu/go-quire/core/search"
)

// Server serves the HTTP routes over a persistence service.
type Server struct {
	store    persistence.PersistenceInterface
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// New creates a Server. A nil gatherer disables /metrics.
func New(store persistence.PersistenceInterface, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{store: store, gatherer: gatherer, logger: logger}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/collections", s.listCollections)
		r.Get("/collections/{id}", s.getCollection)
		r.Get("/collections/{id}/documents", s.listDocuments)
		r.Get("/documents/{id}", s.getDocument)
		r.Get("/documents/{id}/history", s.documentHistory)
		r.Get("/files/{id}", s.fileContent)
		r.Get("/search", s.search)
	})
	return r
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.store.ListCollections(r.Context())
	s.respond(w, cols, err)
}

func (s *Server) getCollection(w http.ResponseWriter, r *http.Request) {
	col, err := s.store.GetCollection(r.Context(), chi.URLParam(r, "id"))
	s.respond(w, col, err)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := persistence.ListOptions{
		SortBy:     q.Get("sort"),
		Descending: q.Get("order") == "desc",
		Offset:     atoi(q.Get("offset")),
		Limit:      atoi(q.Get("limit")),
	}
	if raw := q.Get("filter"); raw != "" {
		f, err := query.ParseFilter([]byte(raw))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		opts.Filter = f
	}
	docs, err := s.store.ListDocuments(r.Context(), chi.URLParam(r, "id"), opts)
	s.respond(w, docs, err)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	s.respond(w, doc, err)
}

func (s *Server) documentHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.store.DocumentHistory(r.Context(), chi.URLParam(r, "id"))
	s.respond(w, history, err)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hits, err := s.store.Search(r.Context(), q.Get("q"), search.Options{
		Scope: q.Get("collection"),
		Limit: atoi(q.Get("limit")),
	})
	s.respond(w, hits, err)
}

func (s *Server) fileContent(w http.ResponseWriter, r *http.Request) {
	rec, data, err := s.store.FileContent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", rec.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": rec.Name}))
	_, _ = w.Write(data)
}

func (s *Server) respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encoding response failed", zap.Error(err))
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, persistence.ErrValidation):
		status = http.StatusBadRequest
	default:
		s.logger.Error("request failed", zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
