package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/news-search/backend/internal/config"
	"github.com/DeafMist/news-search/backend/internal/elasticsearch"
	"github.com/DeafMist/news-search/backend/internal/metrics"
	"github.com/DeafMist/news-search/backend/internal/migration"
	"github.com/DeafMist/news-search/backend/internal/models"
)

const (
	maxBodyBytes = 1 << 20
	searchFrom   = 0
	searchSize   = 10
	sampleUser   = "kimchy"
)

var sampleOrderIDs = []string{"1", "2"}

type searchEngine interface {
	ClusterHealth(ctx context.Context) (string, error)
	IndexDocument(ctx context.Context, index, id string, doc any) (string, error)
	GetDocument(ctx context.Context, index, id string, out any) error
	UpdateDocument(ctx context.Context, index, id string, partial any) error
	DeleteDocument(ctx context.Context, index, id string) error
	Search(ctx context.Context, index string, body map[string]any) (*elasticsearch.SearchResponse, error)
	CreateIndex(ctx context.Context, index string, fields map[string]string) error
}

type titleSearcher interface {
	SearchByTitle(ctx context.Context, title string) ([]models.News, error)
}

type batchRunner interface {
	Run(ctx context.Context) (migration.Summary, error)
}

type server struct {
	log    *slog.Logger
	cfg    *config.API
	es     searchEngine
	db     titleSearcher
	loader batchRunner
	now    func() time.Time
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

type newsSearchResponse struct {
	Total int64         `json:"total"`
	Items []models.News `json:"items"`
}

type ordersResponse struct {
	Total        int64                           `json:"total"`
	Documents    []models.Order                  `json:"documents"`
	Aggregations elasticsearch.OrderAggregations `json:"aggregations"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/search-sql", s.handleSearchSQL)
	r.Get("/health", s.handleHealth)

	r.Route("/news", func(r chi.Router) {
		r.Post("/", s.handleIndexNews)
		r.Get("/", s.handleSearchNews)
		r.Post("/batch", s.handleBatch)
		r.Get("/{id}", s.handleGetNews)
		r.Put("/{id}", s.handleUpdateNews)
		r.Delete("/{id}", s.handleDeleteNews)
	})

	r.Post("/create/index", s.handleCreateIndex)
	r.Get("/e-commerce", s.handleEcommerce)
	r.Handle("/metrics", metrics.Handler())

	return r
}

func (s *server) handleSearchSQL(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	items, err := s.db.SearchByTitle(ctx, r.URL.Query().Get("searchTitle"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, items)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	status, err := s.es.ClusterHealth(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *server) handleIndexNews(w http.ResponseWriter, r *http.Request) {
	var news models.News
	if !decodeBody(w, r, &news) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	// The numeric News id is always the document id, including 0, so every
	// indexed document stays reachable through /news/{id}.
	stored, err := s.es.IndexDocument(ctx, s.cfg.NewsIndex, strconv.FormatInt(news.ID, 10), news)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("could not index document: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		ID:      stored,
		Message: fmt.Sprintf("Index document with ID %s succeeded.", stored),
	})
}

func (s *server) handleGetNews(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	var news models.News
	if err := s.es.GetDocument(ctx, s.cfg.NewsIndex, id, &news); err != nil {
		s.writeError(w, r, fmt.Errorf("could not get document: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, news)
}

func (s *server) handleUpdateNews(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var patch models.NewsPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	if patch.Empty() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "update must set at least one field"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	if err := s.es.UpdateDocument(ctx, s.cfg.NewsIndex, id, patch); err != nil {
		s.writeError(w, r, fmt.Errorf("could not update document: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{ID: id, Message: "Updated"})
}

func (s *server) handleDeleteNews(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	if err := s.es.DeleteDocument(ctx, s.cfg.NewsIndex, id); err != nil {
		s.writeError(w, r, fmt.Errorf("could not delete document: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{ID: id, Message: "Deleted"})
}

func (s *server) handleSearchNews(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	title := strings.TrimSpace(r.URL.Query().Get("title"))

	resp, err := s.es.Search(ctx, s.cfg.NewsIndex, elasticsearch.FuzzyTitleQuery(title, searchFrom, searchSize))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("could not search documents: %w", err))
		return
	}

	items, err := elasticsearch.DecodeHits[models.News](resp)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newsSearchResponse{Total: resp.Total, Items: items})
}

func (s *server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	index := s.cfg.NewsIndex
	if err := s.es.CreateIndex(ctx, index, elasticsearch.NewsFieldMappings()); err != nil {
		s.writeError(w, r, fmt.Errorf("could not create index: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		ID:      index,
		Message: fmt.Sprintf("Index creation with name %s succeeded.", index),
	})
}

// handleBatch runs the whole migration inside the request. The loader bounds
// each page with its own timeout instead of the request timeout.
func (s *server) handleBatch(w http.ResponseWriter, r *http.Request) {
	summary, err := s.loader.Run(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (s *server) handleEcommerce(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	query := elasticsearch.OrderAggregationQuery(sampleUser, sampleOrderIDs, s.now())
	resp, err := s.es.Search(ctx, s.cfg.OrdersIndex, query)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("could not search documents: %w", err))
		return
	}

	orders, err := elasticsearch.DecodeHits[models.Order](resp)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	aggs, err := elasticsearch.DecodeOrderAggregations(resp.Aggregations)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ordersResponse{
		Total:        resp.Total,
		Documents:    orders,
		Aggregations: aggs,
	})
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, elasticsearch.ErrNotFound) {
		status = http.StatusNotFound
	}

	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("err", err),
		)
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func parseID(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid news id %q", raw)})
		return "", false
	}
	return strconv.FormatInt(id, 10), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing useful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(payload)
}
