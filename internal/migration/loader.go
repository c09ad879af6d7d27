package migration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/news-search/backend/internal/elasticsearch"
	"github.com/DeafMist/news-search/backend/internal/metrics"
	"github.com/DeafMist/news-search/backend/internal/models"
)

// Source is the paged relational side of the migration.
type Source interface {
	Count(ctx context.Context) (int64, error)
	Page(ctx context.Context, offset, limit int) ([]models.News, error)
}

// Sink receives one bulk request per page.
type Sink interface {
	BulkIndex(ctx context.Context, index string, docs []elasticsearch.BulkDocument) error
}

// PageError reports the page at which a run stopped.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("could not index at page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// Summary describes a completed run.
type Summary struct {
	RunID   string `json:"run_id"`
	Index   string `json:"index"`
	Total   int64  `json:"total"`
	Pages   int    `json:"pages"`
	Indexed int64  `json:"indexed"`
}

// Loader copies the News table into the search index page by page.
// Pages are read and indexed strictly one after another.
type Loader struct {
	source      Source
	sink        Sink
	index       string
	pageSize    int
	pageTimeout time.Duration
	log         *slog.Logger
}

// NewLoader builds a Loader. A non-positive pageTimeout disables the per-page deadline.
func NewLoader(source Source, sink Sink, index string, pageSize int, pageTimeout time.Duration, logger *slog.Logger) *Loader {
	if pageSize <= 0 {
		pageSize = 5000
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{
		source:      source,
		sink:        sink,
		index:       index,
		pageSize:    pageSize,
		pageTimeout: pageTimeout,
		log:         logger,
	}
}

// Run migrates every row. It stops at the first failing page and returns a
// *PageError; a new run starts again from page 0.
func (l *Loader) Run(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: uuid.NewString(), Index: l.index}
	log := l.log.With(slog.String("run_id", summary.RunID), slog.String("index", l.index))

	total, err := l.source.Count(ctx)
	if err != nil {
		return summary, fmt.Errorf("count source rows: %w", err)
	}
	summary.Total = total

	pages := int((total + int64(l.pageSize) - 1) / int64(l.pageSize))
	log.Info("migration started",
		slog.Int64("total", total),
		slog.Int("pages", pages),
		slog.Int("page_size", l.pageSize),
	)

	for page := 0; page < pages; page++ {
		n, err := l.runPage(ctx, page)
		if err != nil {
			metrics.MigrationPages.WithLabelValues("failed").Inc()
			log.Error("migration page failed", slog.Int("page", page), slog.Any("err", err))
			return summary, &PageError{Page: page, Err: err}
		}
		if n == 0 {
			log.Warn("source returned an empty page before the counted end", slog.Int("page", page))
			break
		}

		summary.Pages++
		summary.Indexed += int64(n)
		metrics.MigrationPages.WithLabelValues("indexed").Inc()
		metrics.MigrationDocuments.Add(float64(n))
		log.Debug("migration page indexed", slog.Int("page", page), slog.Int("docs", n))
	}

	log.Info("migration completed",
		slog.Int("pages", summary.Pages),
		slog.Int64("indexed", summary.Indexed),
	)
	return summary, nil
}

func (l *Loader) runPage(ctx context.Context, page int) (int, error) {
	if l.pageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.pageTimeout)
		defer cancel()
	}

	rows, err := l.source.Page(ctx, page*l.pageSize, l.pageSize)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	docs := make([]elasticsearch.BulkDocument, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, elasticsearch.BulkDocument{
			ID:  strconv.FormatInt(row.ID, 10),
			Doc: row,
		})
	}

	if err := l.sink.BulkIndex(ctx, l.index, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}
