package migration_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-search/backend/internal/elasticsearch"
	"github.com/DeafMist/news-search/backend/internal/migration"
	"github.com/DeafMist/news-search/backend/internal/models"
)

type tableSource struct {
	rows    []models.News
	offsets []int
}

func newTableSource(n int) *tableSource {
	rows := make([]models.News, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, models.News{ID: int64(i), Title: "news"})
	}
	return &tableSource{rows: rows}
}

func (s *tableSource) Count(context.Context) (int64, error) {
	return int64(len(s.rows)), nil
}

func (s *tableSource) Page(_ context.Context, offset, limit int) ([]models.News, error) {
	s.offsets = append(s.offsets, offset)
	if offset >= len(s.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[offset:end], nil
}

type memorySink struct {
	docs   map[string]models.News
	calls  int
	failAt int
}

func newMemorySink() *memorySink {
	return &memorySink{docs: map[string]models.News{}, failAt: -1}
}

func (s *memorySink) BulkIndex(_ context.Context, _ string, docs []elasticsearch.BulkDocument) error {
	call := s.calls
	s.calls++
	if call == s.failAt {
		return errors.New("bulk index failed: 1 of 3 documents rejected")
	}
	for _, d := range docs {
		s.docs[d.ID] = d.Doc.(models.News)
	}
	return nil
}

func TestRunIndexesEveryRowWhenTotalIsNotPageMultiple(t *testing.T) {
	source := newTableSource(7)
	sink := newMemorySink()
	loader := migration.NewLoader(source, sink, "news-index-2", 3, time.Second, nil)

	summary, err := loader.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, int64(7), summary.Total)
	require.Equal(t, 3, summary.Pages)
	require.Equal(t, int64(7), summary.Indexed)
	require.NotEmpty(t, summary.RunID)
	require.Len(t, sink.docs, 7)
	require.Equal(t, []int{0, 3, 6}, source.offsets)
	require.Equal(t, int64(7), sink.docs["7"].ID)
}

func TestRunExactPageMultiple(t *testing.T) {
	source := newTableSource(6)
	sink := newMemorySink()
	loader := migration.NewLoader(source, sink, "news-index-2", 3, 0, nil)

	summary, err := loader.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Pages)
	require.Len(t, sink.docs, 6)
	require.Equal(t, []int{0, 3}, source.offsets)
}

func TestRunEmptyTableProcessesNoPages(t *testing.T) {
	source := newTableSource(0)
	sink := newMemorySink()
	loader := migration.NewLoader(source, sink, "news-index-2", 3, time.Second, nil)

	summary, err := loader.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.Pages)
	require.Zero(t, sink.calls)
	require.Empty(t, source.offsets)
}

func TestRunAbortsOnFirstFailingPage(t *testing.T) {
	source := newTableSource(10)
	sink := newMemorySink()
	sink.failAt = 1
	loader := migration.NewLoader(source, sink, "news-index-2", 3, time.Second, nil)

	summary, err := loader.Run(context.Background())
	require.Error(t, err)

	var pageErr *migration.PageError
	require.True(t, errors.As(err, &pageErr))
	require.Equal(t, 1, pageErr.Page)
	require.Contains(t, err.Error(), "could not index at page 1")

	require.Equal(t, 1, summary.Pages)
	require.Equal(t, 2, sink.calls)
	require.Len(t, sink.docs, 3)
}

type shrinkingSource struct {
	tableSource
}

func (s *shrinkingSource) Count(context.Context) (int64, error) {
	return int64(len(s.rows)) + 10, nil
}

func TestRunStopsAtEmptyPage(t *testing.T) {
	source := &shrinkingSource{tableSource: *newTableSource(4)}
	sink := newMemorySink()
	loader := migration.NewLoader(source, sink, "news-index-2", 2, time.Second, nil)

	summary, err := loader.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Pages)
	require.Equal(t, int64(4), summary.Indexed)
	require.Equal(t, 2, sink.calls)
}

type failingCountSource struct {
	tableSource
}

func (s *failingCountSource) Count(context.Context) (int64, error) {
	return 0, errors.New("relation \"News\" does not exist")
}

func TestRunFailsWhenCountFails(t *testing.T) {
	loader := migration.NewLoader(&failingCountSource{}, newMemorySink(), "news-index-2", 2, time.Second, nil)

	_, err := loader.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "count source rows")
}
