package newsdb_test

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-search/backend/internal/models"
	"github.com/DeafMist/news-search/backend/internal/newsdb"
)

var newsColumns = []string{"Id", "Title", "ShortLink", "Time", "Category", "NewsId", "Body"}

func setupStore(t *testing.T) (*newsdb.Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newsdb.New(mock), mock
}

func newsRow(rows *pgxmock.Rows, n models.News) *pgxmock.Rows {
	return rows.AddRow(n.ID, n.Title, n.ShortLink, n.Time, n.Category, n.NewsID, n.Body)
}

func TestSearchByTitle_BindsEscapedArgument(t *testing.T) {
	store, mock := setupStore(t)

	want := models.News{ID: 7, Title: "Elastic stack 101", Category: "tech"}
	mock.ExpectQuery(`(?s)SELECT .+FROM "News"\s+WHERE "Title" ILIKE`).
		WithArgs("Elastic", newsdb.SearchLimit).
		WillReturnRows(newsRow(pgxmock.NewRows(newsColumns), want))

	got, err := store.SearchByTitle(context.Background(), "Elastic")
	require.NoError(t, err)
	require.Equal(t, []models.News{want}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchByTitle_MetacharactersAreLiteral(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectQuery(`(?s)SELECT .+FROM "News"\s+WHERE "Title" ILIKE`).
		WithArgs(`100\% O'Brien\_x`, newsdb.SearchLimit).
		WillReturnRows(pgxmock.NewRows(newsColumns))

	got, err := store.SearchByTitle(context.Background(), `100% O'Brien_x`)
	require.NoError(t, err)
	require.Empty(t, got)
	require.NotNil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchByTitle_QueryError(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectQuery(`(?s)SELECT .+FROM "News"`).
		WithArgs("x", newsdb.SearchLimit).
		WillReturnError(errors.New("connection reset"))

	_, err := store.SearchByTitle(context.Background(), "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "search news by title")
}

func TestCount(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "News"`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(12345)))

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(12345), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPage_UsesOffsetAndLimit(t *testing.T) {
	store, mock := setupStore(t)

	rows := pgxmock.NewRows(newsColumns)
	newsRow(rows, models.News{ID: 11, Title: "a"})
	newsRow(rows, models.News{ID: 12, Title: "b"})
	mock.ExpectQuery(`(?s)SELECT .+FROM "News"\s+ORDER BY "Id"\s+OFFSET \$1 LIMIT \$2`).
		WithArgs(10, 5).
		WillReturnRows(rows)

	got, err := store.Page(context.Background(), 10, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(11), got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "Elastic", want: "Elastic"},
		{name: "percent", input: "50%", want: `50\%`},
		{name: "underscore", input: "a_b", want: `a\_b`},
		{name: "backslash", input: `c:\dir`, want: `c:\\dir`},
		{name: "quote untouched", input: "it's", want: "it's"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, newsdb.EscapeLike(tt.input))
		})
	}
}
