package newsdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DeafMist/news-search/backend/internal/models"
)

// SearchLimit caps the rows returned by SearchByTitle.
const SearchLimit = 100

const newsColumns = `"Id", COALESCE("Title", ''), COALESCE("ShortLink", ''), COALESCE("Time", ''),
		COALESCE("Category", ''), COALESCE("NewsId", ''), COALESCE("Body", '')`

// DBTX is the subset of pgxpool.Pool the store needs.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads the News table.
type Store struct {
	db DBTX
}

// New creates a Store on top of db.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// SearchByTitle returns up to SearchLimit rows whose title contains title,
// compared case-insensitively. The match string is bound as a parameter and
// LIKE wildcards in it are escaped, so it always matches literally. Row order
// is whatever the store yields.
func (s *Store) SearchByTitle(ctx context.Context, title string) ([]models.News, error) {
	query := `
		SELECT ` + newsColumns + `
		FROM "News"
		WHERE "Title" ILIKE '%' || $1 || '%' ESCAPE '\'
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, EscapeLike(title), SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search news by title: %w", err)
	}
	return collectNews(rows)
}

// Count returns the live number of rows in the News table.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM "News"`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count news: %w", err)
	}
	return n, nil
}

// Page returns limit rows ordered by Id, skipping offset rows.
func (s *Store) Page(ctx context.Context, offset, limit int) ([]models.News, error) {
	query := `
		SELECT ` + newsColumns + `
		FROM "News"
		ORDER BY "Id"
		OFFSET $1 LIMIT $2`

	rows, err := s.db.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("read news page at offset %d: %w", offset, err)
	}
	return collectNews(rows)
}

// EscapeLike escapes the LIKE metacharacters of s using backslash.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func collectNews(rows pgx.Rows) ([]models.News, error) {
	defer rows.Close()

	items := make([]models.News, 0)
	for rows.Next() {
		var n models.News
		if err := rows.Scan(&n.ID, &n.Title, &n.ShortLink, &n.Time, &n.Category, &n.NewsID, &n.Body); err != nil {
			return nil, fmt.Errorf("scan news row: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate news rows: %w", err)
	}
	return items, nil
}
