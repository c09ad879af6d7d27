package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/news-search/backend/internal/config"
	"github.com/DeafMist/news-search/backend/internal/elasticsearch"
	"github.com/DeafMist/news-search/backend/internal/logger"
	"github.com/DeafMist/news-search/backend/internal/migration"
	"github.com/DeafMist/news-search/backend/internal/newsdb"
)

const maxRetryDelay = 30 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	log := logger.New("migrate")
	cfg, err := config.LoadMigrationJob()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	if err := waitForElasticsearch(ctx, log, esClient, cfg.ConnectRetries, 2*time.Second); err != nil {
		log.Error("failed to connect to elasticsearch after retries", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("connected to elasticsearch")

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := newsdb.Connect(connectCtx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	cancel()
	if err != nil {
		log.Error("init postgres", slog.Any("err", err))
		os.Exit(1)
	}

	loader := migration.NewLoader(newsdb.New(pool), esClient, cfg.NewsIndex, cfg.PageSize, cfg.PageTimeout, log)
	summary, err := loader.Run(ctx)
	pool.Close()
	if err != nil {
		log.Error("migration failed",
			slog.String("run_id", summary.RunID),
			slog.Int("pages_done", summary.Pages),
			slog.Any("err", err),
		)
		os.Exit(1)
	}

	attrs := []any{
		slog.String("run_id", summary.RunID),
		slog.String("index", summary.Index),
		slog.Int64("total", summary.Total),
		slog.Int64("indexed", summary.Indexed),
	}
	countCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if n, err := esClient.CountDocuments(countCtx, cfg.NewsIndex); err == nil {
		attrs = append(attrs, slog.Int64("index_docs", n))
	} else {
		log.Warn("count index documents", slog.Any("err", err))
	}
	log.Info("migration finished", attrs...)
}

// waitForElasticsearch pings until the cluster answers, doubling the delay
// between attempts up to maxRetryDelay.
func waitForElasticsearch(ctx context.Context, log *slog.Logger, es pinger, retries int, delay time.Duration) error {
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = es.Ping(pingCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if attempt == retries {
			break
		}

		log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", lastErr),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", retries),
			slog.Duration("retry_in", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, maxRetryDelay)
	}
	if lastErr == nil {
		lastErr = errors.New("no connection attempts made")
	}
	return lastErr
}
