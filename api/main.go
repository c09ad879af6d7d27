package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
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

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
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

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := newsdb.Connect(connectCtx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	cancel()
	if err != nil {
		log.Error("init postgres", slog.Any("err", err))
		os.Exit(1)
	}
	defer pool.Close()

	store := newsdb.New(pool)
	srv := &server{
		log:    log,
		cfg:    cfg,
		es:     esClient,
		db:     store,
		loader: migration.NewLoader(store, esClient, cfg.NewsIndex, cfg.PageSize, cfg.PageTimeout, log),
		now:    time.Now,
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	go func() {
		log.Info("api server starting",
			slog.String("addr", cfg.BindAddr),
			slog.String("news_index", cfg.NewsIndex),
			slog.String("orders_index", cfg.OrdersIndex),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}
