package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/news-search/backend/internal/config"
	"github.com/DeafMist/news-search/backend/internal/dedupe"
	"github.com/DeafMist/news-search/backend/internal/elasticsearch"
	"github.com/DeafMist/news-search/backend/internal/logger"
	"github.com/DeafMist/news-search/backend/internal/metrics"
	"github.com/DeafMist/news-search/backend/internal/models"
	"github.com/DeafMist/news-search/backend/internal/processing"
)

const (
	opIndex  = "index"
	opDelete = "delete"
)

type ingestMessage struct {
	Op   string      `json:"op"`
	News models.News `json:"news"`
}

type newsIndexer interface {
	IndexDocument(ctx context.Context, index, id string, doc any) (string, error)
	DeleteDocument(ctx context.Context, index, id string) error
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	cache := dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqTopic := cfg.KafkaTopic + "_dlq"
	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       dlqTopic,
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
		slog.String("index", cfg.NewsIndex),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, esClient, cache, cfg, msg); err != nil {
			metrics.IngestMessages.WithLabelValues("failed").Inc()
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			if !sendToDLQ(ctx, log, dlqWriter, dlqMessage(msg, err, time.Now())) {
				if ctx.Err() != nil {
					return
				}
				// Leaving the offset uncommitted lets a restart reprocess the message.
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// processMessage applies a single ingest message to the news index.
// Duplicate index messages are acknowledged without a write.
func processMessage(ctx context.Context, log *slog.Logger, es newsIndexer, cache *dedupe.Cache, cfg *config.Worker, msg kafka.Message) error {
	var payload ingestMessage
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if payload.News.ID <= 0 {
		return errors.New("news id must be positive")
	}

	id := strconv.FormatInt(payload.News.ID, 10)
	ctx, cancel := context.WithTimeout(ctx, cfg.IndexTimeout)
	defer cancel()

	switch payload.Op {
	case "", opIndex:
		news := processing.Normalize(payload.News)
		if news.Title == "" {
			return fmt.Errorf("news %s has an empty title", id)
		}

		fp := processing.Fingerprint(news)
		if cache.IsSeen(id, fp) {
			metrics.IngestMessages.WithLabelValues("duplicate").Inc()
			log.Debug("duplicate news", slog.String("id", id))
			return nil
		}

		if _, err := es.IndexDocument(ctx, cfg.NewsIndex, id, news); err != nil {
			return err
		}
		cache.MarkSeen(id, fp)
		metrics.IngestMessages.WithLabelValues("indexed").Inc()
		log.Info("indexed news", slog.String("id", id), slog.String("title", news.Title))

	case opDelete:
		err := es.DeleteDocument(ctx, cfg.NewsIndex, id)
		if err != nil && !errors.Is(err, elasticsearch.ErrNotFound) {
			return err
		}
		cache.Forget(id)
		metrics.IngestMessages.WithLabelValues("deleted").Inc()
		log.Info("deleted news", slog.String("id", id), slog.Bool("existed", err == nil))

	default:
		return fmt.Errorf("unknown op %q", payload.Op)
	}

	return nil
}

func dlqMessage(msg kafka.Message, cause error, now time.Time) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers)+4)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "original_partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: "original_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
		kafka.Header{Key: "timestamp", Value: []byte(now.UTC().Format(time.RFC3339))},
	)
	return kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// sendToDLQ retries with exponential backoff and reports whether the write succeeded.
func sendToDLQ(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message) bool {
	for attempt := range 5 {
		dlqErr := w.WriteMessages(ctx, msg)
		if dlqErr == nil {
			log.Info("message sent to DLQ", slog.Int("attempt", attempt+1))
			return true
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}
	return false
}
