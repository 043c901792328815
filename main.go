package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"corpora/internal/app"
	"corpora/internal/config"
	"corpora/internal/extract"
	"corpora/internal/logger"
)

func main() {
	slog.SetDefault(slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()

	application, err := app.New(cfg, deps.DB, deps.ObjectStore, deps.VectorIndex, deps.NSQProducer, extract.New())
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	// Ingestion consumer. MaxInFlight matches the handler count so each
	// worker holds at most one message at a time.
	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxInFlight = cfg.IngestionConcurrency
	nsqCfg.MaxAttempts = uint16(cfg.MaxAttempts + 1)

	consumer, err := nsq.NewConsumer(config.TopicIngestTask, config.ChannelOrchestrator, nsqCfg)
	if err != nil {
		slog.Error("failed to create NSQ consumer", "error", err)
		os.Exit(1)
	}
	consumer.AddConcurrentHandlers(application.IngestConsumer, cfg.IngestionConcurrency)

	if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		slog.Error("failed to connect to NSQLookupd", "error", err)
	} else {
		slog.Info("ingestion consumer connected", "topic", config.TopicIngestTask, "concurrency", cfg.IngestionConcurrency)
	}

	defer func() {
		consumer.Stop()
		<-consumer.StopChan
		deps.NSQProducer.Stop()
	}()

	if err := application.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
