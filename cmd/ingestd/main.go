package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/newsfuse-hq/newsfuse-ingest/internal/app"
	"github.com/newsfuse-hq/newsfuse-ingest/internal/config"
	"github.com/newsfuse-hq/newsfuse-ingest/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ingestd start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("ingestd starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ingestor, err := app.NewIngestor(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize ingestor", "error", err)
		return err
	}

	if err := ingestor.Run(ctx); err != nil {
		return fmt.Errorf("ingestor run: %w", err)
	}

	return nil
}
