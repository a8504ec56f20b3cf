package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dataminds-hq/tender-harvester/internal/app"
	"github.com/dataminds-hq/tender-harvester/internal/config"
	"github.com/dataminds-hq/tender-harvester/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "harvester start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, err := logger.Init(cfg.LogLevel); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("harvester starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	harvester, err := app.New(ctx, cfg)
	if err != nil {
		logger.ErrorObj("failed to initialize harvester", "error", err)
		return err
	}
	defer func() {
		if err := harvester.Close(context.Background()); err != nil {
			logger.ErrorObj("shutdown incomplete", "error", err)
		}
	}()

	harvester.Run(ctx)
	return nil
}
