package main

// Varredura de retenção avulsa, para rodar via cron quando o gateway não roda o
// janitor (ratelimit.sweep_every=0) ou para limpar um store compartilhado.

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"jobboard-gateway/internal/bootstrap"
	"jobboard-gateway/internal/config"
	"jobboard-gateway/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ratelimit-sweep: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, _ := logger.Must(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	comps, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer comps.Close()

	deleted, err := comps.Service.Cleanup(ctx)
	if err != nil {
		return err
	}
	log.Info("sweep finished", zap.String("store", cfg.Store.Backend), zap.Int("deleted_records", deleted))
	return nil
}
