package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobboard-gateway/internal/bootstrap"
	"jobboard-gateway/internal/config"
	"jobboard-gateway/internal/logger"
	"jobboard-gateway/middleware/ratelimit/infra"
	"jobboard-gateway/middleware/requestid"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Server.UpstreamURL == "" {
		return errors.New("server.upstream_url (UPSTREAM_URL) is required")
	}
	target, err := url.Parse(cfg.Server.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid upstream url: %w", err)
	}

	log, level := logger.Must(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	comps, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer comps.Close()

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("proxy error",
			zap.String("request_id", requestid.FromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	r := newRouter(cfg, comps, proxy, level, log)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       90 * time.Second,
	}

	janitor, err := infra.NewJanitor(comps.Service.Cleanup, cfg.RateLimit.SweepEvery, infra.WithJanitorLogger(log.Named("janitor")))
	if err != nil {
		return fmt.Errorf("create janitor: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("gateway listening",
			zap.String("addr", cfg.Server.ListenAddr),
			zap.String("upstream", target.String()),
			zap.Bool("rate_limit", cfg.RateLimit.Enabled),
			zap.Bool("trust_proxy", cfg.RateLimit.TrustProxy),
			zap.String("override_header", cfg.RateLimit.OverrideHeader),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return janitor.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown", zap.Error(err))
		}
		if err := janitor.Close(cfg.Server.ShutdownTimeout); err != nil {
			log.Warn("janitor shutdown", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info("gateway stopped")
	return err
}
