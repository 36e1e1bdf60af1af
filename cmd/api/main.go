package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/harliandi/imgsqueeze/internal/compressor"
	"github.com/harliandi/imgsqueeze/internal/config"
	"github.com/harliandi/imgsqueeze/internal/handler"
	"github.com/harliandi/imgsqueeze/internal/logging"
	"github.com/harliandi/imgsqueeze/internal/middleware"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Timeouts guard against slowloris and hung clients
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      a.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("starting image compression API",
		zap.String("addr", server.Addr),
		zap.String("format", cfg.OutputFormat),
		zap.String("encoder", cfg.Encoder),
		zap.Int("max_upload_mb", cfg.MaxUploadMB),
		zap.Int("max_batch_files", cfg.MaxBatchFiles),
		zap.Int("max_concurrent", cfg.MaxConcurrent),
		zap.Int("rate_limit", cfg.RateLimitPerSec),
		zap.Int("workers", cfg.WorkerCount),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// app is the wired HTTP stack plus the resources it owns
type app struct {
	handler http.Handler
	pool    *compressor.WorkerPool
	limiter *middleware.RateLimiter
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	c, err := compressor.New(cfg.OutputFormat, cfg.Encoder, cfg.MaxUploadBytes(), logger.Named("compressor"))
	if err != nil {
		return nil, err
	}
	pool := compressor.NewWorkerPool(c, cfg.WorkerCount)
	pool.Start()

	h := handler.New(c, pool, cfg, logger.Named("handler"))

	mux := http.NewServeMux()
	mux.HandleFunc("/compress", h.Compress)
	mux.HandleFunc("/compress/batch", h.Batch)
	mux.HandleFunc("/preview", h.Preview)
	mux.HandleFunc("/health", h.Health)
	mux.Handle("/metrics", promhttp.Handler())

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst)
	httpLog := logger.Named("http")

	// Outermost first
	chain := middleware.Chain(mux,
		middleware.Security,
		middleware.RequestID,
		middleware.RateLimit(limiter, httpLog),
		middleware.ConcurrencyLimit(cfg.MaxConcurrent, httpLog),
		middleware.Recovery(httpLog),
		middleware.Logger(httpLog),
	)

	return &app{handler: chain, pool: pool, limiter: limiter}, nil
}

// Close stops the worker pool and the rate limiter's janitor
func (a *app) Close() {
	a.pool.Stop()
	a.limiter.Close()
}
