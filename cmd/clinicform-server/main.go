package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/goliatone/go-clinicform/components/timezones"
	"github.com/goliatone/go-clinicform/internal/config"
	"github.com/goliatone/go-clinicform/internal/server"
	"github.com/goliatone/go-clinicform/pkg/logging"
	"github.com/goliatone/go-clinicform/pkg/runtime"
	"github.com/goliatone/go-clinicform/pkg/store"
	"github.com/goliatone/go-clinicform/pkg/submission"
	"github.com/goliatone/go-clinicform/pkg/summary"
)

func main() {
	configDir := flag.String("config", ".", "directory holding clinicform.yaml")
	envFile := flag.String("env", ".env", "dotenv file to load")
	flag.Parse()

	cfg, err := config.Load(config.WithConfigPaths(*configDir), config.WithEnvFiles(*envFile))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	forms, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	sink, closeSink, err := openSink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	handler := server.New(server.Config{
		Store:          forms,
		Sink:           sink,
		Logger:         logger,
		MetricsHandler: promhttp.Handler(),
		Timezones:      timezones.New(),
		RequestTimeout: cfg.RequestTimeout,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Env))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.FormStore, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, forms are kept in memory")
		return store.NewMemoryStore(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return store.NewRedisStore(client, store.WithRedisLogger(logger)), func() { _ = client.Close() }, nil
}

func openSink(ctx context.Context, cfg config.Config, logger *zap.Logger) (runtime.Submitter, func(), error) {
	if cfg.DatabaseURL != "" {
		pool, err := submission.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		renderer, err := summary.NewRenderer(summary.WithLocation(cfg.ClinicLocation()))
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		sink := submission.NewPostgresSink(pool,
			submission.WithPostgresLogger(logger),
			submission.WithSummarizer(renderer),
		)
		if err := sink.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return sink, pool.Close, nil
	}
	if cfg.DirectoryBaseURL != "" {
		endpoint := strings.TrimRight(cfg.DirectoryBaseURL, "/") + "/submissions"
		client := &http.Client{Timeout: cfg.RequestTimeout}
		return submission.NewHTTPSink(endpoint, submission.WithHTTPClient(client), submission.WithHTTPLogger(logger)), func() {}, nil
	}
	logger.Warn("no DATABASE_URL or DIRECTORY_BASE_URL, submissions are disabled")
	return nil, func() {}, nil
}
