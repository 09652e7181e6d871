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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"checklists/api/internal/app"
	"checklists/api/internal/auth"
	"checklists/api/internal/config"
	"checklists/api/internal/logging"
	"checklists/api/internal/metrics"
	"checklists/api/internal/ratelimit"
	"checklists/api/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("CHECKLISTS_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	dataStore, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var counter ratelimit.Counter
	if cfg.Redis.URL != "" {
		redisCounter, err := ratelimit.NewRedisCounter(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisCounter.Close()
		counter = redisCounter
		logger.Info("rate limit counters in redis")
	} else {
		memoryCounter := ratelimit.NewMemoryCounter(time.Minute)
		defer memoryCounter.Close()
		counter = memoryCounter
		logger.Info("rate limit counters in process memory")
	}

	service := app.New(app.Deps{
		Store:   dataStore,
		Logger:  logger,
		Metrics: m,
		Limiter: ratelimit.NewLimiter(counter, ratelimit.DefaultRules(), logger, m),
		Quotas:  cfg.Quotas.Limits(),
	})

	httpServer := app.NewHTTPServer(service, app.HTTPOptions{
		CORSOrigin:  cfg.HTTP.CORSOrigin,
		Tokens:      auth.NewSigner([]byte(cfg.Auth.TokenSecret), []byte(cfg.Auth.PreviousTokenSecret)),
		IdentityKey: cfg.Auth.IdentityKey,
		TokenTTL:    cfg.Auth.TokenTTL,
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: cfg.Timeouts.ReadHeader,
		ReadTimeout:       cfg.Timeouts.Read,
		WriteTimeout:      cfg.Timeouts.Write,
		IdleTimeout:       cfg.Timeouts.Idle,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("checklists api listening", zap.String("addr", cfg.HTTP.Addr), zap.String("store", cfg.Store.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		logger.Info("signal caught", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("checklists api stopped")
	return nil
}

type engine interface {
	WithTx(ctx context.Context, fn func(store.Tx) error) error
	View(ctx context.Context, fn func(store.Tx) error) error
	EnsureUser(ctx context.Context, email, name string, at time.Time) (store.User, bool, error)
	AppendAudit(ctx context.Context, entry store.AuditEntry) error
	ListAudit(ctx context.Context, filter store.AuditFilter) ([]store.AuditEntry, int, error)
	Ping(ctx context.Context) error
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (engine, func(), error) {
	if cfg.Store.Driver == config.StoreMemory {
		logger.Warn("using the in-memory store; data is lost on exit")
		return store.NewMemoryStore(), func() {}, nil
	}

	db, err := store.Open(ctx, cfg.Store.DatabaseURL, store.Pool{
		MaxOpen: cfg.Store.MaxOpenConns,
		MaxIdle: cfg.Store.MaxIdleConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := store.ApplyMigrations(ctx, db, cfg.Store.MigrationsDir); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrations failed: %w", err)
	}
	return store.NewPostgresStore(db), func() { _ = db.Close() }, nil
}
