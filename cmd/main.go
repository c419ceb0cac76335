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

	"gorm.io/gorm"

	"github.com/okian/certifica/internal/adapters/connectivity"
	"github.com/okian/certifica/internal/adapters/http/api"
	"github.com/okian/certifica/internal/adapters/http/swagger"
	"github.com/okian/certifica/internal/adapters/remote"
	"github.com/okian/certifica/internal/adapters/storage"
	app "github.com/okian/certifica/internal/app"
	"github.com/okian/certifica/internal/config"
	"github.com/okian/certifica/pkg/logger"
	"github.com/okian/certifica/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

var errUnknownStorage = errors.New("unknown storage driver")

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "certifica exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	kv, closeKV, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeKV()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	sink := remote.NewGormSink(db, remote.WithResources(cfg.Resources...))
	probe := connectivity.NewProbeMonitor(sink,
		connectivity.WithInterval(cfg.ProbeInterval()),
		connectivity.WithLogger(log.Named("connectivity")),
	)
	probe.Start(ctx)
	defer probe.Stop()

	svc := app.New(
		app.WithLogger(log.Named("service")),
		app.WithStorage(kv),
		app.WithSink(sink),
		app.WithTaxonomySource(remote.NewGormTaxonomySource(db)),
		app.WithEvaluationReader(remote.NewGormEvaluationReader(db)),
		app.WithMonitor(probe),
		app.WithActionTimeout(cfg.ActionTimeout()),
		app.WithDedupeSize(cfg.DedupeSize),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// newMux registers the docs and business routes.
func newMux(ctx context.Context, svc *app.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)
	return mux
}

// openStorage returns the local key-value store and its closer.
func openStorage(ctx context.Context, cfg *config.Config) (storage.KV, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		return storage.NewMemory(), func() {}, nil
	case config.StorageFile:
		kv, err := storage.NewFile(cfg.StorageDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open file storage: %w", err)
		}
		return kv, func() {}, nil
	case config.StorageRedis:
		kv, err := storage.NewRedis(ctx, cfg.RedisAddr, storage.WithPrefix(cfg.RedisPrefix))
		if err != nil {
			return nil, nil, fmt.Errorf("open redis storage: %w", err)
		}
		return kv, func() { _ = kv.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", errUnknownStorage, cfg.StorageDriver)
	}
}

// openDatabase opens the remote store. Local sqlite databases get the schema
// created on open.
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := remote.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseDriver == config.DatabaseSQLite {
		if err := remote.Migrate(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// startServiceMetricsUpdater refreshes the gauges derived from service stats.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats()
		}
	}
}
