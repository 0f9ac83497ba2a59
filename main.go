// Command clickcounter serves click accounting, per-domain configuration
// and static banner assets.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	infraconfig "github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/config"
	infragin "github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/gin"
	"github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/logger"
	"github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/profiling"
	infraredis "github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/redis"
	"github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/retry"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/api"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/auth"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/config"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/handler"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/metrics"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/middleware"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/storage"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/tracker"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/useragent"

	_ "github.com/lib/pq"
)

// Startup and shutdown timeouts.
const (
	dbPingTimeout       = 5 * time.Second
	minioConnectTimeout = 10 * time.Second
	pprofStopTimeout    = 5 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// Initialize logger
	log, err := createLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	// Start profiling server (if enabled)
	if pprofServer := profiling.StartPprofServer(cfg.PprofPort, log); pprofServer != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), pprofStopTimeout)
			defer cancel()
			_ = pprofServer.Shutdown(ctx)
		}()
	}

	deps, err := openBackends(cfg, log)
	if err != nil {
		log.Error("Failed to open storage backends", logger.Error(err))
		return 1
	}
	defer deps.close()

	return runServer(cfg, log, deps)
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	configPath := infraconfig.GetConfigPath(infraconfig.DefaultConfigPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return nil, fmt.Errorf("validate config: %w", validationErr)
	}
	return cfg, nil
}

// createLogger creates a logger instance from configuration.
func createLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(logger.String("service", cfg.Service.Name)), nil
}

// backends holds the selected stores and the connections behind them.
type backends struct {
	records storage.RecordStore
	assets  storage.AssetStore
	db      *sql.DB
	checks  map[string]infragin.HealthChecker
	closers []func() error
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

// openBackends connects to whatever the storage section selects.
func openBackends(cfg *config.Config, log logger.Logger) (*backends, error) {
	b := &backends{checks: make(map[string]infragin.HealthChecker)}

	if cfg.UsesPostgres() {
		db, err := connectDatabase(cfg, log)
		if err != nil {
			return nil, err
		}
		b.db = db
		b.closers = append(b.closers, db.Close)
		b.checks["database"] = infragin.PingChecker("database", true, db.PingContext)
	}

	switch cfg.Storage.Records {
	case config.DriverPostgres:
		b.records = storage.NewPostgresRecordStore(b.db)
	case config.DriverRedis:
		client, err := infraredis.NewClient(cfg.Redis)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		b.records = storage.NewRedisRecordStore(client, cfg.Redis.KeyPrefix)
		log.Info("Redis connected", logger.String("address", cfg.Redis.Address))
	default:
		b.records = storage.NewMemoryRecordStore()
		log.Warn("Using in-memory record store; records are lost on restart")
	}
	b.checks["records"] = infragin.PingChecker("records", true, b.records.Ping)

	switch cfg.Storage.Assets {
	case config.DriverPostgres:
		b.assets = storage.NewPostgresAssetStore(sqlx.NewDb(b.db, "postgres"))
	case config.DriverMinio:
		ctx, cancel := context.WithTimeout(context.Background(), minioConnectTimeout)
		store, err := storage.NewMinioAssetStore(ctx, cfg.Minio)
		cancel()
		if err != nil {
			b.close()
			return nil, fmt.Errorf("connect minio: %w", err)
		}
		b.assets = store
		b.checks["assets"] = infragin.PingChecker("assets", false, store.Ping)
		log.Info("MinIO connected",
			logger.String("endpoint", cfg.Minio.Endpoint),
			logger.String("bucket", cfg.Minio.Bucket),
		)
	default:
		b.assets = storage.NewMemoryAssetStore()
	}

	return b, nil
}

// connectDatabase opens and verifies a database connection.
func connectDatabase(cfg *config.Config, log logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	log.Info("Database connected",
		logger.String("host", cfg.Database.Host),
		logger.Int("port", cfg.Database.Port),
		logger.String("database", cfg.Database.Database),
	)

	return db, nil
}

// visitRecorder returns the PostgreSQL visit log when a database is open and
// an in-memory log otherwise. stop drains pending events.
func visitRecorder(
	cfg *config.Config,
	log logger.Logger,
	m *metrics.Metrics,
	db *sql.DB,
) (recorder storage.VisitRecorder, stop func()) {
	if db == nil {
		return storage.NewMemoryVisitLog(0), func() {}
	}

	visitLog := storage.NewVisitLog(db, storage.NewVisitBuffer(cfg.Visits.BufferSize), log, m,
		storage.VisitLogConfig{
			FlushInterval:  cfg.Visits.FlushInterval,
			FlushThreshold: cfg.Visits.FlushThreshold,
		})
	visitLog.Start()
	return visitLog, visitLog.Stop
}

// runServer creates all dependencies and starts the HTTP server.
func runServer(cfg *config.Config, log logger.Logger, deps *backends) int {
	acct, err := cfg.AccountingSettings()
	if err != nil {
		log.Error("Invalid accounting settings", logger.Error(err))
		return 1
	}

	gate, err := auth.NewGate(cfg.Auth.Secret)
	if err != nil {
		log.Error("Failed to initialize auth", logger.Error(err))
		return 1
	}
	if gate.Generated() {
		log.Warn("No auth secret configured; protected endpoints are locked")
	}

	m := metrics.New()

	visits, stopVisits := visitRecorder(cfg, log, m, deps.db)
	defer stopVisits()

	opts := []tracker.Option{tracker.WithMetrics(m)}
	if parser, parserErr := useragent.NewParser(cfg.Visits.UserAgentRegexes); parserErr != nil {
		log.Warn("Device classification disabled", logger.Error(parserErr))
	} else {
		opts = append(opts, tracker.WithDeviceClassifier(parser))
	}

	engine := tracker.NewEngine(deps.records, visits, tracker.Config{
		Accounting: acct,
		Retry: retry.Config{
			MaxAttempts:  cfg.Accounting.MaxAttempts,
			InitialDelay: cfg.Accounting.RetryInitialDelay,
			MaxDelay:     cfg.Accounting.RetryMaxDelay,
		},
		StorageTimeout: cfg.Storage.Timeout,
	}, log, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var limiter *middleware.LimiterStore
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewLimiterStore(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		limiter.StartJanitor(ctx)
	}

	server := api.NewServer(
		api.Handlers{
			Config: handler.NewConfigHandler(engine, log, m),
			Click:  handler.NewClickHandler(engine, log, m),
			Static: handler.NewStaticHandler(deps.assets, log),
		},
		api.RouteOptions{
			ServiceName: cfg.Service.Name,
			Version:     cfg.Service.Version,
			Gate:        gate,
			Limiter:     limiter,
			Metrics:     m,
		},
		cfg,
		log,
		deps.checks,
	)

	log.Info("Clickcounter starting",
		logger.Int("port", cfg.Service.Port),
		logger.String("record_store", cfg.Storage.Records),
		logger.String("asset_store", cfg.Storage.Assets),
	)

	if err = server.RunWithGracefulShutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Server error", logger.Error(err))
		return 1
	}

	log.Info("Clickcounter exited cleanly")
	return 0
}
