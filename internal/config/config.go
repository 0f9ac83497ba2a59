// Package config loads the clickcounter service configuration.
package config

import (
	"errors"
	"fmt"
	"time"

	infraconfig "github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/config"
	"github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/redis"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/storage"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMinio    = "minio"
)

// Default configuration values.
const (
	defaultServiceName  = "clickcounter"
	defaultServicePort  = 8080
	defaultVersion      = "0.1.0"
	defaultLoggingLevel = "info"
	defaultLoggingFmt   = "json"

	defaultClickIncrement    = "0.001"
	defaultTotalBudget       = "5000"
	defaultMaxAttempts       = 5
	defaultRetryInitialDelay = 10 * time.Millisecond
	defaultRetryMaxDelay     = 500 * time.Millisecond

	defaultStorageTimeout = 5 * time.Second

	defaultDBHost    = "localhost"
	defaultDBPort    = 5432
	defaultDBName    = "clickcounter"
	defaultDBUser    = "postgres"
	defaultDBSSLMode = "disable"

	defaultRedisAddress   = "localhost:6379"
	defaultRedisKeyPrefix = "clickcounter:"

	defaultMinioEndpoint = "localhost:9000"
	defaultMinioBucket   = "clickcounter-static"

	defaultVisitBufferSize     = 1000
	defaultVisitFlushInterval  = time.Second
	defaultVisitFlushThreshold = 50

	defaultRateLimitRPS   = 5.0
	defaultRateLimitBurst = 20
)

// Config holds the application configuration.
type Config struct {
	Service    ServiceConfig       `yaml:"service"`
	Auth       AuthConfig          `yaml:"auth"`
	Accounting AccountingConfig    `yaml:"accounting"`
	Storage    StorageConfig       `yaml:"storage"`
	Database   DatabaseConfig      `yaml:"database"`
	Redis      redis.Config        `yaml:"redis"`
	Minio      storage.MinioConfig `yaml:"minio"`
	Visits     VisitsConfig        `yaml:"visits"`
	RateLimit  RateLimitConfig     `yaml:"rate_limit"`
	Logging    LoggingConfig       `yaml:"logging"`
	PprofPort  int                 `env:"PPROF_PORT" yaml:"pprof_port"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `env:"CLICKCOUNTER_PORT" yaml:"port"`
	Debug   bool   `env:"APP_DEBUG"         yaml:"debug"`
	// CORSOrigins defaults to every origin since banners call /c cross-site.
	CORSOrigins []string `env:"CLICKCOUNTER_CORS_ORIGINS" yaml:"cors_origins"`
}

// AuthConfig holds the shared secret for protected endpoints.
type AuthConfig struct {
	Secret string `env:"CLICKCOUNTER_AUTH_SECRET" yaml:"secret"`
}

// AccountingConfig holds crediting constants and store retry bounds.
// Decimal values are strings so they parse exactly.
type AccountingConfig struct {
	ClickIncrement    string        `env:"CLICKCOUNTER_CLICK_INCREMENT" yaml:"click_increment"`
	TotalBudget       string        `env:"CLICKCOUNTER_TOTAL_BUDGET"    yaml:"total_budget"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
}

// StorageConfig selects backends.
type StorageConfig struct {
	Records string        `env:"CLICKCOUNTER_RECORD_STORE" yaml:"records"`
	Assets  string        `env:"CLICKCOUNTER_ASSET_STORE"  yaml:"assets"`
	Timeout time.Duration `yaml:"timeout"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host     string `env:"POSTGRES_CLICKCOUNTER_HOST"     yaml:"host"`
	Port     int    `env:"POSTGRES_CLICKCOUNTER_PORT"     yaml:"port"`
	User     string `env:"POSTGRES_CLICKCOUNTER_USER"     yaml:"user"`
	Password string `env:"POSTGRES_CLICKCOUNTER_PASSWORD" yaml:"password"`
	Database string `env:"POSTGRES_CLICKCOUNTER_DB"       yaml:"database"`
	SSLMode  string `env:"POSTGRES_CLICKCOUNTER_SSLMODE"  yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// URL returns the connection string in URL form, as golang-migrate expects.
func (d *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// VisitsConfig tunes the visit event writer.
type VisitsConfig struct {
	BufferSize     int           `yaml:"buffer_size"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
	FlushThreshold int           `yaml:"flush_threshold"`

	// UserAgentRegexes is an optional uap-go regexes.yaml. Empty uses the bundled set.
	UserAgentRegexes string `env:"CLICKCOUNTER_UA_REGEXES" yaml:"user_agent_regexes"`
}

// RateLimitConfig holds per-IP click rate limiting configuration.
type RateLimitConfig struct {
	Enabled           bool    `env:"CLICKCOUNTER_RATE_LIMIT" yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	return infraconfig.LoadWithDefaults[Config](path, setDefaults)
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setAccountingDefaults(&cfg.Accounting)
	setStorageDefaults(&cfg.Storage)
	setDatabaseDefaults(&cfg.Database)
	setRedisDefaults(&cfg.Redis)
	setMinioDefaults(&cfg.Minio)
	setVisitsDefaults(&cfg.Visits)
	setRateLimitDefaults(&cfg.RateLimit)
	setLoggingDefaults(&cfg.Logging)
}

func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Version == "" {
		svc.Version = defaultVersion
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
	if len(svc.CORSOrigins) == 0 {
		svc.CORSOrigins = []string{"*"}
	}
}

func setAccountingDefaults(acct *AccountingConfig) {
	if acct.ClickIncrement == "" {
		acct.ClickIncrement = defaultClickIncrement
	}
	if acct.TotalBudget == "" {
		acct.TotalBudget = defaultTotalBudget
	}
	if acct.MaxAttempts == 0 {
		acct.MaxAttempts = defaultMaxAttempts
	}
	if acct.RetryInitialDelay == 0 {
		acct.RetryInitialDelay = defaultRetryInitialDelay
	}
	if acct.RetryMaxDelay == 0 {
		acct.RetryMaxDelay = defaultRetryMaxDelay
	}
}

func setStorageDefaults(s *StorageConfig) {
	if s.Records == "" {
		s.Records = DriverMemory
	}
	if s.Assets == "" {
		s.Assets = DriverMemory
	}
	if s.Timeout == 0 {
		s.Timeout = defaultStorageTimeout
	}
}

func setDatabaseDefaults(db *DatabaseConfig) {
	if db.Host == "" {
		db.Host = defaultDBHost
	}
	if db.Port == 0 {
		db.Port = defaultDBPort
	}
	if db.User == "" {
		db.User = defaultDBUser
	}
	if db.Database == "" {
		db.Database = defaultDBName
	}
	if db.SSLMode == "" {
		db.SSLMode = defaultDBSSLMode
	}
}

func setRedisDefaults(r *redis.Config) {
	if r.Address == "" {
		r.Address = defaultRedisAddress
	}
	if r.KeyPrefix == "" {
		r.KeyPrefix = defaultRedisKeyPrefix
	}
}

func setMinioDefaults(m *storage.MinioConfig) {
	if m.Endpoint == "" {
		m.Endpoint = defaultMinioEndpoint
	}
	if m.Bucket == "" {
		m.Bucket = defaultMinioBucket
	}
}

func setVisitsDefaults(v *VisitsConfig) {
	if v.BufferSize == 0 {
		v.BufferSize = defaultVisitBufferSize
	}
	if v.FlushInterval == 0 {
		v.FlushInterval = defaultVisitFlushInterval
	}
	if v.FlushThreshold == 0 {
		v.FlushThreshold = defaultVisitFlushThreshold
	}
}

func setRateLimitDefaults(rl *RateLimitConfig) {
	if rl.RequestsPerSecond == 0 {
		rl.RequestsPerSecond = defaultRateLimitRPS
	}
	if rl.Burst == 0 {
		rl.Burst = defaultRateLimitBurst
	}
}

func setLoggingDefaults(log *LoggingConfig) {
	if log.Level == "" {
		log.Level = defaultLoggingLevel
	}
	if log.Format == "" {
		log.Format = defaultLoggingFmt
	}
}

// Validate validates the configuration. All problems are reported together.
func (c *Config) Validate() error {
	errs := []error{
		infraconfig.ValidatePort("service.port", c.Service.Port),
		infraconfig.ValidateOneOf("storage.records", c.Storage.Records, DriverMemory, DriverPostgres, DriverRedis),
		infraconfig.ValidateOneOf("storage.assets", c.Storage.Assets, DriverMemory, DriverPostgres, DriverMinio),
		infraconfig.ValidatePositive("accounting.max_attempts", c.Accounting.MaxAttempts),
		infraconfig.ValidatePositive("visits.buffer_size", c.Visits.BufferSize),
		infraconfig.ValidatePositive("visits.flush_threshold", c.Visits.FlushThreshold),
		infraconfig.ValidateLogLevel("logging.level", c.Logging.Level),
		infraconfig.ValidateOneOf("logging.format", c.Logging.Format, "json", "console"),
	}

	if _, err := c.AccountingSettings(); err != nil {
		errs = append(errs, &infraconfig.ValidationError{Field: "accounting", Message: err.Error()})
	}
	if c.Storage.Timeout <= 0 {
		errs = append(errs, &infraconfig.ValidationError{Field: "storage.timeout", Message: "must be positive"})
	}
	if c.PprofPort != 0 {
		errs = append(errs, infraconfig.ValidatePort("pprof_port", c.PprofPort))
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, &infraconfig.ValidationError{
				Field: "rate_limit.requests_per_second", Message: "must be positive",
			})
		}
		errs = append(errs, infraconfig.ValidatePositive("rate_limit.burst", c.RateLimit.Burst))
	}
	if c.UsesPostgres() {
		errs = append(errs,
			infraconfig.ValidateRequired("database.host", c.Database.Host),
			infraconfig.ValidateRequired("database.database", c.Database.Database),
		)
	}
	if c.Storage.Records == DriverRedis {
		errs = append(errs, infraconfig.ValidateRequired("redis.address", c.Redis.Address))
	}
	if c.Storage.Assets == DriverMinio {
		errs = append(errs,
			infraconfig.ValidateRequired("minio.endpoint", c.Minio.Endpoint),
			infraconfig.ValidateRequired("minio.bucket", c.Minio.Bucket),
		)
	}

	return errors.Join(errs...)
}

// UsesPostgres reports whether a backend needs PostgreSQL. Visit events are
// written to PostgreSQL whenever it is configured.
func (c *Config) UsesPostgres() bool {
	return c.Storage.Records == DriverPostgres || c.Storage.Assets == DriverPostgres
}

// AccountingSettings parses the crediting constants.
func (c *Config) AccountingSettings() (domain.Accounting, error) {
	return domain.NewAccounting(c.Accounting.ClickIncrement, c.Accounting.TotalBudget)
}
