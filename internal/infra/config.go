package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Migyaba/external-settlement-service/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent identifies this service to the hub and directory
	DefaultUserAgent = "external-settlement-service/1.0"

	// DefaultConfigPath is used when SETTLEMENT_CONFIG is not set
	DefaultConfigPath = "configs/config.yaml"
)

// Config holds every setting of the service. It is loaded once at startup and
// treated as read-only afterwards.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr               string  `yaml:"addr"`
		APIKey             string  `yaml:"api_key"`
		RateLimitRPS       float64 `yaml:"rate_limit_rps"`
		RateLimitBurst     int     `yaml:"rate_limit_burst"`
		ShutdownTimeoutSec int     `yaml:"shutdown_timeout_sec"`
	} `yaml:"server"`

	Hub struct {
		BaseURL            string `yaml:"base_url"`
		AuthToken          string `yaml:"auth_token"`
		TimeoutMS          int    `yaml:"timeout_ms"`
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	} `yaml:"hub"`

	Directory struct {
		BaseURL            string `yaml:"base_url"`
		TimeoutMS          int    `yaml:"timeout_ms"`
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
		CacheTTLSec        int    `yaml:"cache_ttl_sec"`
		RefreshIntervalSec int    `yaml:"refresh_interval_sec"`
		RedisAddr          string `yaml:"redis_addr"`
		RedisDB            int    `yaml:"redis_db"`
	} `yaml:"directory"`

	Storage struct {
		Driver      string `yaml:"driver"` // sqlite | postgres
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"storage"`

	Reconcile struct {
		// nil when unset; an explicit "0" demands exact amounts
		AmountTolerance *decimal.Decimal `yaml:"amount_tolerance"`
	} `yaml:"reconcile"`

	Notify struct {
		Driver          string `yaml:"driver"` // log | nats
		NATSURL         string `yaml:"nats_url"`
		SubjectPrefix   string `yaml:"subject_prefix"`
		OperatorAddress string `yaml:"operator_address"`
		Concurrency     int    `yaml:"concurrency"`
		TimeoutSec      int    `yaml:"timeout_sec"`
		Async           *bool  `yaml:"async"`
	} `yaml:"notify"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// LoadConfig reads, overrides and validates the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// Environment wins over the file so secrets never have to live in it
	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ConfigPath resolves the configuration file location.
func ConfigPath() string {
	if p := os.Getenv("SETTLEMENT_CONFIG"); p != "" {
		return p
	}
	return DefaultConfigPath
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "external-settlement-service"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Server.RateLimitBurst <= 0 && c.Server.RateLimitRPS > 0 {
		c.Server.RateLimitBurst = int(c.Server.RateLimitRPS * 2)
		if c.Server.RateLimitBurst < 1 {
			c.Server.RateLimitBurst = 1
		}
	}
	if c.Server.ShutdownTimeoutSec <= 0 {
		c.Server.ShutdownTimeoutSec = 15
	}
	if c.Hub.TimeoutMS <= 0 {
		c.Hub.TimeoutMS = 5000
	}
	if c.Directory.TimeoutMS <= 0 {
		c.Directory.TimeoutMS = 5000
	}
	if c.Directory.CacheTTLSec <= 0 {
		c.Directory.CacheTTLSec = 300
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/settlements.db"
	}
	if c.Reconcile.AmountTolerance == nil {
		tol := domain.DefaultAmountTolerance
		c.Reconcile.AmountTolerance = &tol
	}
	if c.Notify.Driver == "" {
		c.Notify.Driver = "log"
	}
	if c.Notify.SubjectPrefix == "" {
		c.Notify.SubjectPrefix = "settlement.notifications"
	}
	if c.Notify.Concurrency <= 0 {
		c.Notify.Concurrency = 4
	}
	if c.Notify.TimeoutSec <= 0 {
		c.Notify.TimeoutSec = 30
	}
	if c.Notify.Async == nil {
		async := true
		c.Notify.Async = &async
	}
	if c.Logging.File == "" {
		c.Logging.File = "logs/settlement.log"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if !isHTTPURL(c.Hub.BaseURL) {
		return &domain.ConfigError{Field: "hub.base_url", Err: fmt.Errorf("invalid URL %q", c.Hub.BaseURL)}
	}
	if !isHTTPURL(c.Directory.BaseURL) {
		return &domain.ConfigError{Field: "directory.base_url", Err: fmt.Errorf("invalid URL %q", c.Directory.BaseURL)}
	}

	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return &domain.ConfigError{Field: "storage.postgres_dsn", Err: errors.New("required for postgres driver")}
		}
	default:
		return &domain.ConfigError{Field: "storage.driver", Err: fmt.Errorf("unsupported driver %q", c.Storage.Driver)}
	}

	switch c.Notify.Driver {
	case "log":
	case "nats":
		if c.Notify.NATSURL == "" {
			return &domain.ConfigError{Field: "notify.nats_url", Err: errors.New("required for nats driver")}
		}
	default:
		return &domain.ConfigError{Field: "notify.driver", Err: fmt.Errorf("unsupported driver %q", c.Notify.Driver)}
	}

	if c.Reconcile.AmountTolerance != nil && c.Reconcile.AmountTolerance.IsNegative() {
		return &domain.ConfigError{Field: "reconcile.amount_tolerance", Err: errors.New("must not be negative")}
	}
	if c.Server.RateLimitRPS < 0 {
		return &domain.ConfigError{Field: "server.rate_limit_rps", Err: errors.New("must not be negative")}
	}

	return nil
}

// HubTimeout returns the per-call hub timeout.
func (c *Config) HubTimeout() time.Duration {
	return time.Duration(c.Hub.TimeoutMS) * time.Millisecond
}

// DirectoryTimeout returns the per-call directory timeout.
func (c *Config) DirectoryTimeout() time.Duration {
	return time.Duration(c.Directory.TimeoutMS) * time.Millisecond
}

// ShutdownTimeout bounds graceful shutdown including the notification drain.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSec) * time.Second
}

// AmountTolerance returns the configured amount slack, or the default when unset.
func (c *Config) AmountTolerance() decimal.Decimal {
	if c.Reconcile.AmountTolerance == nil {
		return domain.DefaultAmountTolerance
	}
	return *c.Reconcile.AmountTolerance
}

// AsyncNotify reports whether the stakeholder fan-out runs detached.
func (c *Config) AsyncNotify() bool {
	return c.Notify.Async == nil || *c.Notify.Async
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// overrideWithEnv replaces file values with environment variables when present.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("HUB_BASE_URL"); v != "" {
		cfg.Hub.BaseURL = v
	}
	if v := os.Getenv("HUB_AUTH_TOKEN"); v != "" {
		cfg.Hub.AuthToken = v
	}
	if v := os.Getenv("LEDGER_URL"); v != "" {
		cfg.Directory.BaseURL = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.Driver = "postgres"
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Directory.RedisAddr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.Notify.Driver = "nats"
		cfg.Notify.NATSURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
