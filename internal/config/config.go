// Package config loads bridge configuration from a YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete bridge configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Permission PermissionConfig `yaml:"permission"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	HTTPAddr     string        `yaml:"http_addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"` // sqlite: mmssms.db
	DSN    string `yaml:"dsn"`  // postgres
	Table  string `yaml:"table"`
}

// Permission modes.
const (
	ModeStatic = "static"
	ModeFile   = "file"
)

type PermissionConfig struct {
	Mode       string `yaml:"mode"`
	GrantsFile string `yaml:"grants_file"`
	// Granted seeds the static authority.
	Granted bool `yaml:"granted"`
}

type RateLimitConfig struct {
	QPS   float64 `yaml:"qps"` // 0 disables
	Burst int     `yaml:"burst"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json | color
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddr:     "127.0.0.1:8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
			Path:   "/data/data/com.android.providers.telephony/databases/mmssms.db",
			Table:  "sms",
		},
		Permission: PermissionConfig{
			Mode:       ModeFile,
			GrantsFile: "grants.yaml",
		},
		RateLimit: RateLimitConfig{QPS: 20, Burst: 40},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file. A missing file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with its value, or empty when unset.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envRef.FindStringSubmatch(match)[1])
	})
}

func applyEnv(c *Config) {
	c.Server.HTTPAddr = env("SMSBRIDGE_HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.ReadTimeout = durEnv("SMSBRIDGE_READ_TIMEOUT_MS", c.Server.ReadTimeout)
	c.Server.WriteTimeout = durEnv("SMSBRIDGE_WRITE_TIMEOUT_MS", c.Server.WriteTimeout)

	c.Store.Driver = env("SMSBRIDGE_STORE_DRIVER", c.Store.Driver)
	c.Store.Path = env("SMSBRIDGE_STORE_PATH", c.Store.Path)
	c.Store.DSN = env("DATABASE_URL", c.Store.DSN)
	c.Store.Table = env("SMSBRIDGE_STORE_TABLE", c.Store.Table)

	c.Permission.Mode = env("SMSBRIDGE_PERMISSION_MODE", c.Permission.Mode)
	c.Permission.GrantsFile = env("SMSBRIDGE_GRANTS_FILE", c.Permission.GrantsFile)
	c.Permission.Granted = boolEnv("SMSBRIDGE_PERMISSION_GRANTED", c.Permission.Granted)

	c.RateLimit.QPS = atofEnv("SMSBRIDGE_RATE_QPS", c.RateLimit.QPS)
	c.RateLimit.Burst = atoiEnv("SMSBRIDGE_RATE_BURST", c.RateLimit.Burst)

	c.Logging.Level = env("SMSBRIDGE_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = env("SMSBRIDGE_LOG_FORMAT", c.Logging.Format)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver %q is not one of sqlite, postgres, memory", c.Store.Driver)
	}
	switch c.Permission.Mode {
	case ModeStatic:
	case ModeFile:
		if c.Permission.GrantsFile == "" {
			return fmt.Errorf("permission.grants_file is required in file mode")
		}
	default:
		return fmt.Errorf("permission.mode %q is not one of static, file", c.Permission.Mode)
	}
	if c.RateLimit.QPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit values must not be negative")
	}
	if c.RateLimit.QPS > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("ratelimit.burst must be positive when ratelimit.qps is set")
	}
	return nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoiEnv(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func atofEnv(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func durEnv(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}

func boolEnv(k string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
