package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

const DefaultRedisKey = "eventcal:events"

// LogConfig controls the global logger.
type LogConfig struct {
	// Level is one of debug, info, error.
	Level string `yaml:"level" json:"level"`
	// Format is "console" (default) or "json".
	Format string `yaml:"format" json:"format"`
}

// RedisConfig describes the Redis backend. The whole collection lives under Key.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Key      string `yaml:"key" json:"key"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn" json:"dsn"`
}

// StorageConfig selects the durable medium for the event collection.
type StorageConfig struct {
	// Driver is one of "file" (default), "redis", "postgres".
	Driver string `yaml:"driver" json:"driver"`
	// Path is the JSON document used by the file driver.
	Path     string         `yaml:"path" json:"path"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
}

// ReminderConfig controls the background reminder scanner.
type ReminderConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Schedule is a cron spec (e.g. "@every 1m" or "* * * * *").
	Schedule string `yaml:"schedule" json:"schedule"`
}

// BasicAuthConfig holds optional HTTP Basic Auth credentials. Auth is off
// unless both fields are set.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	Log       LogConfig      `yaml:"log" json:"log"`
	Storage   StorageConfig  `yaml:"storage" json:"storage"`
	Reminders ReminderConfig `yaml:"reminders" json:"reminders"`
	Metrics   MetricsConfig  `yaml:"metrics" json:"metrics"`

	// CORSOrigins lists origins allowed to call the API from a browser.
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	// RateLimit is the per-client request rate (requests/second); 0 disables it.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`

	// BasicAuth protects every route except the health check.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen: "127.0.0.1:3001",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			Driver: DriverFile,
			Path:   "./data/events.json",
			Redis: RedisConfig{
				Addr: "127.0.0.1:6379",
				Key:  DefaultRedisKey,
			},
		},
		Reminders: ReminderConfig{
			Enabled:  true,
			Schedule: "@every 1m",
		},
		Metrics:     MetricsConfig{Enabled: true},
		CORSOrigins: []string{"*"},
		RateLimit:   20,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "error":
		c.Log.Level = strings.ToLower(c.Log.Level)
	default:
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format != "json" {
		c.Log.Format = def.Log.Format
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverFile
	}
	if c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
	}
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = def.Storage.Redis.Addr
	}
	if c.Storage.Redis.Key == "" {
		c.Storage.Redis.Key = DefaultRedisKey
	}

	if c.Reminders.Schedule == "" {
		c.Reminders.Schedule = def.Reminders.Schedule
	}
	if c.CORSOrigins == nil {
		c.CORSOrigins = def.CORSOrigins
	}
	if c.RateLimit < 0 {
		c.RateLimit = 0
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled and normalized.
//   - In both cases EVENTCAL_* environment variables (optionally from a
//     .env file in the working directory) override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			cfg.ApplyEnv()
			cfg.Normalize()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	cfg.Normalize()

	return &cfg, nil
}

// ApplyEnv overrides fields from EVENTCAL_* environment variables.
func (c *Config) ApplyEnv() {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	setString("EVENTCAL_LISTEN", &c.Listen)
	setString("EVENTCAL_LOG_LEVEL", &c.Log.Level)
	setString("EVENTCAL_LOG_FORMAT", &c.Log.Format)
	setString("EVENTCAL_STORAGE_DRIVER", &c.Storage.Driver)
	setString("EVENTCAL_STORAGE_PATH", &c.Storage.Path)
	setString("EVENTCAL_REDIS_ADDR", &c.Storage.Redis.Addr)
	setString("EVENTCAL_REDIS_PASSWORD", &c.Storage.Redis.Password)
	setString("EVENTCAL_REDIS_KEY", &c.Storage.Redis.Key)
	setString("EVENTCAL_POSTGRES_DSN", &c.Storage.Postgres.DSN)
	setString("EVENTCAL_REMINDER_SCHEDULE", &c.Reminders.Schedule)

	if v, err := strconv.Atoi(os.Getenv("EVENTCAL_REDIS_DB")); err == nil {
		c.Storage.Redis.DB = v
	}
	if v, err := strconv.ParseBool(os.Getenv("EVENTCAL_REMINDERS_ENABLED")); err == nil {
		c.Reminders.Enabled = v
	}
	if v, err := strconv.ParseBool(os.Getenv("EVENTCAL_METRICS_ENABLED")); err == nil {
		c.Metrics.Enabled = v
	}
	if v := os.Getenv("EVENTCAL_CORS_ORIGINS"); v != "" {
		c.CORSOrigins = strings.Split(v, ",")
	}
	if v, err := strconv.ParseFloat(os.Getenv("EVENTCAL_RATE_LIMIT"), 64); err == nil {
		c.RateLimit = v
	}

	user, pass := os.Getenv("EVENTCAL_BASIC_AUTH_USER"), os.Getenv("EVENTCAL_BASIC_AUTH_PASSWORD")
	if user != "" && pass != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eventcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
