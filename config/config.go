package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	DefaultConfigFileName = "planner.toml"
	DefaultSQLitePath     = "planner.db"

	DriverAzure  = "azure"
	DriverSQLite = "sqlite"
)

// Duration is a time.Duration written as a Go duration string ("24h") in
// TOML files and environment variables.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type StorageConfig struct {
	Driver           string `toml:"driver"`
	ConnectionString string `toml:"connection_string"`
	TasksTable       string `toml:"tasks_table"`
	UsersTable       string `toml:"users_table"`
	SettingsTable    string `toml:"settings_table"`
	EventsQueue      string `toml:"events_queue"`
	SQLitePath       string `toml:"sqlite_path"`
}

type RedisConfig struct {
	// ConnectionString accepts a redis:// URL or the Azure
	// "host:port,password=...,ssl=True" form. Empty disables caching and
	// idempotency tracking.
	ConnectionString string   `toml:"connection_string"`
	CacheTTL         Duration `toml:"cache_ttl"`
	DeduperTTL       Duration `toml:"deduper_ttl"`
}

type AuthConfig struct {
	// Secret signs locally issued HS256 tokens.
	Secret string `toml:"secret"`
	// Auth0Domain enables RS256 tokens verified against the tenant JWKS.
	Auth0Domain   string   `toml:"auth0_domain"`
	Auth0Audience string   `toml:"auth0_audience"`
	TokenTTL      Duration `toml:"token_ttl"`
}

type PublisherConfig struct {
	Workers int      `toml:"workers"`
	Buffer  int      `toml:"buffer"`
	Timeout Duration `toml:"timeout"`
}

type Config struct {
	ListenAddr string          `toml:"listen_addr"`
	Debug      bool            `toml:"debug"`
	Storage    StorageConfig   `toml:"storage"`
	Redis      RedisConfig     `toml:"redis"`
	Auth       AuthConfig      `toml:"auth"`
	Publisher  PublisherConfig `toml:"publisher"`
}

// Default returns the configuration used when neither a file nor the
// environment say otherwise.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		Storage: StorageConfig{
			Driver:        DriverSQLite,
			TasksTable:    "Tasks",
			UsersTable:    "Users",
			SettingsTable: "Settings",
			EventsQueue:   "task-events",
			SQLitePath:    DefaultSQLitePath,
		},
		Redis: RedisConfig{
			CacheTTL:   Duration(5 * time.Minute),
			DeduperTTL: Duration(24 * time.Hour),
		},
		Auth: AuthConfig{
			TokenTTL: Duration(24 * time.Hour),
		},
		Publisher: PublisherConfig{
			Workers: 8,
			Buffer:  1024,
			Timeout: Duration(30 * time.Second),
		},
	}
}

// Load reads the TOML file at path (skipped when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to path, replacing the file
// atomically.
func WriteDefault(path string) error {
	data, err := toml.Marshal(Default())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("listen_addr is required")
	}
	switch c.Storage.Driver {
	case DriverAzure:
		s := c.Storage
		if s.ConnectionString == "" {
			return errors.New("missing storage connection string")
		}
		if s.TasksTable == "" || s.UsersTable == "" || s.SettingsTable == "" || s.EventsQueue == "" {
			return errors.New("missing storage table or queue name")
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("missing sqlite path")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Redis.CacheTTL <= 0 || c.Redis.DeduperTTL <= 0 {
		return errors.New("redis TTLs must be greater than zero")
	}
	if c.Auth.Secret == "" && c.Auth.Auth0Domain == "" {
		return errors.New("missing auth config: set a signing secret or an Auth0 domain")
	}
	if c.Auth.Auth0Domain != "" && c.Auth.Auth0Audience == "" {
		return errors.New("missing Auth0 audience")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("token_ttl must be greater than zero")
	}
	if c.Publisher.Workers < 0 || c.Publisher.Buffer < 0 {
		return errors.New("publisher workers and buffer must not be negative")
	}
	if c.Publisher.Timeout <= 0 {
		return errors.New("publisher timeout must be greater than zero")
	}
	return nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"LISTEN_ADDR":               &c.ListenAddr,
		"STORAGE_DRIVER":            &c.Storage.Driver,
		"STORAGE_CONNECTION_STRING": &c.Storage.ConnectionString,
		"TASKS_TABLE":               &c.Storage.TasksTable,
		"USERS_TABLE":               &c.Storage.UsersTable,
		"SETTINGS_TABLE":            &c.Storage.SettingsTable,
		"EVENTS_QUEUE":              &c.Storage.EventsQueue,
		"SQLITE_PATH":               &c.Storage.SQLitePath,
		"REDIS_CONNECTION_STRING":   &c.Redis.ConnectionString,
		"AUTH_SECRET":               &c.Auth.Secret,
		"AUTH0_DOMAIN":              &c.Auth.Auth0Domain,
		"AUTH0_AUDIENCE":            &c.Auth.Auth0Audience,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)

	durations := map[string]*Duration{
		"CACHE_TTL":       &c.Redis.CacheTTL,
		"DEDUPER_TTL":     &c.Redis.DeduperTTL,
		"TOKEN_TTL":       &c.Auth.TokenTTL,
		"PUBLISH_TIMEOUT": &c.Publisher.Timeout,
	}
	for name, dst := range durations {
		if v, ok := os.LookupEnv(name); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("invalid %s: %w", name, err)
			}
		}
	}

	ints := map[string]*int{
		"PUBLISH_WORKERS": &c.Publisher.Workers,
		"PUBLISH_BUFFER":  &c.Publisher.Buffer,
	}
	for name, dst := range ints {
		if v, ok := os.LookupEnv(name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid %s: %w", name, err)
			}
			*dst = n
		}
	}

	if v, ok := os.LookupEnv("DEBUG"); ok {
		if dbg, err := strconv.ParseBool(v); err == nil {
			c.Debug = dbg
		}
	}
	return nil
}
