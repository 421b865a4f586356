package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// clearEnv blanks every variable Load consults so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"LISTEN_ADDR", "STORAGE_DRIVER", "STORAGE_CONNECTION_STRING", "TASKS_TABLE", "USERS_TABLE",
		"SETTINGS_TABLE", "EVENTS_QUEUE", "SQLITE_PATH", "REDIS_CONNECTION_STRING", "AUTH_SECRET",
		"AUTH0_DOMAIN", "AUTH0_AUDIENCE", "CACHE_TTL", "DEDUPER_TTL", "TOKEN_TTL", "PUBLISH_TIMEOUT",
		"PUBLISH_WORKERS", "PUBLISH_BUFFER", "DEBUG",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestWriteDefaultThenLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "conf", DefaultConfigFileName)
	if err := WriteDefault(path); err != nil {
		t.Fatalf("write default: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "24h0m0s") {
		t.Fatalf("durations should be written as strings:\n%s", data)
	}

	// The default file has no auth configured.
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "auth") {
		t.Fatalf("expected auth validation error, got %v", err)
	}

	t.Setenv("AUTH_SECRET", "s3cret")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Default()
	want.Auth.Secret = "s3cret"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "planner.toml")
	body := `
listen_addr = ":9000"

[storage]
driver = "azure"
connection_string = "UseDevelopmentStorage=true"

[redis]
connection_string = "localhost:6379"
cache_ttl = "1m"

[auth]
auth0_domain = "tenant.example.com"
auth0_audience = "planner"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("TASKS_TABLE", "TasksV2")
	t.Setenv("PUBLISH_WORKERS", "0")
	t.Setenv("DEDUPER_TTL", "2h")
	t.Setenv("DEBUG", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9000" || cfg.Storage.Driver != DriverAzure || cfg.Storage.TasksTable != "TasksV2" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Storage.UsersTable != "Users" {
		t.Fatalf("unset keys should keep defaults, got %q", cfg.Storage.UsersTable)
	}
	if time.Duration(cfg.Redis.CacheTTL) != time.Minute || time.Duration(cfg.Redis.DeduperTTL) != 2*time.Hour {
		t.Fatalf("unexpected TTLs %v %v", cfg.Redis.CacheTTL, cfg.Redis.DeduperTTL)
	}
	if cfg.Publisher.Workers != 0 || !cfg.Debug {
		t.Fatalf("unexpected overrides %+v debug=%v", cfg.Publisher, cfg.Debug)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "bad duration", env: map[string]string{"AUTH_SECRET": "s", "CACHE_TTL": "soon"}, want: "CACHE_TTL"},
		{name: "bad int", env: map[string]string{"AUTH_SECRET": "s", "PUBLISH_BUFFER": "many"}, want: "PUBLISH_BUFFER"},
		{name: "unknown driver", env: map[string]string{"AUTH_SECRET": "s", "STORAGE_DRIVER": "postgres"}, want: "unknown storage driver"},
		{name: "azure without connection", env: map[string]string{"AUTH_SECRET": "s", "STORAGE_DRIVER": "Azure"}, want: "connection string"},
		{name: "auth0 without audience", env: map[string]string{"AUTH0_DOMAIN": "tenant"}, want: "audience"},
		{name: "negative workers", env: map[string]string{"AUTH_SECRET": "s", "PUBLISH_WORKERS": "-1"}, want: "negative"},
		{name: "zero ttl", env: map[string]string{"AUTH_SECRET": "s", "DEDUPER_TTL": "0s"}, want: "TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for a missing file")
	}
}
