package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if len(cfg.Importer.Feeds) != 2 {
		t.Fatalf("expected 2 default feeds, got %v", cfg.Importer.Feeds)
	}
	if cfg.Importer.Concurrency != 5 {
		t.Fatalf("expected default concurrency 5, got %d", cfg.Importer.Concurrency)
	}
	if cfg.Queue.Attempts != 3 {
		t.Fatalf("expected default attempts 3, got %d", cfg.Queue.Attempts)
	}
	if got := cfg.FetchTimeout(); got != 20*time.Second {
		t.Fatalf("expected fetch timeout 20s, got %v", got)
	}
	backoff := cfg.Backoff()
	if backoff.InitialDelay != time.Second || backoff.MaxDelay != 30*time.Second {
		t.Fatalf("unexpected backoff policy: %+v", backoff)
	}
	if cfg.Scheduler.Cron != "0 * * * *" {
		t.Fatalf("expected hourly schedule, got %q", cfg.Scheduler.Cron)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
importer:
  feeds: ["https://feeds.example.com/jobs.rss"]
  concurrency: 8
  archive_feeds: true
http:
  timeout_seconds: 45
  user_agent: custom-agent
queue:
  provider: redis
  redis_url: redis://localhost:6379/0
  attempts: 5
  backoff_initial_ms: 100
  backoff_max_ms: 500
db:
  provider: postgres
  dsn: postgres://localhost/jobs
storage:
  provider: gcs
  gcs_bucket: feed-archive
scheduler:
  enabled: false
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if len(cfg.Importer.Feeds) != 1 || cfg.Importer.Feeds[0] != "https://feeds.example.com/jobs.rss" {
		t.Fatalf("expected feed override to apply, got %v", cfg.Importer.Feeds)
	}
	if cfg.Queue.Provider != "redis" || cfg.Queue.Attempts != 5 {
		t.Fatalf("expected queue overrides to apply: %+v", cfg.Queue)
	}
	if cfg.DB.Provider != "postgres" || cfg.DB.DSN != "postgres://localhost/jobs" {
		t.Fatalf("expected db overrides to apply: %+v", cfg.DB)
	}
	if cfg.Storage.Provider != "gcs" || cfg.Storage.GCSBucket != "feed-archive" {
		t.Fatalf("expected storage overrides to apply: %+v", cfg.Storage)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 8080},
		Importer: ImporterConfig{Concurrency: 5},
		HTTP:     HTTPConfig{TimeoutSeconds: 20},
		Queue:    QueueConfig{Provider: "memory", Attempts: 3},
		DB:       DBConfig{Provider: "memory"},
		Storage:  StorageConfig{Provider: "memory"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Importer.Concurrency = 0
				return c
			}(),
			want: "importer.concurrency",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.HTTP.TimeoutSeconds = 0
				return c
			}(),
			want: "http.timeout_seconds",
		},
		{
			name: "redis queue without url",
			cfg: func() Config {
				c := base
				c.Queue.Provider = "redis"
				return c
			}(),
			want: "queue.redis_url",
		},
		{
			name: "unknown queue provider",
			cfg: func() Config {
				c := base
				c.Queue.Provider = "kafka"
				return c
			}(),
			want: "queue.provider",
		},
		{
			name: "postgres without dsn",
			cfg: func() Config {
				c := base
				c.DB.Provider = "postgres"
				return c
			}(),
			want: "db.dsn",
		},
		{
			name: "gcs without bucket",
			cfg: func() Config {
				c := base
				c.Storage.Provider = "gcs"
				return c
			}(),
			want: "storage.gcs_bucket",
		},
		{
			name: "pubsub missing topic",
			cfg: func() Config {
				c := base
				c.PubSub.Enabled = true
				c.PubSub.ProjectID = "project"
				return c
			}(),
			want: "pubsub",
		},
		{
			name: "scheduler missing cron",
			cfg: func() Config {
				c := base
				c.Scheduler.Enabled = true
				return c
			}(),
			want: "scheduler.cron",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
