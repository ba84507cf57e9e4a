package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Clustering.Strategy != "partitional" || cfg.Clustering.Seed != 42 {
		t.Fatalf("unexpected clustering defaults: %+v", cfg.Clustering)
	}
	if got := cfg.CandidateK(); len(got) != 12 || got[0] != 8 || got[11] != 19 {
		t.Fatalf("CandidateK = %v, want 8..19", got)
	}
	if cfg.HTTPAddr() != "0.0.0.0:8000" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr())
	}
}

func TestLoadTOMLWithEnvOverride(t *testing.T) {
	path := writeFile(t, "config.toml", `
[corpus]
path = "testdata/news.json"

[clustering]
strategy = "hdbscan"
min_k = 3
max_k = 5

[redis]
enabled = true
cache_ttl = "PT1M"
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CLUSTERING_MAX_K", "6")
	t.Setenv("REDIS_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Corpus.Path != "testdata/news.json" || cfg.Clustering.Strategy != "hdbscan" {
		t.Fatalf("file values not applied: %+v %+v", cfg.Corpus, cfg.Clustering)
	}
	if cfg.Clustering.MinK != 3 || cfg.Clustering.MaxK != 6 {
		t.Fatalf("k range = [%d, %d], want [3, 6]", cfg.Clustering.MinK, cfg.Clustering.MaxK)
	}
	if cfg.Redis.Enabled {
		t.Fatal("env override of redis.enabled ignored")
	}
	if got := MustDuration(cfg.Redis.CacheTTL); got != time.Minute {
		t.Fatalf("cache ttl = %v", got)
	}
	if cfg.Embedding.BatchSize != 16 {
		t.Fatalf("default batch size lost: %d", cfg.Embedding.BatchSize)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
app:
  port: 9090
  request_timeout: PT2M
clustering:
  strategy: agglomerative
`)
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Port != 9090 || cfg.Clustering.Strategy != "agglomerative" {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
	if got := MustDuration(cfg.App.RequestTimeout); got != 2*time.Minute {
		t.Fatalf("request timeout = %v", got)
	}
	if cfg.Clustering.MinK != 8 {
		t.Fatalf("default min_k lost: %d", cfg.Clustering.MinK)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty corpus path", mutate: func(c *Config) { c.Corpus.Path = " " }},
		{name: "unknown source", mutate: func(c *Config) { c.Corpus.Source = "s3" }},
		{name: "mysql source without mysql", mutate: func(c *Config) { c.Corpus.Source = "mysql" }},
		{name: "unknown strategy", mutate: func(c *Config) { c.Clustering.Strategy = "spectral" }},
		{name: "k below two", mutate: func(c *Config) { c.Clustering.MinK = 1 }},
		{name: "inverted range", mutate: func(c *Config) { c.Clustering.MaxK = 4 }},
		{name: "unknown provider", mutate: func(c *Config) { c.Embedding.Provider = "tfidf" }},
		{name: "bad duration", mutate: func(c *Config) { c.LLM.Timeout = "15s" }},
		{name: "queue missing", mutate: func(c *Config) { c.RabbitMQ.Enabled = true; c.RabbitMQ.RefitQueue = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}

	if err := defaultConfig().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestMustDuration(t *testing.T) {
	if got := MustDuration("PT90S"); got != 90*time.Second {
		t.Fatalf("MustDuration = %v, want 90s", got)
	}
	if got := MustDuration(""); got != 0 {
		t.Fatalf("MustDuration(empty) = %v, want 0", got)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("MustDuration did not panic on a malformed duration")
		}
	}()
	MustDuration("15s")
}
