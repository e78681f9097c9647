package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rushteam/vidrec/core"
)

func TestLoadSettingsLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vidrec.yaml")
	content := `
cache:
  backend: badger
  badger_path: /tmp/vidrec-cache
  max_age: 2h
  ttl: 6h
similar:
  compute_k: 80
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VIDREC_SIMILAR_COMPUTE_K", "120")
	t.Setenv("VIDREC_LOG_LEVEL", "debug")

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.Cache.Backend != "badger" || s.Cache.BadgerPath != "/tmp/vidrec-cache" {
		t.Errorf("cache = %+v", s.Cache)
	}
	if s.Cache.MaxAge != 2*time.Hour {
		t.Errorf("max_age = %v", s.Cache.MaxAge)
	}
	if s.Cache.TTL != 6*time.Hour {
		t.Errorf("ttl = %v", s.Cache.TTL)
	}
	if s.Similar.ComputeK != 120 {
		t.Errorf("env override lost: compute_k = %d", s.Similar.ComputeK)
	}
	if s.Log.Level != "debug" {
		t.Errorf("log level = %q", s.Log.Level)
	}
	// 默认值保留
	if s.SQL.Driver != "sqlite" || s.Breaker.MaxFailures != 5 {
		t.Errorf("defaults lost: %+v %+v", s.SQL, s.Breaker)
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"unknown backend", func(s *Settings) { s.Cache.Backend = "memcached" }},
		{"redis without addr", func(s *Settings) { s.Cache.Backend = "redis" }},
		{"badger without path", func(s *Settings) { s.Cache.Backend = "badger" }},
		{"feast without host", func(s *Settings) { s.Feast.Enabled = true }},
		{"unknown driver", func(s *Settings) { s.SQL.Driver = "mysql" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(s)
			err := s.Validate()
			if err == nil || !core.IsConfig(err) {
				t.Fatalf("expected config error, got %v", err)
			}
		})
	}
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestEnvTransform(t *testing.T) {
	tests := map[string]string{
		"VIDREC_CACHE_MAX_AGE":        "cache.max_age",
		"VIDREC_SQL_DSN":              "sql.dsn",
		"VIDREC_ENGINE_PROFILES_PATH": "engine.profiles_path",
	}
	for in, want := range tests {
		if got := envTransform(in); got != want {
			t.Errorf("envTransform(%q) = %q, want %q", in, got, want)
		}
	}
}
