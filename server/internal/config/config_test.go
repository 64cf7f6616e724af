package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	p := writeConfig(t, `other:
  key: value
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", s.HTTPPort, DefaultHTTPPort)
	}
	if s.Compute.Timeout != DefaultComputeTimeout {
		t.Errorf("compute.timeout: got %v, want %v", s.Compute.Timeout, DefaultComputeTimeout)
	}
	if s.Compute.HealthTimeout != DefaultComputeHealthTimeout {
		t.Errorf("compute.health_timeout: got %v, want %v", s.Compute.HealthTimeout, DefaultComputeHealthTimeout)
	}
	if s.Source.Timeout != DefaultSourceTimeout {
		t.Errorf("source.timeout: got %v, want %v", s.Source.Timeout, DefaultSourceTimeout)
	}
	if s.TopN != DefaultTopN {
		t.Errorf("top_n: got %d, want %d", s.TopN, DefaultTopN)
	}
	if len(s.CORS.Origins) != 1 || s.CORS.Origins[0] != "*" {
		t.Errorf("cors.origins: got %v, want [*]", s.CORS.Origins)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Storage.DBPath != DefaultDBPath {
		t.Errorf("db_path: got %q, want %q", cfg.Server.Storage.DBPath, DefaultDBPath)
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 9091
  compute:
    base_url: http://10.0.0.5:8080
    timeout: 45s
    health_timeout: 3s
  source:
    url: https://example.com/pi.c
    timeout: 2s
    token_env: GH_TOKEN
  storage:
    db_path: /var/lib/pibench/pi.db
    metadata_path: /etc/pibench/algorithms.json
    watch_metadata: true
  cors:
    origins: ["http://localhost:3000"]
  rate_limit:
    enabled: true
    requests_per_minute: 30
  log:
    level: debug
  top_n: 10
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != 9091 {
		t.Errorf("http_port: got %d, want 9091", s.HTTPPort)
	}
	if s.Compute.BaseURL != "http://10.0.0.5:8080" {
		t.Errorf("compute.base_url: got %q", s.Compute.BaseURL)
	}
	if s.Compute.Timeout != 45*time.Second {
		t.Errorf("compute.timeout: got %v, want 45s", s.Compute.Timeout)
	}
	if s.Source.TokenEnv != "GH_TOKEN" {
		t.Errorf("source.token_env: got %q, want GH_TOKEN", s.Source.TokenEnv)
	}
	if !s.Storage.WatchMetadata {
		t.Error("storage.watch_metadata: got false, want true")
	}
	if !s.RateLimit.Enabled || s.RateLimit.RequestsPerMinute != 30 {
		t.Errorf("rate_limit: got %+v", s.RateLimit)
	}
	if s.Log.SlogLevel() != slog.LevelDebug {
		t.Errorf("log level: got %v, want debug", s.Log.SlogLevel())
	}
	if s.TopN != 10 {
		t.Errorf("top_n: got %d, want 10", s.TopN)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_C_BASE", "http://192.168.18.40:8080")
	t.Setenv("SERVER_C_TIMEOUT", "60")
	t.Setenv("SERVER_C_HEALTH_TIMEOUT", "1")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("RATE_LIMIT_ENABLED", "True")
	t.Setenv("PIBENCH_DB_PATH", "/tmp/x.db")

	p := writeConfig(t, `server:
  compute:
    base_url: http://ignored:1
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.Compute.BaseURL != "http://192.168.18.40:8080" {
		t.Errorf("base_url: got %q", s.Compute.BaseURL)
	}
	if s.Compute.Timeout != 60*time.Second {
		t.Errorf("timeout: got %v, want 60s", s.Compute.Timeout)
	}
	if s.Compute.HealthTimeout != time.Second {
		t.Errorf("health_timeout: got %v, want 1s", s.Compute.HealthTimeout)
	}
	if len(s.CORS.Origins) != 2 || s.CORS.Origins[1] != "http://b.test" {
		t.Errorf("cors.origins: got %v", s.CORS.Origins)
	}
	if !s.RateLimit.Enabled {
		t.Error("rate_limit.enabled: got false, want true")
	}
	if s.Storage.DBPath != "/tmp/x.db" {
		t.Errorf("db_path: got %q", s.Storage.DBPath)
	}
}

func TestLoad_BadEnvTimeout(t *testing.T) {
	t.Setenv("SERVER_C_TIMEOUT", "thirty")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric SERVER_C_TIMEOUT, got nil")
	}
}

func TestLoad_TokenEnvResolution(t *testing.T) {
	t.Setenv("TEST_SOURCE_TOKEN", "ghp_secret")
	p := writeConfig(t, `server:
  source:
    token_env: TEST_SOURCE_TOKEN
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tok := cfg.Server.Source.Token(); tok != "ghp_secret" {
		t.Errorf("Token(): got %q, want ghp_secret", tok)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"port":      "server:\n  http_port: 70000\n",
		"scheme":    "server:\n  compute:\n    base_url: ftp://host\n",
		"no host":   "server:\n  source:\n    url: http://\n",
		"timeout":   "server:\n  compute:\n    timeout: -1s\n",
		"top_n":     "server:\n  top_n: 0\n",
		"log level": "server:\n  log:\n    level: verbose\n",
		"rate":      "server:\n  rate_limit:\n    enabled: true\n    requests_per_minute: 0\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
