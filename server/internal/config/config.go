package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort             = 5000
	DefaultComputeBaseURL       = "http://localhost:8080"
	DefaultComputeTimeout       = 30 * time.Second
	DefaultComputeHealthTimeout = 2 * time.Second
	DefaultSourceURL            = "https://raw.githubusercontent.com/Daval03/EmbeddedPiBench/refs/heads/develop/embedded/pi/pi_calculations.c"
	DefaultSourceTimeout        = 5 * time.Second
	DefaultDBPath               = "db/pi_database.db"
	DefaultMetadataPath         = "db/algorithms.json"
	DefaultTopN                 = 4
	DefaultRequestsPerMinute    = 120
)

// Config holds the proxy configuration parsed from the `server:` section of
// config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API listens on (default 5000).
	HTTPPort int `yaml:"http_port"`

	// Compute configures the compute backend ("Server C") client.
	Compute ComputeConfig `yaml:"compute"`

	// Source configures where algorithm source code is scraped from.
	Source SourceConfig `yaml:"source"`

	// Storage locates the estimations database and the metadata sidecar.
	Storage StorageConfig `yaml:"storage"`

	// CORS lists the origins allowed to call the API from a browser.
	CORS CORSConfig `yaml:"cors"`

	// RateLimit optionally throttles API requests per client IP.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Log controls the slog level.
	Log LogConfig `yaml:"log"`

	// TopN is the default row count for /estimations/top (default 4).
	TopN int `yaml:"top_n"`
}

// ComputeConfig describes the remote compute backend.
type ComputeConfig struct {
	// BaseURL is the scheme://host:port of the compute backend.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds one algorithm run (default 30s).
	Timeout time.Duration `yaml:"timeout"`

	// HealthTimeout bounds one health probe (default 2s).
	HealthTimeout time.Duration `yaml:"health_timeout"`
}

// SourceConfig describes the remote algorithm-source file.
type SourceConfig struct {
	// URL is the raw plain-text file holding the algorithm implementations.
	URL string `yaml:"url"`

	// Timeout bounds one fetch of URL (default 5s).
	Timeout time.Duration `yaml:"timeout"`

	// TokenEnv is the name of the environment variable holding a bearer
	// token, for private repositories. Empty means anonymous.
	TokenEnv string `yaml:"token_env"`

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Token returns the bearer token resolved from the environment.
func (s SourceConfig) Token() string {
	if s.TokenEnv == "" {
		return ""
	}
	return os.Getenv(s.TokenEnv)
}

// StorageConfig locates the persistent state.
type StorageConfig struct {
	// DBPath is the SQLite file with the pi_estimations table.
	DBPath string `yaml:"db_path"`

	// MetadataPath is the JSON array describing each algorithm.
	MetadataPath string `yaml:"metadata_path"`

	// WatchMetadata reloads MetadataPath when the file changes.
	WatchMetadata bool `yaml:"watch_metadata"`
}

// CORSConfig controls cross-origin access.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// RateLimitConfig controls per-IP throttling of /api/v1.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// LogConfig controls logging.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
}

// SlogLevel converts Level to a slog.Level, defaulting to Info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with defaults, then environment overrides are
// applied before validation. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("server config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("server config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			Compute: ComputeConfig{
				BaseURL:       DefaultComputeBaseURL,
				Timeout:       DefaultComputeTimeout,
				HealthTimeout: DefaultComputeHealthTimeout,
			},
			Source: SourceConfig{
				URL:     DefaultSourceURL,
				Timeout: DefaultSourceTimeout,
			},
			Storage: StorageConfig{
				DBPath:       DefaultDBPath,
				MetadataPath: DefaultMetadataPath,
			},
			CORS:      CORSConfig{Origins: []string{"*"}},
			RateLimit: RateLimitConfig{RequestsPerMinute: DefaultRequestsPerMinute},
			Log:       LogConfig{Level: "info"},
			TopN:      DefaultTopN,
		},
	}
}

// applyEnv overrides file values with the deployment environment variables.
// Timeouts given through the environment are whole seconds.
func applyEnv(cfg *Config) error {
	s := &cfg.Server
	if v, ok := os.LookupEnv("SERVER_C_BASE"); ok {
		s.Compute.BaseURL = v
	}
	if v, ok := os.LookupEnv("SERVER_C_TIMEOUT"); ok {
		d, err := envSeconds("SERVER_C_TIMEOUT", v)
		if err != nil {
			return err
		}
		s.Compute.Timeout = d
	}
	if v, ok := os.LookupEnv("SERVER_C_HEALTH_TIMEOUT"); ok {
		d, err := envSeconds("SERVER_C_HEALTH_TIMEOUT", v)
		if err != nil {
			return err
		}
		s.Compute.HealthTimeout = d
	}
	if v, ok := os.LookupEnv("CORS_ORIGINS"); ok {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		s.CORS.Origins = origins
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		s.Log.Level = v
	}
	if v, ok := os.LookupEnv("RATE_LIMIT_ENABLED"); ok {
		s.RateLimit.Enabled = strings.EqualFold(v, "true")
	}
	if v, ok := os.LookupEnv("PIBENCH_DB_PATH"); ok {
		s.Storage.DBPath = v
	}
	if v, ok := os.LookupEnv("PIBENCH_METADATA_PATH"); ok {
		s.Storage.MetadataPath = v
	}
	if v, ok := os.LookupEnv("PIBENCH_SOURCE_URL"); ok {
		s.Source.URL = v
	}
	return nil
}

func envSeconds(name, v string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s=%q: want whole seconds: %w", name, v, err)
	}
	return time.Duration(n) * time.Second, nil
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if err := validateURL("server.compute.base_url", s.Compute.BaseURL); err != nil {
		return err
	}
	if err := validateURL("server.source.url", s.Source.URL); err != nil {
		return err
	}
	if s.Compute.Timeout <= 0 {
		return fmt.Errorf("server.compute.timeout must be positive")
	}
	if s.Compute.HealthTimeout <= 0 {
		return fmt.Errorf("server.compute.health_timeout must be positive")
	}
	if s.Source.Timeout <= 0 {
		return fmt.Errorf("server.source.timeout must be positive")
	}
	if s.Storage.DBPath == "" {
		return fmt.Errorf("server.storage.db_path is required")
	}
	if s.Storage.MetadataPath == "" {
		return fmt.Errorf("server.storage.metadata_path is required")
	}
	if s.TopN <= 0 {
		return fmt.Errorf("server.top_n must be positive")
	}
	if s.RateLimit.Enabled && s.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_minute must be positive when enabled")
	}
	switch strings.ToLower(s.Log.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("server.log.level %q unknown: want debug|info|warn|error", s.Log.Level)
	}
	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s %q: %w", field, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s %q: scheme must be http or https", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s %q: host is required", field, raw)
	}
	return nil
}
