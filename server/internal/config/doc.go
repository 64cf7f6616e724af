// Package config loads the proxy configuration from the `server:` section of
// config.yaml.
//
// Config fields:
//   - HTTPPort                port for the REST API (default 5000)
//   - Compute.BaseURL         compute backend address (env SERVER_C_BASE)
//   - Compute.Timeout         per-run timeout (default 30s, env SERVER_C_TIMEOUT)
//   - Compute.HealthTimeout   health probe timeout (default 2s, env SERVER_C_HEALTH_TIMEOUT)
//   - Source.URL              raw C file holding the algorithms (env PIBENCH_SOURCE_URL)
//   - Source.TokenEnv         env var holding a bearer token for private repos
//   - Storage.DBPath          SQLite file (env PIBENCH_DB_PATH)
//   - Storage.MetadataPath    JSON metadata sidecar (env PIBENCH_METADATA_PATH)
//   - Storage.WatchMetadata   hot-reload the sidecar on change
//   - CORS.Origins            allowed origins (default "*", env CORS_ORIGINS)
//   - RateLimit.Enabled       per-IP throttling (env RATE_LIMIT_ENABLED)
//   - Log.Level               debug|info|warn|error (env LOG_LEVEL)
//   - TopN                    default size of the top-performers view (default 4)
//
// Load(path) applies defaults before unmarshalling, then environment
// overrides, then validates.
package config
