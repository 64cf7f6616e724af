package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pibench/pibench/server/internal/config"
	"github.com/pibench/pibench/server/internal/metrics"
)

const (
	defaultFetchTimeout = 5 * time.Second

	// maxSourceBytes caps how much of the remote file is read.
	maxSourceBytes = 4 << 20
)

// Scraper fetches the remote source file and extracts functions from it.
// Nothing is cached; every call refetches. Safe for concurrent use.
type Scraper struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// New returns a Scraper for cfg. It builds the HTTP client once and reuses
// it across calls.
func New(cfg config.SourceConfig) (*Scraper, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("source: url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Scraper{
		url:     cfg.URL,
		timeout: timeout,
		client:  buildHTTPClient(cfg),
	}, nil
}

// ExtractAll returns every function in the source file, in file order.
// Any failure yields an empty result.
func (s *Scraper) ExtractAll(ctx context.Context) []Function {
	text, err := s.fetch(ctx)
	if err != nil {
		metrics.RecordSourceFetch("error", 0)
		slog.Warn("source: fetch failed", "url", s.url, "err", err)
		return nil
	}
	fns := ParseFunctions(text)
	metrics.RecordSourceFetch("ok", len(fns))
	slog.Debug("source: extracted functions", "count", len(fns))
	return fns
}

// Extract returns the source of one function, or false when the file cannot
// be fetched or holds no balanced function with that name.
func (s *Scraper) Extract(ctx context.Context, name string) (string, bool) {
	text, err := s.fetch(ctx)
	if err != nil {
		metrics.RecordSourceFetch("error", 0)
		slog.Warn("source: fetch failed", "url", s.url, "function", name, "err", err)
		return "", false
	}
	metrics.RecordSourceFetch("ok", -1)
	return ParseFunction(text, name)
}

// Close releases idle connections held by the client.
func (s *Scraper) Close() {
	s.client.CloseIdleConnections()
}

// fetch performs one GET of the source URL bounded by the fetch timeout.
func (s *Scraper) fetch(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// bearerRoundTripper injects an Authorization header into every request.
type bearerRoundTripper struct {
	base  http.RoundTripper
	token string
}

func (t *bearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs the client for the source's TLS and token settings.
func buildHTTPClient(cfg config.SourceConfig) *http.Client {
	var transport http.RoundTripper = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // user-configured
		},
	}
	if tok := cfg.Token(); tok != "" {
		transport = &bearerRoundTripper{base: transport, token: tok}
	}
	return &http.Client{Transport: transport}
}
