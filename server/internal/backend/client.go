package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/pibench/pibench/server/internal/config"
	"github.com/pibench/pibench/server/internal/metrics"
)

// Server status values reported by HealthCheck.
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusTimeout     = "timeout"
	StatusUnreachable = "unreachable"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultHealthTimeout = 2 * time.Second

	// maxBodyBytes caps how much of an upstream response is decoded.
	maxBodyBytes = 1 << 20
)

// Client talks to the compute backend. Safe for concurrent use.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// New creates a Client bound to cfg.BaseURL.
func New(cfg config.ComputeConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Close releases the idle connections of the shared session.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// HealthCheck probes GET {base}/api/health, waiting at most timeout.
func (c *Client) HealthCheck(ctx context.Context, timeout time.Duration) (map[string]any, int) {
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	start := time.Now()
	payload, status, outcome := c.healthCheck(ctx, timeout)
	metrics.RecordComputeRequest("health_check", outcome, time.Since(start))
	return payload, status
}

func (c *Client) healthCheck(ctx context.Context, timeout time.Duration) (map[string]any, int, string) {
	resp, err := c.get(ctx, "/api/health", timeout)
	if err != nil {
		switch classify(err) {
		case failureTimeout:
			slog.Error("backend: health check timed out", "base_url", c.baseURL, "timeout", timeout)
			return map[string]any{
				"server_status": StatusTimeout,
				"error":         "compute backend did not respond (timeout)",
			}, http.StatusGatewayTimeout, "timeout"
		case failureConnection:
			slog.Error("backend: compute backend unreachable", "base_url", c.baseURL, "err", err)
			return map[string]any{
				"server_status": StatusUnreachable,
				"error":         "cannot connect to compute backend",
			}, http.StatusServiceUnavailable, "unreachable"
		default:
			slog.Error("backend: unexpected health check failure", "base_url", c.baseURL, "err", err)
			return map[string]any{
				"server_status": StatusError,
				"error":         err.Error(),
			}, http.StatusInternalServerError, "error"
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("backend: compute backend answered health check with non-200", "code", resp.StatusCode)
		return map[string]any{
			"server_status": StatusError,
			"code":          resp.StatusCode,
		}, http.StatusInternalServerError, "degraded"
	}

	var details any
	if err := decode(resp.Body, &details); err != nil {
		slog.Error("backend: decode health body", "err", err)
		return map[string]any{
			"server_status": StatusError,
			"error":         err.Error(),
		}, http.StatusInternalServerError, "error"
	}
	return map[string]any{
		"server_status": StatusOK,
		"details":       details,
	}, http.StatusOK, "ok"
}

// RunAlgorithm asks the compute backend to run algorithm and returns its
// JSON body and status code unchanged. The client default timeout applies.
func (c *Client) RunAlgorithm(ctx context.Context, algorithm string) (map[string]any, int) {
	start := time.Now()
	payload, status, outcome := c.runAlgorithm(ctx, algorithm)
	metrics.RecordComputeRequest("run_algorithm", outcome, time.Since(start))
	return payload, status
}

func (c *Client) runAlgorithm(ctx context.Context, algorithm string) (map[string]any, int, string) {
	resp, err := c.get(ctx, "/api/pi/"+url.PathEscape(algorithm), c.timeout)
	if err != nil {
		if classify(err) == failureTimeout {
			slog.Error("backend: algorithm run timed out", "algorithm", algorithm, "timeout", c.timeout)
			return map[string]any{
				"error":     "computation took too long (timeout)",
				"algorithm": algorithm,
			}, http.StatusGatewayTimeout, "timeout"
		}
		slog.Error("backend: algorithm run failed", "algorithm", algorithm, "err", err)
		return map[string]any{
			"error":     fmt.Sprintf("error communicating with compute backend: %v", err),
			"algorithm": algorithm,
		}, http.StatusInternalServerError, "error"
	}
	defer resp.Body.Close()

	slog.Info("backend: algorithm run finished", "algorithm", algorithm, "status", resp.StatusCode)

	var body map[string]any
	if err := decode(resp.Body, &body); err != nil {
		slog.Error("backend: decode algorithm result", "algorithm", algorithm, "status", resp.StatusCode, "err", err)
		return map[string]any{
			"error":     fmt.Sprintf("internal error: %v", err),
			"algorithm": algorithm,
		}, http.StatusInternalServerError, "error"
	}

	return body, resp.StatusCode, upstreamOutcome(resp.StatusCode)
}

// upstreamOutcome is the metric outcome label for an upstream status code.
func upstreamOutcome(code int) string {
	if code == http.StatusOK {
		return "ok"
	}
	text := http.StatusText(code)
	if text == "" {
		text = strconv.Itoa(code)
	}
	return "upstream_" + strings.ToLower(strings.ReplaceAll(text, " ", "_"))
}

// get issues one GET relative to the base URL, bounded by timeout.
// The caller closes the body.
func (c *Client) get(ctx context.Context, path string, timeout time.Duration) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose releases the request context once the body is closed, so
// the timeout also covers reading the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func decode(r io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

type failure int

const (
	failureOther failure = iota
	failureTimeout
	failureConnection
)

// classify sorts a transport error into timeout, connection failure or other.
func classify(err error) failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return failureTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return failureConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return failureConnection
	}
	return failureOther
}
