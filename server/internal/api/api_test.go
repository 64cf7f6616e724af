package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pibench/pibench/server/internal/aggregator"
	"github.com/pibench/pibench/server/internal/api"
	"github.com/pibench/pibench/server/internal/config"
)

// --- test helpers -----------------------------------------------------------

type fakeService struct {
	topN      int
	rerunReq  *aggregator.RerunRequest
	algorithm string
}

func ok(data any) (any, int) {
	return aggregator.Envelope{Status: "success", Data: data}, http.StatusOK
}

func (f *fakeService) Estimations(context.Context) (any, int) {
	return ok(map[string]any{"estimations": []any{}, "available_algorithms": []string{"monte_carlo"}})
}

func (f *fakeService) EstimationsWithoutAlgorithms(context.Context) (any, int) {
	return aggregator.Envelope{
		Status: "error",
		Error:  &aggregator.ErrorBody{Message: "Error retrieving estimations", Code: aggregator.CodeInternal},
	}, http.StatusInternalServerError
}

func (f *fakeService) AlgorithmsInfo(context.Context) (any, int) {
	return ok(map[string]any{"algorithms": map[string]any{}})
}

func (f *fakeService) FormulasInfo(context.Context) (any, int) {
	return ok(map[string]any{"formulas": map[string]any{}})
}

func (f *fakeService) TopPerformers(_ context.Context, n int) (any, int) {
	f.topN = n
	return ok(map[string]any{"metadata": map[string]int{"top_n": n}})
}

func (f *fakeService) Algorithm(_ context.Context, name string) (any, int) {
	f.algorithm = name
	return ok(map[string]any{"algorithm": name})
}

func (f *fakeService) Rerun(_ context.Context, req aggregator.RerunRequest) (any, int) {
	f.rerunReq = &req
	return aggregator.RerunResponse{AlgorithmName: req.AlgorithmName, Result: map[string]any{"iterations": 1}}, http.StatusOK
}

type fakeCompute struct {
	healthTimeout time.Duration
	ran           []string
}

func (f *fakeCompute) HealthCheck(_ context.Context, timeout time.Duration) (map[string]any, int) {
	f.healthTimeout = timeout
	return map[string]any{"server_status": "unreachable", "error": "connection refused"}, http.StatusServiceUnavailable
}

func (f *fakeCompute) RunAlgorithm(_ context.Context, name string) (map[string]any, int) {
	f.ran = append(f.ran, name)
	return map[string]any{"error": "Unknown algorithm", "algorithm": name}, http.StatusBadRequest
}

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		Compute: config.ComputeConfig{HealthTimeout: 2 * time.Second},
		CORS:    config.CORSConfig{Origins: []string{"*"}},
		TopN:    4,
	}
}

func newHandler() (http.Handler, *fakeService, *fakeCompute) {
	svc, cmp := &fakeService{}, &fakeCompute{}
	return api.New(svc, cmp, testConfig()), svc, cmp
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth(t *testing.T) {
	h, _, _ := newHandler()
	rr := do(t, h, http.MethodGet, "/api/v1/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type: got %q", ct)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "ok" || resp.Service != api.ServiceName {
		t.Errorf("body: got %+v", resp)
	}
}

func TestComputeHealth_PassesStatusThrough(t *testing.T) {
	h, _, cmp := newHandler()
	rr := do(t, h, http.MethodGet, "/api/v1/servers/c/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", rr.Code)
	}
	if cmp.healthTimeout != 2*time.Second {
		t.Errorf("health timeout: got %v, want 2s", cmp.healthTimeout)
	}
	var body map[string]any
	decode(t, rr, &body)
	if body["server_status"] != "unreachable" {
		t.Errorf("server_status: got %v", body["server_status"])
	}
}

// --- estimations ------------------------------------------------------------

func TestEstimations(t *testing.T) {
	h, _, _ := newHandler()
	rr := do(t, h, http.MethodGet, "/api/v1/estimations", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var body struct {
		Status string `json:"status"`
		Data   struct {
			Available []string `json:"available_algorithms"`
		} `json:"data"`
	}
	decode(t, rr, &body)
	if body.Status != "success" || len(body.Data.Available) != 1 {
		t.Errorf("body: got %+v", body)
	}
}

func TestEstimationsBasic_ErrorEnvelope(t *testing.T) {
	h, _, _ := newHandler()
	rr := do(t, h, http.MethodGet, "/api/v1/estimations/basic", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", rr.Code)
	}
	var body struct {
		Status string `json:"status"`
		Error  struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, rr, &body)
	if body.Status != "error" || body.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("body: got %+v", body)
	}
}

func TestTopPerformers_N(t *testing.T) {
	cases := []struct {
		query    string
		wantCode int
		wantN    int
	}{
		{"", http.StatusOK, 4},
		{"?n=1", http.StatusOK, 1},
		{"?n=100", http.StatusOK, 100},
		{"?n=0", http.StatusBadRequest, 0},
		{"?n=101", http.StatusBadRequest, 0},
		{"?n=abc", http.StatusBadRequest, 0},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			h, svc, _ := newHandler()
			rr := do(t, h, http.MethodGet, "/api/v1/estimations/top"+tc.query, "")
			if rr.Code != tc.wantCode {
				t.Fatalf("status: got %d, want %d", rr.Code, tc.wantCode)
			}
			if svc.topN != tc.wantN {
				t.Errorf("n: got %d, want %d", svc.topN, tc.wantN)
			}
		})
	}
}

// --- algorithms -------------------------------------------------------------

func TestAlgorithmRoutes(t *testing.T) {
	h, svc, _ := newHandler()
	for _, path := range []string{"/api/v1/algorithms", "/api/v1/formulas"} {
		if rr := do(t, h, http.MethodGet, path, ""); rr.Code != http.StatusOK {
			t.Errorf("%s: got %d, want 200", path, rr.Code)
		}
	}

	if rr := do(t, h, http.MethodGet, "/api/v1/algorithms/leibniz", ""); rr.Code != http.StatusOK {
		t.Errorf("single algorithm: got %d, want 200", rr.Code)
	}
	if svc.algorithm != "leibniz" {
		t.Errorf("algorithm name: got %q, want leibniz", svc.algorithm)
	}
}

func TestRerun(t *testing.T) {
	h, svc, _ := newHandler()
	rr := do(t, h, http.MethodPost, "/api/v1/algorithms/rerun", `{"algorithmName":"monte_carlo"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if svc.rerunReq == nil || svc.rerunReq.AlgorithmName != "monte_carlo" {
		t.Fatalf("rerun request: got %+v", svc.rerunReq)
	}
	var body aggregator.RerunResponse
	decode(t, rr, &body)
	if body.AlgorithmName != "monte_carlo" {
		t.Errorf("algorithmName: got %q", body.AlgorithmName)
	}
}

func TestRerun_MalformedBody(t *testing.T) {
	h, svc, _ := newHandler()
	rr := do(t, h, http.MethodPost, "/api/v1/algorithms/rerun", `{"algorithmName":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
	if svc.rerunReq != nil {
		t.Error("service called with malformed body")
	}
}

// --- /api/v1/pi/{algorithm} -------------------------------------------------

func TestRunAlgorithm_PassThrough(t *testing.T) {
	h, _, cmp := newHandler()
	rr := do(t, h, http.MethodGet, "/api/v1/pi/nope", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want upstream 400", rr.Code)
	}
	var body map[string]any
	decode(t, rr, &body)
	if body["error"] != "Unknown algorithm" || body["algorithm"] != "nope" {
		t.Errorf("body: got %v", body)
	}
	if len(cmp.ran) != 1 {
		t.Errorf("compute calls: got %d, want 1", len(cmp.ran))
	}
}

func TestRunAlgorithm_InvalidName(t *testing.T) {
	h, _, cmp := newHandler()
	rr := do(t, h, http.MethodGet, "/api/v1/pi/"+strings.Repeat("x", 51), "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
	var body map[string]any
	decode(t, rr, &body)
	if body["error"] != "invalid algorithm" {
		t.Errorf("error: got %v", body["error"])
	}
	if len(cmp.ran) != 0 {
		t.Error("compute backend called for invalid name")
	}
}

// --- routing ----------------------------------------------------------------

func TestMethodNotAllowed(t *testing.T) {
	h, _, _ := newHandler()
	cases := []struct{ method, path string }{
		{http.MethodPost, "/api/v1/health"},
		{http.MethodDelete, "/api/v1/estimations"},
		{http.MethodPut, "/api/v1/estimations/top"},
		{http.MethodPost, "/api/v1/formulas"},
		{http.MethodPut, "/api/v1/algorithms/rerun"},
		{http.MethodGet, "/api/v1/algorithms/rerun"},
		{http.MethodDelete, "/api/v1/algorithms/rerun"},
		{http.MethodPost, "/api/v1/pi/leibniz"},
	}
	for _, tc := range cases {
		rr := do(t, h, tc.method, tc.path, "")
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: got %d, want 405", tc.method, tc.path, rr.Code)
			continue
		}
		var body map[string]any
		decode(t, rr, &body)
		if body["error"] != "method not allowed" {
			t.Errorf("%s %s: error got %v", tc.method, tc.path, body["error"])
		}
	}
}

func TestRerunPath_NotAnAlgorithmName(t *testing.T) {
	h, svc, _ := newHandler()
	do(t, h, http.MethodGet, "/api/v1/algorithms/rerun", "")
	if svc.algorithm != "" {
		t.Errorf("GET on rerun path reached the algorithm view with %q", svc.algorithm)
	}
}

func TestNotFound(t *testing.T) {
	h, _, _ := newHandler()
	rr := do(t, h, http.MethodGet, "/api/v1/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rr.Code)
	}
	var body map[string]any
	decode(t, rr, &body)
	if body["error"] != "endpoint not found" {
		t.Errorf("error: got %v", body["error"])
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}
	h := api.New(&fakeService{}, &fakeCompute{}, cfg)

	for i := 0; i < 2; i++ {
		if rr := do(t, h, http.MethodGet, "/api/v1/health", ""); rr.Code != http.StatusOK {
			t.Fatalf("request %d: got %d, want 200", i, rr.Code)
		}
	}
	if rr := do(t, h, http.MethodGet, "/api/v1/health", ""); rr.Code != http.StatusTooManyRequests {
		t.Errorf("third request: got %d, want 429", rr.Code)
	}
}

func TestCORS(t *testing.T) {
	h, _, _ := newHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin: got %q, want *", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, _ := newHandler()
	do(t, h, http.MethodGet, "/api/v1/health", "")
	rr := do(t, h, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "pibench_api_requests_total") {
		t.Error("exposition missing pibench_api_requests_total")
	}
}
