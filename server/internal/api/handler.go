package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pibench/pibench/server/internal/aggregator"
	"github.com/pibench/pibench/server/internal/config"
	"github.com/pibench/pibench/server/internal/metrics"
	"github.com/pibench/pibench/server/internal/validation"
)

// ServiceName is reported by GET /api/v1/health.
const ServiceName = "pibench proxy"

// Bounds of the ?n= parameter of /api/v1/estimations/top.
const (
	minTopN = 1
	maxTopN = 100
)

const maxRequestBody = 1 << 20

// Service is the set of aggregation operations the API exposes.
type Service interface {
	Estimations(ctx context.Context) (any, int)
	EstimationsWithoutAlgorithms(ctx context.Context) (any, int)
	AlgorithmsInfo(ctx context.Context) (any, int)
	FormulasInfo(ctx context.Context) (any, int)
	TopPerformers(ctx context.Context, n int) (any, int)
	Algorithm(ctx context.Context, name string) (any, int)
	Rerun(ctx context.Context, req aggregator.RerunRequest) (any, int)
}

// Compute is the compute backend as seen by the pass-through endpoints.
type Compute interface {
	HealthCheck(ctx context.Context, timeout time.Duration) (map[string]any, int)
	RunAlgorithm(ctx context.Context, algorithm string) (map[string]any, int)
}

// Handler serves /api/v1/* and /metrics.
type Handler struct {
	svc     Service
	compute Compute
	cfg     config.ServerConfig
	router  chi.Router
}

// New creates a Handler wired to svc and compute and registers all routes.
func New(svc Service, compute Compute, cfg config.ServerConfig) http.Handler {
	h := &Handler{svc: svc, compute: compute, cfg: cfg, router: chi.NewRouter()}
	r := h.router

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORS.Origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimit.Enabled {
			r.Use(httprate.Limit(
				cfg.RateLimit.RequestsPerMinute,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					jsonErr(w, http.StatusTooManyRequests, "rate limit exceeded")
				}),
			))
		}

		r.Get("/health", h.health)
		r.Get("/servers/c/health", h.computeHealth)
		r.Get("/estimations", h.estimations)
		r.Get("/estimations/basic", h.estimationsBasic)
		r.Get("/estimations/top", h.topPerformers)
		r.Get("/algorithms", h.algorithms)
		// A mounted subrouter owns the rerun path for every method, so a GET
		// cannot fall through to /algorithms/{name}.
		r.Route("/algorithms/rerun", func(r chi.Router) {
			r.NotFound(notFound)
			r.MethodNotAllowed(methodNotAllowed)
			r.Post("/", h.rerun)
		})
		r.Get("/algorithms/{name}", h.algorithm)
		r.Get("/formulas", h.formulas)
		r.Get("/pi/{algorithm}", h.runAlgorithm)
	})

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health, the liveness of the proxy itself.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, HealthResponse{Status: "ok", Service: ServiceName})
}

// computeHealth returns GET /api/v1/servers/c/health.
func (h *Handler) computeHealth(w http.ResponseWriter, r *http.Request) {
	payload, code := h.compute.HealthCheck(r.Context(), h.cfg.Compute.HealthTimeout)
	jsonResp(w, code, payload)
}

func (h *Handler) estimations(w http.ResponseWriter, r *http.Request) {
	payload, code := h.svc.Estimations(r.Context())
	jsonResp(w, code, payload)
}

func (h *Handler) estimationsBasic(w http.ResponseWriter, r *http.Request) {
	payload, code := h.svc.EstimationsWithoutAlgorithms(r.Context())
	jsonResp(w, code, payload)
}

// topPerformers returns GET /api/v1/estimations/top?n=.
func (h *Handler) topPerformers(w http.ResponseWriter, r *http.Request) {
	n := h.cfg.TopN
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < minTopN || v > maxTopN {
			jsonResp(w, http.StatusBadRequest, validationEnvelope(
				"n must be an integer between 1 and 100", map[string]string{"n": raw}))
			return
		}
		n = v
	}
	payload, code := h.svc.TopPerformers(r.Context(), n)
	jsonResp(w, code, payload)
}

func (h *Handler) algorithms(w http.ResponseWriter, r *http.Request) {
	payload, code := h.svc.AlgorithmsInfo(r.Context())
	jsonResp(w, code, payload)
}

func (h *Handler) algorithm(w http.ResponseWriter, r *http.Request) {
	payload, code := h.svc.Algorithm(r.Context(), chi.URLParam(r, "name"))
	jsonResp(w, code, payload)
}

// rerun handles POST /api/v1/algorithms/rerun.
func (h *Handler) rerun(w http.ResponseWriter, r *http.Request) {
	var req aggregator.RerunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		jsonResp(w, http.StatusBadRequest, validationEnvelope("invalid JSON body", err.Error()))
		return
	}
	payload, code := h.svc.Rerun(r.Context(), req)
	jsonResp(w, code, payload)
}

func (h *Handler) formulas(w http.ResponseWriter, r *http.Request) {
	payload, code := h.svc.FormulasInfo(r.Context())
	jsonResp(w, code, payload)
}

// runAlgorithm returns GET /api/v1/pi/{algorithm}. The compute backend's body
// and status are passed through unchanged.
func (h *Handler) runAlgorithm(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "algorithm")
	if err := validation.AlgorithmName(name); err != nil {
		resp := errorResponse{Error: "invalid algorithm"}
		var verr *validation.Error
		if errors.As(err, &verr) {
			resp.Details = verr.Details()
		}
		jsonResp(w, http.StatusBadRequest, resp)
		return
	}
	payload, code := h.compute.RunAlgorithm(r.Context(), name)
	jsonResp(w, code, payload)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	jsonErr(w, http.StatusNotFound, "endpoint not found")
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
}

func validationEnvelope(msg string, details any) aggregator.Envelope {
	return aggregator.Envelope{
		Status: "error",
		Error:  &aggregator.ErrorBody{Message: msg, Code: aggregator.CodeValidation, Details: details},
	}
}
