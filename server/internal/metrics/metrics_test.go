package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// counterValue gathers the default registry and sums the counter samples of
// family name whose labels include every pair in want.
func counterValue(t *testing.T, name string, want map[string]string) float64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			if hasLabels(m, want) {
				total += m.GetCounter().GetValue()
			}
		}
		return total
	}
	return 0
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func TestRecordComputeRequest(t *testing.T) {
	labels := map[string]string{"operation": "run_algorithm", "outcome": "timeout"}
	before := counterValue(t, "pibench_compute_backend_requests_total", labels)

	RecordComputeRequest("run_algorithm", "timeout", 30*time.Second)
	RecordComputeRequest("run_algorithm", "timeout", 30*time.Second)

	if got := counterValue(t, "pibench_compute_backend_requests_total", labels); got != before+2 {
		t.Errorf("compute timeouts: got %v, want %v", got, before+2)
	}
}

func TestRecordStoreOperation(t *testing.T) {
	labels := map[string]string{"operation": "update_estimation", "result": "skipped"}
	before := counterValue(t, "pibench_store_operations_total", labels)

	RecordStoreOperation("update_estimation", "skipped")

	if got := counterValue(t, "pibench_store_operations_total", labels); got != before+1 {
		t.Errorf("store skipped: got %v, want %v", got, before+1)
	}
}

func TestRecordSourceFetch_GaugeOnlyOnSuccess(t *testing.T) {
	RecordSourceFetch("ok", 12)
	RecordSourceFetch("error", 0)

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "pibench_source_functions_extracted" {
			if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 12 {
				t.Errorf("functions extracted: got %v, want 12", got)
			}
			return
		}
	}
	t.Fatal("pibench_source_functions_extracted not gathered")
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/v1/pi/{algorithm}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	labels := map[string]string{"method": "GET", "route": "/api/v1/pi/{algorithm}", "status_code": "418"}
	before := counterValue(t, "pibench_api_requests_total", labels)

	for _, algo := range []string{"leibniz", "monte_carlo", "bbp"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/pi/"+algo, nil))
		if rr.Code != http.StatusTeapot {
			t.Fatalf("status: got %d, want 418", rr.Code)
		}
	}

	if got := counterValue(t, "pibench_api_requests_total", labels); got != before+3 {
		t.Errorf("requests for pattern: got %v, want %v", got, before+3)
	}
}
