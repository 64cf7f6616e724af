package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/pibench/pibench/server/internal/metrics"
	"github.com/pibench/pibench/server/internal/source"
	"github.com/pibench/pibench/server/internal/store"
	"github.com/pibench/pibench/server/internal/validation"
)

// Sources yields the algorithm source code scraped from the remote file.
type Sources interface {
	ExtractAll(ctx context.Context) []source.Function
	Extract(ctx context.Context, name string) (string, bool)
}

// Estimations reads and writes persisted measurements and catalog metadata.
type Estimations interface {
	FetchAllEstimations(ctx context.Context) ([]store.Estimation, bool)
	FetchAllTypes(ctx context.Context) ([]store.AlgorithmType, bool)
	TopElements(ctx context.Context, n int) ([]store.Performer, bool)
	AlgorithmDetails(id string) store.Lookup
	AllFormulaDescriptions(ids []string) []store.Lookup
	UpdateEstimationAfterRerun(ctx context.Context, algorithm string, newData map[string]any) bool
}

// Compute runs algorithms on the compute backend.
type Compute interface {
	RunAlgorithm(ctx context.Context, algorithm string) (map[string]any, int)
}

// Service builds the API payloads.
type Service struct {
	sources Sources
	store   Estimations
	compute Compute
}

// New returns a Service reading from src and st and running reruns on cmp.
func New(src Sources, st Estimations, cmp Compute) *Service {
	return &Service{sources: src, store: st, compute: cmp}
}

// errStorage marks a read that returned no rows because storage failed.
var errStorage = errors.New("estimations storage unavailable")

// Estimations returns every estimation row with the scraped algorithm sources.
func (s *Service) Estimations(ctx context.Context) (payload any, status int) {
	const msg = "Error retrieving estimations"
	defer s.recoverInto("estimations", msg, &payload, &status)

	rows, ok := s.store.FetchAllEstimations(ctx)
	if !ok {
		return internalError("estimations", msg, errStorage)
	}
	funcs := s.sources.ExtractAll(ctx)

	names := make([]string, len(funcs))
	impls := make(map[string]string, len(funcs))
	for i, f := range funcs {
		names[i] = f.Name
		impls[f.Name] = f.Source
	}

	return success(EstimationsData{
		Estimations:              toEstimationViews(rows),
		AvailableAlgorithms:      names,
		AlgorithmImplementations: impls,
		Metadata: EstimationsMeta{
			TotalEstimations: len(rows),
			TotalAlgorithms:  len(funcs),
		},
	})
}

// EstimationsWithoutAlgorithms returns every estimation row.
func (s *Service) EstimationsWithoutAlgorithms(ctx context.Context) (payload any, status int) {
	const msg = "Error retrieving estimations"
	defer s.recoverInto("estimations_basic", msg, &payload, &status)

	rows, ok := s.store.FetchAllEstimations(ctx)
	if !ok {
		return internalError("estimations_basic", msg, errStorage)
	}

	var data BasicEstimationsData
	data.Estimations = toEstimationViews(rows)
	data.Metadata.TotalEstimations = len(rows)
	return success(data)
}

// AlgorithmsInfo annotates each scraped algorithm with its catalog
// description and its category. A description is attached only when the
// catalog id equals the scraped name. The category is "Unknown" when no row
// carries one.
func (s *Service) AlgorithmsInfo(ctx context.Context) (payload any, status int) {
	const msg = "Error retrieving algorithms information"
	defer s.recoverInto("algorithms_info", msg, &payload, &status)

	funcs := s.sources.ExtractAll(ctx)
	names := functionNames(funcs)

	descriptions := make(map[string]string, len(names))
	for _, l := range s.store.AllFormulaDescriptions(names) {
		if l.Found() {
			descriptions[l.Algorithm.ID] = l.Algorithm.Description
		}
	}

	types := map[string]string{}
	if rows, ok := s.store.FetchAllTypes(ctx); ok {
		for _, r := range rows {
			types[r.Algorithm] = r.Type
		}
	} else {
		slog.Warn("aggregator: algorithm types unavailable, defaulting to Unknown")
	}

	var data AlgorithmsData
	data.Algorithms = make(map[string]AlgorithmInfo, len(funcs))
	for _, f := range funcs {
		typ, ok := types[f.Name]
		if !ok || typ == "" {
			typ = "Unknown"
		}
		data.Algorithms[f.Name] = AlgorithmInfo{
			Implementation: f.Source,
			Description:    descriptions[f.Name],
			Type:           typ,
		}
	}
	data.Metadata.TotalAlgorithms = len(data.Algorithms)
	return success(data)
}

// FormulasInfo returns the full catalog entry of every scraped algorithm,
// keyed by catalog id. Algorithms without an entry are left out.
func (s *Service) FormulasInfo(ctx context.Context) (payload any, status int) {
	const msg = "Error retrieving formulas information"
	defer s.recoverInto("formulas_info", msg, &payload, &status)

	names := functionNames(s.sources.ExtractAll(ctx))

	var data FormulasData
	data.Formulas = map[string]FormulaInfo{}
	data.Metadata.AvailableIDs = []string{}
	for _, l := range s.store.AllFormulaDescriptions(names) {
		if !l.Found() {
			slog.Debug("aggregator: no catalog entry", "detail", l.Message)
			continue
		}
		id := l.Algorithm.ID
		if _, dup := data.Formulas[id]; !dup {
			data.Metadata.AvailableIDs = append(data.Metadata.AvailableIDs, id)
		}
		data.Formulas[id] = toFormulaInfo(l.Algorithm)
	}
	data.Metadata.TotalFormulas = len(data.Formulas)
	return success(data)
}

// TopPerformers returns the n fastest estimations.
func (s *Service) TopPerformers(ctx context.Context, n int) (payload any, status int) {
	const msg = "Error retrieving top performers"
	defer s.recoverInto("top_performers", msg, &payload, &status)

	rows, ok := s.store.TopElements(ctx, n)
	if !ok {
		return internalError("top_performers", msg, errStorage)
	}

	var data TopPerformersData
	data.Estimations = make([]PerformerView, len(rows))
	for i, r := range rows {
		data.Estimations[i] = PerformerView{
			Algorithm:     r.Algorithm,
			TimeSeconds:   r.TimeSeconds,
			CorrectDigits: r.CorrectDigits,
		}
	}
	data.Metadata.Count = len(rows)
	data.Metadata.TopN = n
	return success(data)
}

// Algorithm returns the source, catalog entry and most recent estimation of
// one algorithm. It is a 404 when neither source nor catalog entry exists.
func (s *Service) Algorithm(ctx context.Context, name string) (payload any, status int) {
	const msg = "Error retrieving algorithm"
	defer s.recoverInto("algorithm", msg, &payload, &status)

	if err := validation.AlgorithmName(name); err != nil {
		return validationError(err)
	}

	data := AlgorithmData{Algorithm: name}
	if src, ok := s.sources.Extract(ctx, name); ok {
		data.Implementation = &src
	}
	lookup := s.store.AlgorithmDetails(name)
	if lookup.Found() {
		info := toFormulaInfo(lookup.Algorithm)
		data.Formula = &info
	}
	if data.Implementation == nil && data.Formula == nil {
		return Envelope{
			Status: "error",
			Error:  &ErrorBody{Message: lookup.Message, Code: CodeNotFound},
		}, http.StatusNotFound
	}

	rows, ok := s.store.FetchAllEstimations(ctx)
	if !ok {
		return internalError("algorithm", msg, errStorage)
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Algorithm == name {
			v := toEstimationView(rows[i])
			data.Latest = &v
			break
		}
	}
	return success(data)
}

// Rerun recomputes an algorithm on the compute backend and, when the backend
// answers 200, writes the fresh result over the stored rows. The caller
// always receives the compute result and status, whether or not the write
// succeeded.
func (s *Service) Rerun(ctx context.Context, req RerunRequest) (payload any, status int) {
	defer s.recoverInto("rerun", "Error rerunning algorithm", &payload, &status)

	if err := validation.Struct(req); err != nil {
		metrics.RecordRerun("rejected")
		return validationError(err)
	}
	name := req.AlgorithmName

	result, code := s.compute.RunAlgorithm(ctx, name)
	if code != http.StatusOK {
		metrics.RecordRerun("compute_failed")
		slog.Warn("aggregator: rerun failed on compute backend", "algorithm", name, "status", code)
		return RerunResponse{AlgorithmName: name, Result: result}, code
	}

	if s.store.UpdateEstimationAfterRerun(ctx, name, result) {
		metrics.RecordRerun("persisted")
		slog.Info("aggregator: rerun persisted", "algorithm", name)
	} else {
		metrics.RecordRerun("not_persisted")
		slog.Warn("aggregator: rerun result not persisted", "algorithm", name)
	}
	return RerunResponse{AlgorithmName: name, Result: result}, code
}

// --- helpers ------------------------------------------------------------------

func (s *Service) recoverInto(op, msg string, payload *any, status *int) {
	r := recover()
	if r == nil {
		return
	}
	slog.Error("aggregator: panic", "operation", op, "panic", r, "stack", string(debug.Stack()))
	*payload, *status = errorEnvelope(msg, fmt.Sprint(r)), http.StatusInternalServerError
}

func success(data any) (any, int) {
	return Envelope{Status: "success", Data: data}, http.StatusOK
}

func internalError(op, msg string, err error) (any, int) {
	slog.Error("aggregator: operation failed", "operation", op, "err", err)
	return errorEnvelope(msg, err.Error()), http.StatusInternalServerError
}

func errorEnvelope(msg, details string) Envelope {
	body := &ErrorBody{Message: msg, Code: CodeInternal}
	if details != "" {
		body.Details = details
	}
	return Envelope{Status: "error", Error: body}
}

func validationError(err error) (any, int) {
	body := &ErrorBody{Message: err.Error(), Code: CodeValidation}
	var verr *validation.Error
	if errors.As(err, &verr) {
		body.Details = verr.Details()
	}
	return Envelope{Status: "error", Error: body}, http.StatusBadRequest
}

func functionNames(funcs []source.Function) []string {
	out := make([]string, len(funcs))
	for i, f := range funcs {
		out[i] = f.Name
	}
	return out
}
