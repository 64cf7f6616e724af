package aggregator

import (
	"time"

	"github.com/pibench/pibench/server/internal/store"
)

// Error codes used in the error envelope.
const (
	CodeInternal   = "INTERNAL_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
)

// Envelope is the {status, data} / {status, error} wrapper of the read views.
type Envelope struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed operation.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// EstimationView is one estimation row as served to the frontend.
type EstimationView struct {
	ID                      int64    `json:"id"`
	PiEstimate              *float64 `json:"pi_estimate"`
	Algorithm               string   `json:"algorithm"`
	Iterations              int64    `json:"iterations"`
	TimeSeconds             float64  `json:"time_seconds"`
	IterationsPerSecond     float64  `json:"iterations_per_second"`
	CorrectDigits           int64    `json:"correct_digits"`
	MaxDecimalDigits        int64    `json:"max_decimal_digits"`
	PerfectDecimalPrecision bool     `json:"perfect_decimal_precision"`
	AbsoluteError           float64  `json:"absolute_error"`
	RelativeError           float64  `json:"relative_error"`
	Timestamp               *string  `json:"timestamp"`
	Type                    string   `json:"type"`
}

func toEstimationView(e store.Estimation) EstimationView {
	v := EstimationView{
		ID:                      e.ID,
		PiEstimate:              e.PiEstimate,
		Algorithm:               e.Algorithm,
		Iterations:              e.Iterations,
		TimeSeconds:             e.TimeSeconds,
		IterationsPerSecond:     e.IterationsPerSecond,
		CorrectDigits:           e.CorrectDigits,
		MaxDecimalDigits:        e.MaxDecimalDigits,
		PerfectDecimalPrecision: e.PerfectDecimalPrecision,
		AbsoluteError:           e.AbsoluteError,
		RelativeError:           e.RelativeError,
		Type:                    e.Type,
	}
	if e.Timestamp != nil {
		ts := e.Timestamp.UTC().Format(time.RFC3339)
		v.Timestamp = &ts
	}
	return v
}

func toEstimationViews(rows []store.Estimation) []EstimationView {
	out := make([]EstimationView, len(rows))
	for i, e := range rows {
		out[i] = toEstimationView(e)
	}
	return out
}

// EstimationsData is the payload of the combined estimations view.
type EstimationsData struct {
	Estimations              []EstimationView  `json:"estimations"`
	AvailableAlgorithms      []string          `json:"available_algorithms"`
	AlgorithmImplementations map[string]string `json:"algorithm_implementations"`
	Metadata                 EstimationsMeta   `json:"metadata"`
}

// EstimationsMeta holds the totals of the combined estimations view.
type EstimationsMeta struct {
	TotalEstimations int `json:"total_estimations"`
	TotalAlgorithms  int `json:"total_algorithms"`
}

// BasicEstimationsData is the payload of the estimations view without sources.
type BasicEstimationsData struct {
	Estimations []EstimationView `json:"estimations"`
	Metadata    struct {
		TotalEstimations int `json:"total_estimations"`
	} `json:"metadata"`
}

// AlgorithmInfo annotates one scraped algorithm.
type AlgorithmInfo struct {
	Implementation string `json:"implementation"`
	Description    string `json:"description"`
	Type           string `json:"type"`
}

// AlgorithmsData is the payload of the algorithms view.
type AlgorithmsData struct {
	Algorithms map[string]AlgorithmInfo `json:"algorithms"`
	Metadata   struct {
		TotalAlgorithms int `json:"total_algorithms"`
	} `json:"metadata"`
}

// FormulaInfo is the full catalog entry of one algorithm.
type FormulaInfo struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Formula         string `json:"formula"`
	FullDescription string `json:"full_description"`
	DeepExplanation string `json:"deep_explanation"`
	Convergence     string `json:"convergence"`
	Applications    string `json:"applications"`
	Complexity      string `json:"complexity"`
}

func toFormulaInfo(m *store.AlgorithmMetadata) FormulaInfo {
	return FormulaInfo{
		ID:              m.ID,
		Name:            m.Name,
		Formula:         m.Formula,
		FullDescription: m.Description,
		DeepExplanation: m.DeepExplanation,
		Convergence:     m.Convergence,
		Applications:    m.Applications,
		Complexity:      m.Complexity,
	}
}

// FormulasData is the payload of the formulas view.
type FormulasData struct {
	Formulas map[string]FormulaInfo `json:"formulas"`
	Metadata struct {
		TotalFormulas int      `json:"total_formulas"`
		AvailableIDs  []string `json:"available_ids"`
	} `json:"metadata"`
}

// PerformerView is one row of the top-performers view.
type PerformerView struct {
	Algorithm     string  `json:"algorithm"`
	TimeSeconds   float64 `json:"time_seconds"`
	CorrectDigits int64   `json:"correct_digits"`
}

// TopPerformersData is the payload of the top-performers view.
type TopPerformersData struct {
	Estimations []PerformerView `json:"estimations"`
	Metadata    struct {
		Count int `json:"count"`
		TopN  int `json:"top_n"`
	} `json:"metadata"`
}

// AlgorithmData is the payload of the single-algorithm view. Fields the
// algorithm has no data for are null.
type AlgorithmData struct {
	Algorithm      string          `json:"algorithm"`
	Implementation *string         `json:"implementation"`
	Formula        *FormulaInfo    `json:"formula"`
	Latest         *EstimationView `json:"latest_estimation"`
}

// RerunRequest is the body of POST /api/v1/algorithms/rerun.
type RerunRequest struct {
	AlgorithmName string `json:"algorithmName" validate:"required,max=50,algorithm"`
}

// RerunResponse echoes the algorithm and the compute backend's result.
type RerunResponse struct {
	AlgorithmName string         `json:"algorithmName"`
	Result        map[string]any `json:"result"`
}
