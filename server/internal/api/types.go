package api

// HealthResponse is the JSON shape for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// errorResponse is the plain error body of routing failures and the
// pass-through endpoints.
type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}
