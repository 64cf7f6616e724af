// Package api implements the HTTP REST API of the pibench proxy.
//
// New returns a chi router that serves:
//
//	GET  /api/v1/health                 proxy liveness
//	GET  /api/v1/servers/c/health       compute backend health (504/503/500 on failure)
//	GET  /api/v1/estimations            estimation rows joined with algorithm sources
//	GET  /api/v1/estimations/basic      estimation rows only
//	GET  /api/v1/estimations/top?n=4    n fastest rows, n in [1, 100]
//	GET  /api/v1/algorithms             scraped algorithms with description and type
//	GET  /api/v1/algorithms/{name}      one algorithm; 404 if unknown
//	POST /api/v1/algorithms/rerun       recompute and persist {"algorithmName": ...}
//	GET  /api/v1/formulas               catalog entries of the scraped algorithms
//	GET  /api/v1/pi/{algorithm}         compute backend result, passed through
//	GET  /metrics                       Prometheus exposition
//
// All endpoints respond with Content-Type: application/json (except /metrics),
// return 405 JSON for a wrong method and 404 JSON for an unknown path.
// /api/v1 is optionally rate limited per client IP.
package api
