// Package metrics holds the Prometheus collectors for the proxy.
//
// Collectors are registered on the default registry through promauto and
// exposed by the api package at GET /metrics. Families:
//
//	pibench_api_requests_total{method,route,status_code}
//	pibench_api_request_duration_seconds{method,route}
//	pibench_compute_backend_requests_total{operation,outcome}
//	pibench_compute_backend_request_duration_seconds{operation}
//	pibench_store_operations_total{operation,result}
//	pibench_source_fetches_total{result}
//	pibench_source_functions_extracted
//	pibench_reruns_total{result}
package metrics
