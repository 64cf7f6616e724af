// Package aggregator composes estimation rows, scraped algorithm sources and
// catalog metadata into the JSON payloads served under /api/v1, and runs the
// rerun workflow (compute, then persist).
//
// Every operation returns (payload, status). Read failures and panics degrade
// to the error envelope:
//
//	{"status": "error", "error": {"message": ..., "code": "INTERNAL_ERROR", "details": ...}}
//
// Reruns have no concurrency control. Two reruns of the same algorithm race
// and the last update wins.
package aggregator
