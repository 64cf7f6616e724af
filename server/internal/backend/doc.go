// Package backend is the client for the compute backend ("Server C"), the
// service that actually runs the Pi-estimation algorithms.
//
// Both operations return a JSON-ready payload together with the HTTP status
// the proxy should answer with. Transport failures are never returned as Go
// errors; they are folded into the payload:
//
//	HealthCheck                       RunAlgorithm
//	200 upstream   -> ok, 200          any JSON upstream -> passed through verbatim
//	non-200        -> error+code, 500
//	timeout        -> timeout, 504     timeout           -> error+algorithm, 504
//	conn failure   -> unreachable, 503 other transport   -> error+algorithm, 500
//	anything else  -> error, 500       bad body          -> error+algorithm, 500
//
// A Client owns one *http.Client shared by all requests and must be closed
// by its owner at shutdown.
package backend
