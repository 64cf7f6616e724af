// Package store owns the proxy's persistent state: the pi_estimations table
// in SQLite and the JSON sidecar describing each algorithm.
//
// Read operations never return errors. A storage failure is logged and
// reported through the second (ok) return value, which callers treat as
// "nothing retrieved". The single write, UpdateEstimationAfterRerun, reports
// success as a bool and has no concurrency control: concurrent reruns of the
// same algorithm are last-write-wins.
//
// Each query borrows a connection from the database/sql pool for its own
// duration only; nothing holds a connection across requests.
package store
