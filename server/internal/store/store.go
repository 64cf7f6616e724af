package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pibench/pibench/server/internal/metrics"
)

// schema creates the estimations table when the database is new. Column
// order is the authoritative Estimation field order.
const schema = `
CREATE TABLE IF NOT EXISTS pi_estimations (
    id                        INTEGER PRIMARY KEY AUTOINCREMENT,
    pi_estimate               REAL,
    algorithm                 TEXT NOT NULL,
    iterations                INTEGER,
    time_seconds              REAL,
    iterations_per_second     REAL,
    correct_digits            INTEGER,
    max_decimal_digits        INTEGER,
    perfect_decimal_precision INTEGER,
    absolute_error            REAL,
    relative_error            REAL,
    timestamp                 TEXT DEFAULT CURRENT_TIMESTAMP,
    type                      TEXT
);
CREATE INDEX IF NOT EXISTS idx_pi_estimations_algorithm ON pi_estimations(algorithm);
`

const estimationColumns = `id, pi_estimate, algorithm, iterations, time_seconds,
	iterations_per_second, correct_digits, max_decimal_digits,
	perfect_decimal_precision, absolute_error, relative_error, timestamp, type`

// Estimation is one persisted measurement of an algorithm run.
type Estimation struct {
	ID                      int64
	PiEstimate              *float64
	Algorithm               string
	Iterations              int64
	TimeSeconds             float64
	IterationsPerSecond     float64
	CorrectDigits           int64
	MaxDecimalDigits        int64
	PerfectDecimalPrecision bool
	AbsoluteError           float64
	RelativeError           float64
	Timestamp               *time.Time
	Type                    string
}

// AlgorithmType pairs an algorithm with its category label.
type AlgorithmType struct {
	Algorithm string
	Type      string
}

// Performer is one row of the fastest-algorithms ranking.
type Performer struct {
	Algorithm     string
	TimeSeconds   float64
	CorrectDigits int64
}

// Store reads and writes estimations and serves algorithm metadata.
type Store struct {
	db      *sql.DB
	catalog *Catalog
}

type options struct {
	busyTimeout int
	mkdirAll    bool
}

// Option customises Open.
type Option func(*options)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 5000.
func WithBusyTimeout(ms int) Option { return func(o *options) { o.busyTimeout = ms } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(o *options) { o.mkdirAll = true } }

// Open opens the SQLite database at dbPath, creates the estimations table if
// needed and loads the metadata sidecar at metadataPath.
func Open(dbPath, metadataPath string, opts ...Option) (*Store, error) {
	o := options{busyTimeout: 5000}
	for _, opt := range opts {
		opt(&o)
	}

	if o.mkdirAll {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", dbPath, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", o.busyTimeout),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	catalog, err := LoadCatalog(metadataPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: %w", err)
	}

	return &Store{db: db, catalog: catalog}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Catalog returns the algorithm metadata catalog.
func (s *Store) Catalog() *Catalog {
	return s.catalog
}

// FetchAllEstimations returns every estimation row ordered by id.
func (s *Store) FetchAllEstimations(ctx context.Context) ([]Estimation, bool) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+estimationColumns+` FROM pi_estimations ORDER BY id`)
	if err != nil {
		readFailed("fetch_all_estimations", err)
		return nil, false
	}
	defer rows.Close()

	out := []Estimation{}
	for rows.Next() {
		e, err := scanEstimation(rows)
		if err != nil {
			readFailed("fetch_all_estimations", err)
			return nil, false
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		readFailed("fetch_all_estimations", err)
		return nil, false
	}
	metrics.RecordStoreOperation("fetch_all_estimations", "ok")
	return out, true
}

func readFailed(op string, err error) {
	metrics.RecordStoreOperation(op, "error")
	slog.Error("store: query failed", "operation", op, "err", err)
}

// FetchAllTypes returns the (algorithm, type) pair of every row.
func (s *Store) FetchAllTypes(ctx context.Context) ([]AlgorithmType, bool) {
	const op = "fetch_all_types"
	rows, err := s.db.QueryContext(ctx, `SELECT algorithm, type FROM pi_estimations ORDER BY id`)
	if err != nil {
		readFailed(op, err)
		return nil, false
	}
	defer rows.Close()

	out := []AlgorithmType{}
	for rows.Next() {
		var algo, typ sql.NullString
		if err := rows.Scan(&algo, &typ); err != nil {
			readFailed(op, err)
			return nil, false
		}
		out = append(out, AlgorithmType{Algorithm: algo.String, Type: typ.String})
	}
	if err := rows.Err(); err != nil {
		readFailed(op, err)
		return nil, false
	}
	metrics.RecordStoreOperation(op, "ok")
	return out, true
}

// TopElements returns at most n rows ordered by ascending time_seconds.
func (s *Store) TopElements(ctx context.Context, n int) ([]Performer, bool) {
	const op = "top_elements"
	if n <= 0 {
		// SQLite treats a negative LIMIT as unlimited.
		return []Performer{}, true
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT algorithm, time_seconds, correct_digits
		FROM pi_estimations
		ORDER BY time_seconds ASC
		LIMIT ?`, n)
	if err != nil {
		readFailed(op, err)
		return nil, false
	}
	defer rows.Close()

	out := []Performer{}
	for rows.Next() {
		var (
			algo   sql.NullString
			secs   sql.NullFloat64
			digits sql.NullInt64
		)
		if err := rows.Scan(&algo, &secs, &digits); err != nil {
			readFailed(op, err)
			return nil, false
		}
		out = append(out, Performer{Algorithm: algo.String, TimeSeconds: secs.Float64, CorrectDigits: digits.Int64})
	}
	if err := rows.Err(); err != nil {
		readFailed(op, err)
		return nil, false
	}
	metrics.RecordStoreOperation(op, "ok")
	return out, true
}

// InsertEstimation appends a row and returns its id. ID is ignored; a nil
// Timestamp lets the database stamp the row.
func (s *Store) InsertEstimation(ctx context.Context, e Estimation) (int64, error) {
	var ts any
	if e.Timestamp != nil {
		ts = e.Timestamp.UTC().Format(timestampLayout)
	}
	var pi any
	if e.PiEstimate != nil {
		pi = *e.PiEstimate
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pi_estimations (pi_estimate, algorithm, iterations, time_seconds,
			iterations_per_second, correct_digits, max_decimal_digits,
			perfect_decimal_precision, absolute_error, relative_error, timestamp, type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), ?)`,
		pi, e.Algorithm, e.Iterations, e.TimeSeconds, e.IterationsPerSecond,
		e.CorrectDigits, e.MaxDecimalDigits, e.PerfectDecimalPrecision,
		e.AbsoluteError, e.RelativeError, ts, e.Type)
	if err != nil {
		metrics.RecordStoreOperation("insert_estimation", "error")
		return 0, fmt.Errorf("store: insert estimation %q: %w", e.Algorithm, err)
	}
	metrics.RecordStoreOperation("insert_estimation", "ok")
	return res.LastInsertId()
}

// UpdateEstimationAfterRerun overwrites the measured fields of every row for
// algorithm with the values present in newData. Absent, null and
// unconvertible values are skipped. It reports whether any row changed; with
// nothing to write it returns false without touching the database.
func (s *Store) UpdateEstimationAfterRerun(ctx context.Context, algorithm string, newData map[string]any) bool {
	const op = "update_estimation"
	query, args := buildUpdate(algorithm, newData)
	if query == "" {
		metrics.RecordStoreOperation(op, "skipped")
		slog.Warn("store: rerun result has no updatable fields", "algorithm", algorithm)
		return false
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		metrics.RecordStoreOperation(op, "error")
		slog.Error("store: update estimation failed", "algorithm", algorithm, "err", err)
		return false
	}
	n, err := res.RowsAffected()
	if err != nil {
		metrics.RecordStoreOperation(op, "error")
		slog.Error("store: rows affected", "algorithm", algorithm, "err", err)
		return false
	}
	if n == 0 {
		metrics.RecordStoreOperation(op, "miss")
		slog.Warn("store: no estimation rows for algorithm", "algorithm", algorithm)
		return false
	}
	metrics.RecordStoreOperation(op, "ok")
	slog.Info("store: estimation updated", "algorithm", algorithm, "rows", n, "fields", len(args)-1)
	return true
}

// AlgorithmDetails looks up one algorithm's metadata by id, then by name.
func (s *Store) AlgorithmDetails(id string) Lookup {
	return s.catalog.Lookup(id)
}

// AllFormulaDescriptions looks up every id, one result per input in order.
func (s *Store) AllFormulaDescriptions(ids []string) []Lookup {
	return s.catalog.LookupAll(ids)
}

// --- row mapping ------------------------------------------------------------

const timestampLayout = "2006-01-02 15:04:05"

var timestampLayouts = []string{
	timestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEstimation(row scanner) (Estimation, error) {
	var (
		e        Estimation
		pi       sql.NullFloat64
		algo     sql.NullString
		iters    sql.NullInt64
		secs     sql.NullFloat64
		ips      sql.NullFloat64
		digits   sql.NullInt64
		maxDig   sql.NullInt64
		perfect  sql.NullBool
		absErr   sql.NullFloat64
		relErr   sql.NullFloat64
		ts       sql.NullString
		category sql.NullString
	)
	if err := row.Scan(&e.ID, &pi, &algo, &iters, &secs, &ips, &digits, &maxDig,
		&perfect, &absErr, &relErr, &ts, &category); err != nil {
		return Estimation{}, err
	}
	if pi.Valid {
		v := pi.Float64
		e.PiEstimate = &v
	}
	e.Algorithm = algo.String
	e.Iterations = iters.Int64
	e.TimeSeconds = secs.Float64
	e.IterationsPerSecond = ips.Float64
	e.CorrectDigits = digits.Int64
	e.MaxDecimalDigits = maxDig.Int64
	e.PerfectDecimalPrecision = perfect.Bool
	e.AbsoluteError = absErr.Float64
	e.RelativeError = relErr.Float64
	e.Type = category.String
	if ts.Valid {
		if t, ok := parseTimestamp(ts.String); ok {
			e.Timestamp = &t
		} else {
			slog.Warn("store: unparseable timestamp", "id", e.ID, "value", ts.String)
		}
	}
	return e, nil
}

func parseTimestamp(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
