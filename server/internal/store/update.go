package store

import (
	"log/slog"
	"math"
	"strconv"
	"strings"
)

type fieldKind int

const (
	kindFloat fieldKind = iota
	kindInt
	kindBool
)

// updatableFields is the fixed, ordered set of columns a rerun may overwrite.
var updatableFields = []struct {
	column string
	kind   fieldKind
}{
	{"pi_estimate", kindFloat},
	{"iterations", kindInt},
	{"time_seconds", kindFloat},
	{"iterations_per_second", kindFloat},
	{"correct_digits", kindInt},
	{"max_decimal_digits", kindInt},
	{"perfect_decimal_precision", kindBool},
	{"absolute_error", kindFloat},
	{"relative_error", kindFloat},
}

// buildUpdate returns the UPDATE statement and its arguments for the fields
// present in data. The algorithm name is the last argument. An empty query
// means there is nothing to write.
func buildUpdate(algorithm string, data map[string]any) (string, []any) {
	var (
		sets []string
		args []any
	)
	for _, f := range updatableFields {
		raw, ok := data[f.column]
		if !ok || raw == nil {
			continue
		}
		v, ok := coerce(raw, f.kind)
		if !ok {
			slog.Warn("store: dropping unconvertible field",
				"algorithm", algorithm, "field", f.column, "value", raw)
			continue
		}
		sets = append(sets, f.column+" = ?")
		args = append(args, v)
	}
	if len(sets) == 0 {
		return "", nil
	}
	args = append(args, algorithm)
	return "UPDATE pi_estimations SET " + strings.Join(sets, ", ") + " WHERE algorithm = ?", args
}

func coerce(raw any, kind fieldKind) (any, bool) {
	switch kind {
	case kindBool:
		return toBool(raw)
	case kindInt:
		f, ok := toFloat(raw)
		if !ok || f != math.Trunc(f) {
			return nil, false
		}
		// MaxInt64 as a float64 rounds up to 2^63, which itself overflows.
		if f >= math.MaxInt64 || f < math.MinInt64 {
			return nil, false
		}
		return int64(f), true
	default:
		return toFloat(raw)
	}
}

func toFloat(raw any) (float64, bool) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case int32:
		f = float64(v)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toBool(raw any) (bool, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	default:
		f, ok := toFloat(raw)
		if !ok {
			return false, false
		}
		return f != 0, true
	}
}
