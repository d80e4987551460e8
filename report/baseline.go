package report

import "fmt"

// Delta wraps a current value alongside its change from a baseline value
// (spec §4.6: baseline delta-wrapping `{value, delta}`).
type Delta[T int64 | float64] struct {
	Value T `json:"value"`
	Delta T `json:"delta"`
}

// BaselineDiff pairs each current request row with its delta against the
// matching (method,name) row in a prior Report, keyed the same way the
// live Requests table is.
type BaselineDiff struct {
	Requests []RequestDelta `json:"requests"`
}

// RequestDelta is one (method,name) row's current-vs-baseline comparison.
type RequestDelta struct {
	Method string            `json:"method"`
	Name   string             `json:"name"`
	Count  Delta[int64]       `json:"count"`
	Fails  Delta[int64]       `json:"fails"`
	P95Us  Delta[int64]       `json:"p95_us"`
	P99Us  Delta[int64]       `json:"p99_us"`
}

// Diff compares current against baseline row by row, matching the set of
// keys present in current; a baseline row with no current counterpart is
// silently dropped (the row no longer exists to report against) and a
// current row with no baseline counterpart reports a delta of its own
// value (treated as a 0-baseline).
func Diff(current, baseline *Report) (*BaselineDiff, error) {
	if baseline.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("baseline schema_version %d does not match current %d", baseline.SchemaVersion, SchemaVersion)
	}

	byKey := make(map[string]RequestRow, len(baseline.Requests))
	for _, row := range baseline.Requests {
		byKey[row.Method+" "+row.Name] = row
	}

	diff := &BaselineDiff{}
	for _, row := range current.Requests {
		base, ok := byKey[row.Method+" "+row.Name]
		diff.Requests = append(diff.Requests, RequestDelta{
			Method: row.Method,
			Name:   row.Name,
			Count:  deltaOf(row.Count, base.Count, ok),
			Fails:  deltaOf(row.Fails, base.Fails, ok),
			P95Us:  deltaOf(row.Percentiles.Percentiles["95"], base.Percentiles.Percentiles["95"], ok),
			P99Us:  deltaOf(row.Percentiles.Percentiles["99"], base.Percentiles.Percentiles["99"], ok),
		})
	}
	return diff, nil
}

func deltaOf(value, baseline int64, hasBaseline bool) Delta[int64] {
	if !hasBaseline {
		return Delta[int64]{Value: value, Delta: value}
	}
	return Delta[int64]{Value: value, Delta: value - baseline}
}
