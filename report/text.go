package report

import (
	"fmt"
	"strings"
)

// Text renders the plain-text summary table set (spec §4.6).
func (r *Report) Text() string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== Goose Attack Report ===\n")
	fmt.Fprintf(&b, "Duration: %dms\n\n", r.DurationMs)

	fmt.Fprintf(&b, "-- Phases --\n")
	for _, p := range r.Phases {
		fmt.Fprintf(&b, "%-10s %5d -> %-5d %8dms\n", p.Phase, p.FromUsers, p.TargetUsers, p.DurationMs)
	}

	fmt.Fprintf(&b, "\n-- Requests --\n")
	fmt.Fprintf(&b, "%-8s %-30s %8s %8s %10s %10s %10s\n", "METHOD", "NAME", "COUNT", "FAILS", "MIN(us)", "MAX(us)", "P95(us)")
	for _, row := range r.Requests {
		fmt.Fprintf(&b, "%-8s %-30s %8d %8d %10d %10d %10d\n",
			row.Method, row.Name, row.Count, row.Fails, row.MinUs, row.MaxUs, row.Percentiles.Percentiles["95"])
		if row.HasCOEvent {
			fmt.Fprintf(&b, "  (CO-adjusted) P95(us)=%d stddev(us)=%.1f synthetic=%d\n",
				row.Percentiles.COPercentiles["95"], row.COStdDevUs, row.SyntheticN)
		}
	}

	fmt.Fprintf(&b, "\n-- Transactions --\n")
	for _, row := range r.Transactions {
		fmt.Fprintf(&b, "%-30s %8d %8d %10d %10d\n", row.Name, row.Count, row.Fails, row.MinUs, row.MaxUs)
	}

	fmt.Fprintf(&b, "\n-- Scenarios --\n")
	for _, row := range r.Scenarios {
		fmt.Fprintf(&b, "scenario #%-3d iterations=%-8d users=%d\n", row.ScenarioIndex, row.Iterations, row.Users)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "\n-- Errors --\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "%-8s %-20s %-30s x%d (first status %d)\n", e.Method, e.Name, e.ErrorText, e.Count, e.StatusCode)
		}
	}

	if r.COEvents > 0 {
		fmt.Fprintf(&b, "\n%d request line(s) observed coordinated-omission events.\n", r.COEvents)
	}

	return b.String()
}
