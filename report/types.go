// Package report implements the Report Generator of spec §4.6: text, HTML,
// and JSON summaries of a finished (or baseline-compared) attack, built
// from a final metrics.Snapshot.
//
// Grounded on internal/reporting/data_structures.go's plain-struct-then-
// marshal approach for text/JSON, and internal/reporting/templates.go's
// html/template usage for HTML.
package report

import (
	"time"

	"github.com/tag1consulting/goose-go/metrics"
)

// SchemaVersion is bumped whenever the JSON report's shape changes.
// Baselines carrying a different version are rejected (spec §6).
const SchemaVersion = 1

// PhaseRecord is one completed AttackPhase, in execution order.
type PhaseRecord struct {
	Phase       string        `json:"phase"`
	FromUsers   int           `json:"from_users"`
	TargetUsers int           `json:"target_users"`
	Duration    time.Duration `json:"-"`
	DurationMs  int64         `json:"duration_ms"`
}

// Input collects everything Generate needs from a finished attack.
type Input struct {
	AttackStart time.Time
	Duration    time.Duration
	Phases      []PhaseRecord
	Snapshot    metrics.Snapshot
}

// Options toggles the optional sections of spec §6's flag surface
// (--no-granular-report, --no-status-codes, --no-error-summary).
type Options struct {
	GranularReport     bool
	IncludeStatusCodes bool
	IncludeErrors      bool
}

// PercentileRow is one (method,name)/(scenario,transaction) row's
// percentile table, raw and CO-adjusted side by side (spec §4.3: "reported
// side-by-side whenever any CO event occurred; otherwise only raw").
type PercentileRow struct {
	Percentiles  map[string]int64 `json:"percentiles_us"`
	COPercentiles map[string]int64 `json:"co_percentiles_us,omitempty"`
}

// RequestRow is one Aggregate Request Metric's reported line.
type RequestRow struct {
	Method      string           `json:"method"`
	Name        string           `json:"name"`
	Count       int64            `json:"count"`
	Fails       int64            `json:"fails"`
	MinUs       int64            `json:"min_us"`
	MaxUs       int64            `json:"max_us"`
	StatusCodes map[string]int64 `json:"status_codes,omitempty"`
	HasCOEvent  bool             `json:"has_co_event"`
	SyntheticN  int64            `json:"co_synthetic_count"`
	COStdDevUs  float64          `json:"co_stddev_us,omitempty"`
	Percentiles PercentileRow    `json:"percentiles"`
	Series      []SeriesPoint    `json:"series,omitempty"`
}

// TransactionRow is one Transaction Metric Aggregate's reported line.
type TransactionRow struct {
	ScenarioIndex    int           `json:"scenario_index"`
	TransactionIndex int           `json:"transaction_index"`
	Name             string        `json:"name"`
	Count            int64         `json:"count"`
	Fails            int64         `json:"fails"`
	MinUs            int64         `json:"min_us"`
	MaxUs            int64         `json:"max_us"`
	Percentiles      PercentileRow `json:"percentiles"`
	Series           []SeriesPoint `json:"series,omitempty"`
}

// ScenarioRow is one Scenario Metric Aggregate's reported line.
type ScenarioRow struct {
	ScenarioIndex int   `json:"scenario_index"`
	Iterations    int64 `json:"iterations"`
	Users         int   `json:"users"`
	MinUs         int64 `json:"min_us"`
	MaxUs         int64 `json:"max_us"`
}

// ErrorRow is one Error Metric Aggregate's reported line.
type ErrorRow struct {
	Method         string `json:"method"`
	Name           string `json:"name"`
	ErrorText      string `json:"error_text"`
	Count          int64  `json:"count"`
	StatusCode     int    `json:"status_code"`
	ResponseTimeUs int64  `json:"response_time_us"`
}

// SeriesPoint is one second of a rolling time series.
type SeriesPoint struct {
	ElapsedSeconds int64   `json:"t"`
	Requests       int64   `json:"requests"`
	Errors         int64   `json:"errors"`
	AvgMs          float64 `json:"avg_ms"`
}

// Report is the final, rendering-agnostic summary of one attack
// (spec §6 JSON report shape: "{schema_version, duration, phases[],
// requests[], transactions[], scenarios[], errors[], co_events}").
type Report struct {
	SchemaVersion int              `json:"schema_version"`
	DurationMs    int64            `json:"duration_ms"`
	Phases        []PhaseRecord    `json:"phases"`
	Requests      []RequestRow     `json:"requests"`
	Transactions  []TransactionRow `json:"transactions"`
	Scenarios     []ScenarioRow    `json:"scenarios"`
	Errors        []ErrorRow       `json:"errors,omitempty"`
	COEvents      int              `json:"co_events"`

	Baseline *BaselineDiff `json:"baseline,omitempty"`
}
