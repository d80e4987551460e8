// Package metrics implements the Metrics Aggregator of spec §4.3: a single
// task owning all aggregate state, fed by an unbounded-intent but
// practically bounded channel of samples, producing percentile histograms
// with coordinated-omission backfill and per-second time series.
//
// Grounded on the teacher's internal/metrics/collector.go (RealTimeMetrics):
// same single-owner, channel-driven shape, with snapshots returned as cloned
// copies built by the owning goroutine rather than read under a mutex. The
// teacher's linear sorted-slice histogram is replaced with
// github.com/HdrHistogram/hdrhistogram-go to meet the O(log N)-insert,
// thousands-of-users scale this spec targets (see SPEC_FULL.md).
package metrics

import "time"

// RequestKey identifies an Aggregate Request Metric (spec §3).
type RequestKey struct {
	Method string
	Name   string
}

// RequestSample is produced once per HTTP call a Transaction makes
// (spec §3).
type RequestSample struct {
	Method               string
	Name                 string
	URL                  string
	FinalURL             string
	Redirected           bool
	StartedAtMs          int64 // ms since attack start
	ResponseTimeUs       int64
	StatusCode           int
	Success              bool
	IsCOSynthetic        bool
	COElapsedUs          int64
	UserCadenceUs        int64
	ErrorText            string
	UserID               uint64
	ScenarioIndex        int
	TransactionIndex     int
	Update               bool // true when a prior success is being converted to a failure (ValidationFailure)
}

// TransactionKey identifies a Transaction Metric Aggregate (spec §3).
type TransactionKey struct {
	ScenarioIndex    int
	TransactionIndex int
}

// TransactionSample is emitted once per transaction invocation (spec §4.2).
type TransactionSample struct {
	ScenarioIndex    int
	TransactionIndex int
	Name             string
	DurationUs       int64
	Success          bool
}

// ScenarioSample is emitted once per completed Scenario iteration
// (spec §4.2).
type ScenarioSample struct {
	ScenarioIndex int
	UserID        uint64
	DurationUs    int64
}

// ErrorKey identifies an Error Metric Aggregate (spec §3).
type ErrorKey struct {
	Method    string
	Name      string
	ErrorText string
}

// ErrorSample is the reference sample retained for an ErrorKey (spec §3).
type ErrorSample struct {
	Method         string
	Name           string
	URL            string
	StatusCode     int
	ResponseTimeUs int64
	FirstSeen      time.Time
}
