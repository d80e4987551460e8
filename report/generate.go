package report

import (
	"fmt"
	"math"
	"sort"

	"github.com/tag1consulting/goose-go/metrics"
)

// Generate builds the rendering-agnostic Report from a finished attack's
// Input, optionally diffed against a prior baseline Report (spec §4.6,
// §6's baseline schema_version gate).
func Generate(in Input, baseline *Report, opts Options) (*Report, error) {
	rep := &Report{
		SchemaVersion: SchemaVersion,
		DurationMs:    in.Duration.Milliseconds(),
		Phases:        in.Phases,
	}

	for key, m := range in.Snapshot.Requests {
		row := RequestRow{
			Method:     key.Method,
			Name:       key.Name,
			Count:      m.Count,
			Fails:      m.Fails,
			MinUs:      m.MinUs,
			MaxUs:      m.MaxUs,
			HasCOEvent: m.HasCOEvent,
			SyntheticN: m.SyntheticN,
			Percentiles: PercentileRow{
				Percentiles: percentileMap(m.RawHist),
			},
		}
		if opts.IncludeStatusCodes {
			row.StatusCodes = statusCodeMap(m.StatusCodes)
		}
		if m.HasCOEvent {
			row.Percentiles.COPercentiles = percentileMap(m.COHist)
			row.COStdDevUs = coStdDev(m)
			rep.COEvents++
		}
		if opts.GranularReport {
			row.Series = seriesPoints(m.Series)
		}
		rep.Requests = append(rep.Requests, row)
	}
	sortRequests(rep.Requests)

	for key, m := range in.Snapshot.Transactions {
		row := TransactionRow{
			ScenarioIndex:    key.ScenarioIndex,
			TransactionIndex: key.TransactionIndex,
			Name:             m.Name,
			Count:            m.Count,
			Fails:            m.Fails,
			MinUs:            m.MinUs,
			MaxUs:            m.MaxUs,
			Percentiles:      PercentileRow{Percentiles: percentileMap(m.Hist)},
		}
		if opts.GranularReport {
			row.Series = seriesPoints(m.Series)
		}
		rep.Transactions = append(rep.Transactions, row)
	}
	sort.Slice(rep.Transactions, func(i, j int) bool {
		a, b := rep.Transactions[i], rep.Transactions[j]
		if a.ScenarioIndex != b.ScenarioIndex {
			return a.ScenarioIndex < b.ScenarioIndex
		}
		return a.TransactionIndex < b.TransactionIndex
	})

	for idx, m := range in.Snapshot.Scenarios {
		rep.Scenarios = append(rep.Scenarios, ScenarioRow{
			ScenarioIndex: idx,
			Iterations:    m.Iterations,
			Users:         m.Users(),
		})
	}
	sort.Slice(rep.Scenarios, func(i, j int) bool { return rep.Scenarios[i].ScenarioIndex < rep.Scenarios[j].ScenarioIndex })

	if opts.IncludeErrors {
		for _, m := range in.Snapshot.Errors {
			rep.Errors = append(rep.Errors, ErrorRow{
				Method:         m.Sample.Method,
				Name:           m.Sample.Name,
				ErrorText:      m.Key.ErrorText,
				Count:          m.Count,
				StatusCode:     m.Sample.StatusCode,
				ResponseTimeUs: m.Sample.ResponseTimeUs,
			})
		}
		sort.Slice(rep.Errors, func(i, j int) bool { return rep.Errors[i].Count > rep.Errors[j].Count })
	}

	if baseline != nil {
		diff, err := Diff(rep, baseline)
		if err != nil {
			return nil, fmt.Errorf("report: applying baseline: %w", err)
		}
		rep.Baseline = diff
	}

	return rep, nil
}

func sortRequests(rows []RequestRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Method != rows[j].Method {
			return rows[i].Method < rows[j].Method
		}
		return rows[i].Name < rows[j].Name
	})
}

func percentileMap(h interface{ ValueAtQuantile(float64) int64 }) map[string]int64 {
	out := make(map[string]int64, len(metrics.Percentiles))
	for _, p := range metrics.Percentiles {
		out[fmt.Sprintf("%g", p)] = h.ValueAtQuantile(p)
	}
	return out
}

func statusCodeMap(codes map[int]int64) map[string]int64 {
	out := make(map[string]int64, len(codes))
	for code, n := range codes {
		out[fmt.Sprintf("%d", code)] = n
	}
	return out
}

func seriesPoints(ts interface {
	Buckets() []metrics.SecondBucket
}) []SeriesPoint {
	buckets := ts.Buckets()
	out := make([]SeriesPoint, len(buckets))
	for i, b := range buckets {
		out[i] = SeriesPoint{ElapsedSeconds: b.ElapsedSeconds, Requests: b.Requests, Errors: b.Errors, AvgMs: b.AvgMs()}
	}
	return out
}

func coStdDev(m *metrics.RequestMetric) float64 {
	// The CO-adjusted table reports standard deviation between the raw and
	// CO-adjusted averages in place of a second min column (spec §4.3).
	rawAvg, coAvg := m.RawHist.Mean(), m.COHist.Mean()
	mean := (rawAvg + coAvg) / 2
	return math.Sqrt(((rawAvg-mean)*(rawAvg-mean) + (coAvg-mean)*(coAvg-mean)) / 2)
}
