package metrics

import (
	"math"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
)

// histogramMaxUs bounds the dynamic range at roughly one hour in
// microseconds, per spec §4.3 ("dynamic range up to ~1 hour").
const histogramMaxUs int64 = 3600 * 1_000_000

// histogramSigFigs is the number of significant decimal digits HDR
// histogram preserves; 3 keeps bucket counts reasonable while giving
// sub-millisecond percentile precision, the value most HDR-based load
// testers default to.
const histogramSigFigs = 3

// Percentiles are the fixed set reported by spec §4.3.
var Percentiles = []float64{50, 60, 70, 80, 90, 95, 98, 99, 99.9, 99.99, 100}

// newHistogram constructs a microsecond-resolution histogram spanning
// spec §4.3's required dynamic range.
func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, histogramMaxUs, histogramSigFigs)
}

// recordUs inserts a microsecond value, clamping to the histogram's
// configured maximum rather than erroring — a multi-minute coordinated
// omission stall can legitimately exceed the 1-hour ceiling only in
// pathological cases, and clamping keeps percentile computation total.
func recordUs(h *hdrhistogram.Histogram, us int64) {
	if us < 1 {
		us = 1
	}
	if us > histogramMaxUs {
		us = histogramMaxUs
	}
	_ = h.RecordValue(us)
}

// PercentileTable holds one value per entry of Percentiles, keyed by that
// percentile, expressed in microseconds.
type PercentileTable struct {
	Values map[float64]int64
}

func percentilesOf(h *hdrhistogram.Histogram) PercentileTable {
	values := make(map[float64]int64, len(Percentiles))
	for _, p := range Percentiles {
		values[p] = h.ValueAtQuantile(p)
	}
	return PercentileTable{Values: values}
}

// stdDevUs mirrors hdrhistogram's StdDev, surfaced separately because the
// CO-adjusted table reports standard deviation in place of a second min
// column (spec §4.3: "for CO-adjusted, present the standard deviation
// between the averages instead").
func stdDevUs(h *hdrhistogram.Histogram) float64 {
	sd := h.StdDev()
	if math.IsNaN(sd) {
		return 0
	}
	return sd
}

func cloneHistogram(h *hdrhistogram.Histogram) *hdrhistogram.Histogram {
	return hdrhistogram.Import(h.Export())
}
