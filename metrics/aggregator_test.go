package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunningAggregator(t *testing.T) *Aggregator {
	t.Helper()
	a := NewAggregator(100)
	go func() {
		_ = a.Run()
	}()
	t.Cleanup(a.Shutdown)
	return a
}

func TestAggregator_RequestCounts(t *testing.T) {
	a := newRunningAggregator(t)

	a.SubmitRequest(RequestSample{Method: "GET", Name: "/", ResponseTimeUs: 1000, StatusCode: 200, Success: true})
	a.SubmitRequest(RequestSample{Method: "GET", Name: "/", ResponseTimeUs: 2000, StatusCode: 500, Success: false, ErrorText: "server error"})

	snap := a.Snapshot()
	key := RequestKey{Method: "GET", Name: "/"}
	require.Contains(t, snap.Requests, key)

	m := snap.Requests[key]
	assert.Equal(t, int64(2), m.Count)
	assert.Equal(t, int64(1), m.Fails)
	assert.Equal(t, int64(1), m.StatusCodes[200])
	assert.Equal(t, int64(1), m.StatusCodes[500])

	// raw count + synthetic count == CO-adjusted histogram count (spec §8).
	assert.Equal(t, m.RawHist.TotalCount()+m.SyntheticN, m.COHist.TotalCount())
	// raw count == sum of status-code table values (spec §8).
	var statusSum int64
	for _, n := range m.StatusCodes {
		statusSum += n
	}
	assert.Equal(t, m.Count, statusSum)

	require.Len(t, snap.Errors, 1)
}

func TestAggregator_MinMaxInvariant(t *testing.T) {
	a := newRunningAggregator(t)

	for _, us := range []int64{500, 100, 900, 50} {
		a.SubmitRequest(RequestSample{Method: "GET", Name: "/x", ResponseTimeUs: us, StatusCode: 200, Success: true})
	}

	snap := a.Snapshot()
	m := snap.Requests[RequestKey{Method: "GET", Name: "/x"}]
	assert.Equal(t, int64(50), m.MinUs)
	assert.Equal(t, int64(900), m.MaxUs)
}

func TestAggregator_SyntheticSamplesCountedInCOHistOnly(t *testing.T) {
	a := newRunningAggregator(t)

	a.SubmitRequest(RequestSample{Method: "GET", Name: "/slow", ResponseTimeUs: 30_000_000, StatusCode: 200, Success: true})
	for i := 0; i < 5; i++ {
		a.SubmitRequest(RequestSample{Method: "GET", Name: "/slow", ResponseTimeUs: 29_000_000, StatusCode: 200, Success: true, IsCOSynthetic: true})
	}

	snap := a.Snapshot()
	m := snap.Requests[RequestKey{Method: "GET", Name: "/slow"}]
	assert.True(t, m.HasCOEvent)
	assert.Equal(t, int64(5), m.SyntheticN)
	assert.Equal(t, int64(1), m.RawHist.TotalCount())
	assert.Equal(t, int64(6), m.COHist.TotalCount())
	// The synthetic 29s samples sit below the 30s real sample, so the
	// CO-adjusted min can only be at or below the raw min.
	assert.LessOrEqual(t, m.COHist.Min(), m.RawHist.Min())
}

func TestAggregator_TransactionAndScenarioAggregates(t *testing.T) {
	a := newRunningAggregator(t)

	a.SubmitTransaction(TransactionSample{ScenarioIndex: 0, TransactionIndex: 0, Name: "login", DurationUs: 1000, Success: true})
	a.SubmitTransaction(TransactionSample{ScenarioIndex: 0, TransactionIndex: 0, Name: "login", DurationUs: 2000, Success: false})
	a.SubmitScenario(ScenarioSample{ScenarioIndex: 0, UserID: 1, DurationUs: 5000})
	a.SubmitScenario(ScenarioSample{ScenarioIndex: 0, UserID: 2, DurationUs: 6000})
	a.SubmitScenario(ScenarioSample{ScenarioIndex: 0, UserID: 1, DurationUs: 7000})

	snap := a.Snapshot()
	tm := snap.Transactions[TransactionKey{ScenarioIndex: 0, TransactionIndex: 0}]
	assert.Equal(t, int64(2), tm.Count)
	assert.Equal(t, int64(1), tm.Fails)

	sm := snap.Scenarios[0]
	assert.Equal(t, int64(3), sm.Iterations)
	assert.Equal(t, 2, sm.Users())
}

func TestAggregator_ResetClearsState(t *testing.T) {
	a := newRunningAggregator(t)

	a.SubmitRequest(RequestSample{Method: "GET", Name: "/", ResponseTimeUs: 100, StatusCode: 200, Success: true})
	require.Len(t, a.Snapshot().Requests, 1)

	a.Reset()

	snap := a.Snapshot()
	assert.Empty(t, snap.Requests)
	assert.Empty(t, snap.Transactions)
	assert.Empty(t, snap.Scenarios)
	assert.Empty(t, snap.Errors)
}

func TestPercentiles_FixedSet(t *testing.T) {
	assert.Equal(t, []float64{50, 60, 70, 80, 90, 95, 98, 99, 99.9, 99.99, 100}, Percentiles)
}
