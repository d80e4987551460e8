package goose

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tag1consulting/goose-go/metrics"
)

func TestCadence_AverageMinMax(t *testing.T) {
	var c Cadence
	assert.False(t, c.Ready())

	c.Record(100)
	c.Record(300)
	c.Record(200)

	assert.True(t, c.Ready())
	assert.Equal(t, int64(200), c.Average())
	assert.Equal(t, int64(100), c.Min())
	assert.Equal(t, int64(300), c.Max())
}

func TestCadence_ThresholdAndUnit_Average(t *testing.T) {
	var c Cadence
	c.Record(1000)
	c.Record(1000)
	threshold, unit := c.thresholdAndUnit(COAverage)
	assert.Equal(t, int64(2000), threshold)
	assert.Equal(t, int64(1000), unit)
}

func newTestUser(t *testing.T, srv *httptest.Server, agg *metrics.Aggregator) *User {
	t.Helper()
	scenario := NewScenario("checkout")
	scenario.RegisterTransaction(NewTransaction("browse", func(u *User) TransactionOutcome {
		_, _, err := u.Get("/")
		return TransactionOutcome{Err: err}
	}))

	return NewUser(UserConfig{
		ID:             1,
		Scenario:       scenario,
		BaseURL:        srv.URL,
		Client:         srv.Client(),
		Scheduler:      RoundRobin,
		Aggregator:     agg,
		RequestTimeout: 5 * time.Second,
		COMode:         CODisabled,
		AttackStart:    time.Now(),
		Seed:           1,
	})
}

func TestUser_GetRecordsSuccessfulRequestSample(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	agg := metrics.NewAggregator(16)
	go agg.Run()
	defer agg.Shutdown()

	u := newTestUser(t, srv, agg)
	resp, _, err := u.Get("/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	snap := agg.Snapshot()
	var total int64
	for _, m := range snap.Requests {
		total += m.Count
	}
	assert.Equal(t, int64(1), total)
}

func TestUser_SetFailure_ConvertsLastSuccessToFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	agg := metrics.NewAggregator(16)
	go agg.Run()
	defer agg.Shutdown()

	u := newTestUser(t, srv, agg)
	_, _, err := u.Get("/")
	require.NoError(t, err)

	u.SetFailure("unexpected empty body")

	snap := agg.Snapshot()
	var fails, count int64
	for _, m := range snap.Requests {
		fails += m.Fails
		count += m.Count
	}
	assert.Equal(t, int64(1), count, "set_failure must not add a new request count")
	assert.Equal(t, int64(1), fails)
}

func TestUser_CheckCoordinatedOmission_EmitsSyntheticSamples(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	agg := metrics.NewAggregator(1024)
	go agg.Run()
	defer agg.Shutdown()

	u := newTestUser(t, srv, agg)
	u.coMode = COAverage
	u.cadence.Record(1_000_000) // 1s average cadence baseline

	real := metrics.RequestSample{Method: "GET", Name: "/", ResponseTimeUs: 60_000_000, Success: true}
	u.checkCoordinatedOmission(real)

	snap := agg.Snapshot()
	m := snap.Requests[metrics.RequestKey{Method: "GET", Name: "/"}]
	require.NotNil(t, m)
	assert.Equal(t, int64(58), m.SyntheticN)
}

func TestUser_ResolveURL(t *testing.T) {
	u := &User{BaseURL: "http://example.test/"}
	assert.Equal(t, "http://example.test/api", u.resolveURL("/api"))
	assert.Equal(t, "http://example.test/api", u.resolveURL("api"))
	assert.Equal(t, "http://other.test/x", u.resolveURL("http://other.test/x"))
}

func TestUser_RunHonorsShutdownBetweenIterations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	agg := metrics.NewAggregator(1024)
	go agg.Run()
	defer agg.Shutdown()

	u := newTestUser(t, srv, agg)
	done := make(chan error, 1)
	go func() { done <- u.Run() }()

	time.Sleep(50 * time.Millisecond)
	u.Shutdown()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("user did not stop after Shutdown")
	}
}
