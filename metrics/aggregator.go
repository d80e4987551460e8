package metrics

import (
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
)

// RequestMetric is the Aggregate Request Metric of spec §3, keyed by
// (method, name).
type RequestMetric struct {
	Key         RequestKey
	Count       int64
	Fails       int64
	StatusCodes map[int]int64
	MinUs       int64
	MaxUs       int64
	RawHist     *hdrhistogram.Histogram
	COHist      *hdrhistogram.Histogram
	Series      *TimeSeries
	HasCOEvent  bool
	SyntheticN  int64
}

func newRequestMetric(key RequestKey) *RequestMetric {
	return &RequestMetric{
		Key:         key,
		StatusCodes: make(map[int]int64),
		RawHist:     newHistogram(),
		COHist:      newHistogram(),
		Series:      newTimeSeries(),
	}
}

// TransactionMetric is the Transaction Metric Aggregate of spec §3.
type TransactionMetric struct {
	Key    TransactionKey
	Name   string
	Count  int64
	Fails  int64
	MinUs  int64
	MaxUs  int64
	Hist   *hdrhistogram.Histogram
	Series *TimeSeries
}

func newTransactionMetric(key TransactionKey, name string) *TransactionMetric {
	return &TransactionMetric{Key: key, Name: name, Hist: newHistogram(), Series: newTimeSeries()}
}

// ScenarioMetric is the Scenario Metric Aggregate of spec §3.
type ScenarioMetric struct {
	ScenarioIndex int
	Iterations    int64
	users         map[uint64]struct{}
	Hist          *hdrhistogram.Histogram
}

func newScenarioMetric(idx int) *ScenarioMetric {
	return &ScenarioMetric{ScenarioIndex: idx, users: make(map[uint64]struct{}), Hist: newHistogram()}
}

// Users returns the number of distinct users that have completed at least
// one iteration of this scenario.
func (m *ScenarioMetric) Users() int { return len(m.users) }

// ErrorMetric is the Error Metric Aggregate of spec §3, retaining only the
// first full sample per key to bound memory.
type ErrorMetric struct {
	Key     ErrorKey
	Count   int64
	Sample  ErrorSample
}

// Snapshot is a cloned, read-only view of the Aggregator's state at the
// moment it was requested (spec §4.3: "every snapshot clones the
// aggregates").
type Snapshot struct {
	AttackStart  time.Time
	Duration     time.Duration
	Requests     map[RequestKey]*RequestMetric
	Transactions map[TransactionKey]*TransactionMetric
	Scenarios    map[int]*ScenarioMetric
	Errors       map[ErrorKey]*ErrorMetric
}

type commandKind int

const (
	cmdRequest commandKind = iota
	cmdTransaction
	cmdScenario
	cmdReset
	cmdSnapshot
	cmdShutdown
)

type command struct {
	kind        commandKind
	request     *RequestSample
	transaction *TransactionSample
	scenario    *ScenarioSample
	reply       chan Snapshot
	done        chan struct{}
}

// Aggregator is the single task that owns all aggregate state (spec §4.3).
// It is fed by Submit*/Reset/Snapshot/Shutdown, all of which go through one
// bounded channel so every write is observed in the order it was sent.
type Aggregator struct {
	ch chan command

	attackStart  time.Time
	requests     map[RequestKey]*RequestMetric
	transactions map[TransactionKey]*TransactionMetric
	scenarios    map[int]*ScenarioMetric
	errors       map[ErrorKey]*ErrorMetric

	stopped chan struct{}
}

// NewAggregator creates an Aggregator with the given inbound channel
// capacity (spec §4.3 backpressure: "a bounded channel with capacity sized
// so that transient aggregator pauses do not stall users more than a small
// multiple of a request").
func NewAggregator(channelCapacity int) *Aggregator {
	if channelCapacity <= 0 {
		channelCapacity = 10_000
	}
	return &Aggregator{
		ch:           make(chan command, channelCapacity),
		attackStart:  time.Now(),
		requests:     make(map[RequestKey]*RequestMetric),
		transactions: make(map[TransactionKey]*TransactionMetric),
		scenarios:    make(map[int]*ScenarioMetric),
		errors:       make(map[ErrorKey]*ErrorMetric),
		stopped:      make(chan struct{}),
	}
}

// Run executes the aggregator's consume loop until Shutdown is called. It
// recovers a panic into the returned error, per spec §7
// PanicInTask.
func (a *Aggregator) Run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicToError("metrics", r)
		}
		close(a.stopped)
	}()

	for cmd := range a.ch {
		switch cmd.kind {
		case cmdRequest:
			a.applyRequest(cmd.request)
		case cmdTransaction:
			a.applyTransaction(cmd.transaction)
		case cmdScenario:
			a.applyScenario(cmd.scenario)
		case cmdReset:
			a.reset()
			close(cmd.done)
		case cmdSnapshot:
			cmd.reply <- a.snapshot()
		case cmdShutdown:
			close(cmd.done)
			return nil
		}
	}
	return nil
}

// SubmitRequest sends a RequestSample for aggregation (spec §4.3 step 1-5).
// It blocks if the channel is full, per spec §4.3 backpressure: "samples
// are never dropped silently".
func (a *Aggregator) SubmitRequest(s RequestSample) {
	a.ch <- command{kind: cmdRequest, request: &s}
}

// SubmitTransaction sends a TransactionSample for aggregation.
func (a *Aggregator) SubmitTransaction(s TransactionSample) {
	a.ch <- command{kind: cmdTransaction, transaction: &s}
}

// SubmitScenario sends a ScenarioSample for aggregation.
func (a *Aggregator) SubmitScenario(s ScenarioSample) {
	a.ch <- command{kind: cmdScenario, scenario: &s}
}

// Reset clears all aggregates and restarts the attack clock (spec §4.3
// "Reset semantics"), blocking until the reset has been applied.
func (a *Aggregator) Reset() {
	done := make(chan struct{})
	a.ch <- command{kind: cmdReset, done: done}
	<-done
}

// Snapshot requests a cloned view of current aggregates.
func (a *Aggregator) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	a.ch <- command{kind: cmdSnapshot, reply: reply}
	return <-reply
}

// Shutdown stops the consume loop after draining any commands already
// queued ahead of it, and waits for Run to return.
func (a *Aggregator) Shutdown() {
	done := make(chan struct{})
	a.ch <- command{kind: cmdShutdown, done: done}
	<-done
	<-a.stopped
}

func (a *Aggregator) elapsedSeconds(startedAtMs int64) int64 {
	return startedAtMs / 1000
}

func (a *Aggregator) applyRequest(s *RequestSample) {
	key := RequestKey{Method: s.Method, Name: s.Name}
	m, ok := a.requests[key]
	if !ok {
		m = newRequestMetric(key)
		a.requests[key] = m
	}

	if s.Update {
		// set_failure(): convert a previously-counted success into a
		// failure without double-counting Count, StatusCodes, or either
		// histogram (spec §8 invariant: success count -1, failure count +1).
		m.Fails++
		a.recordError(s)
		return
	}

	m.Count++
	if !s.Success {
		m.Fails++
	}
	m.StatusCodes[s.StatusCode]++

	if m.MinUs == 0 || s.ResponseTimeUs < m.MinUs {
		m.MinUs = s.ResponseTimeUs
	}
	if s.ResponseTimeUs > m.MaxUs {
		m.MaxUs = s.ResponseTimeUs
	}

	if !s.IsCOSynthetic {
		recordUs(m.RawHist, s.ResponseTimeUs)
	} else {
		m.HasCOEvent = true
		m.SyntheticN++
	}
	recordUs(m.COHist, s.ResponseTimeUs)

	m.Series.record(a.elapsedSeconds(s.StartedAtMs), s.ResponseTimeUs, !s.Success)

	if !s.Success {
		a.recordError(s)
	}
}

func (a *Aggregator) recordError(s *RequestSample) {
	ekey := ErrorKey{Method: s.Method, Name: s.Name, ErrorText: s.ErrorText}
	if _, exists := a.errors[ekey]; !exists {
		a.errors[ekey] = &ErrorMetric{
			Key: ekey,
			Sample: ErrorSample{
				Method:         s.Method,
				Name:           s.Name,
				URL:            s.URL,
				StatusCode:     s.StatusCode,
				ResponseTimeUs: s.ResponseTimeUs,
				FirstSeen:      time.Now(),
			},
		}
	}
	a.errors[ekey].Count++
}

func (a *Aggregator) applyTransaction(s *TransactionSample) {
	key := TransactionKey{ScenarioIndex: s.ScenarioIndex, TransactionIndex: s.TransactionIndex}
	m, ok := a.transactions[key]
	if !ok {
		m = newTransactionMetric(key, s.Name)
		a.transactions[key] = m
	}
	m.Count++
	if !s.Success {
		m.Fails++
	}
	if m.MinUs == 0 || s.DurationUs < m.MinUs {
		m.MinUs = s.DurationUs
	}
	if s.DurationUs > m.MaxUs {
		m.MaxUs = s.DurationUs
	}
	recordUs(m.Hist, s.DurationUs)
	m.Series.record(int64(time.Since(a.attackStart).Seconds()), s.DurationUs, !s.Success)
}

func (a *Aggregator) applyScenario(s *ScenarioSample) {
	m, ok := a.scenarios[s.ScenarioIndex]
	if !ok {
		m = newScenarioMetric(s.ScenarioIndex)
		a.scenarios[s.ScenarioIndex] = m
	}
	m.Iterations++
	m.users[s.UserID] = struct{}{}
	recordUs(m.Hist, s.DurationUs)
}

func (a *Aggregator) reset() {
	a.attackStart = time.Now()
	a.requests = make(map[RequestKey]*RequestMetric)
	a.transactions = make(map[TransactionKey]*TransactionMetric)
	a.scenarios = make(map[int]*ScenarioMetric)
	a.errors = make(map[ErrorKey]*ErrorMetric)
}

func (a *Aggregator) snapshot() Snapshot {
	snap := Snapshot{
		AttackStart:  a.attackStart,
		Duration:     time.Since(a.attackStart),
		Requests:     make(map[RequestKey]*RequestMetric, len(a.requests)),
		Transactions: make(map[TransactionKey]*TransactionMetric, len(a.transactions)),
		Scenarios:    make(map[int]*ScenarioMetric, len(a.scenarios)),
		Errors:       make(map[ErrorKey]*ErrorMetric, len(a.errors)),
	}
	for k, v := range a.requests {
		clone := *v
		clone.RawHist = cloneHistogram(v.RawHist)
		clone.COHist = cloneHistogram(v.COHist)
		clone.Series = cloneTimeSeries(v.Series)
		clone.StatusCodes = make(map[int]int64, len(v.StatusCodes))
		for code, n := range v.StatusCodes {
			clone.StatusCodes[code] = n
		}
		snap.Requests[k] = &clone
	}
	for k, v := range a.transactions {
		clone := *v
		clone.Hist = cloneHistogram(v.Hist)
		clone.Series = cloneTimeSeries(v.Series)
		snap.Transactions[k] = &clone
	}
	for k, v := range a.scenarios {
		clone := *v
		clone.Hist = cloneHistogram(v.Hist)
		clone.users = make(map[uint64]struct{}, len(v.users))
		for u := range v.users {
			clone.users[u] = struct{}{}
		}
		snap.Scenarios[k] = &clone
	}
	for k, v := range a.errors {
		clone := *v
		snap.Errors[k] = &clone
	}
	return snap
}

func panicToError(source string, r any) error {
	return &panicError{source: source, value: r}
}

type panicError struct {
	source string
	value  any
}

func (e *panicError) Error() string {
	return e.source + ": panic: " + toString(e.value)
}

func toString(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "non-error panic value"
}
