// Package goose is the root of the framework: the Virtual User Runtime of
// spec §4.2 lives here alongside Scenario, Transaction, and the Orchestrator
// (goose.go), since callers import this package directly the way goose-rs
// callers import the goose crate.
package goose

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/tag1consulting/goose-go/goselog"
	"github.com/tag1consulting/goose-go/metrics"
	"github.com/tag1consulting/goose-go/throttle"
)

// COMode selects how the per-user Cadence tracker is used to detect and
// backfill Coordinated Omission (spec §4.2, §9).
type COMode int

const (
	// CODisabled never compares requests against cadence; no synthetic
	// samples are ever produced.
	CODisabled COMode = iota
	// COAverage flags a request once its response time exceeds 2x the
	// running average cadence.
	COAverage
	// COMinimum flags a request once it exceeds the minimum observed
	// cadence: the most sensitive mode.
	COMinimum
	// COMaximum flags a request once it exceeds the maximum observed
	// cadence: the least sensitive mode.
	COMaximum
)

// Cadence tracks one user's completed-iteration durations, the basis for
// Coordinated Omission detection (spec §4.2: "a per-user cadence tracker:
// a running average of completed-iteration durations").
//
// Grounded on user_simulator.go's running session-duration bookkeeping,
// generalized from a single moving value into the average/min/max triple
// the three CO modes each compare against.
type Cadence struct {
	sum   int64
	count int64
	min   int64
	max   int64
}

// Record adds one completed Scenario iteration's duration, in microseconds.
func (c *Cadence) Record(durationUs int64) {
	c.sum += durationUs
	c.count++
	if c.min == 0 || durationUs < c.min {
		c.min = durationUs
	}
	if durationUs > c.max {
		c.max = durationUs
	}
}

// Ready reports whether at least one iteration has completed: CO detection
// has no baseline before this.
func (c *Cadence) Ready() bool { return c.count > 0 }

// Average returns the running arithmetic mean iteration duration in
// microseconds, resolving the Open Question of SPEC_FULL.md in favor of a
// plain running mean over an EWMA.
func (c *Cadence) Average() int64 {
	if c.count == 0 {
		return 0
	}
	return c.sum / c.count
}

// Min returns the smallest completed-iteration duration observed.
func (c *Cadence) Min() int64 { return c.min }

// Max returns the largest completed-iteration duration observed.
func (c *Cadence) Max() int64 { return c.max }

// thresholdAndUnit returns the CO detection threshold and the per-synthetic-
// sample decrement unit for the configured mode. Both are derived from the
// same cadence statistic so a mode's threshold and its backfill step agree;
// the average mode's 2x multiplier applies only to the threshold, never to
// the decrement unit. checkCoordinatedOmission steps down from the real
// response time one unit at a time and stops before reaching one unit, so a
// response time of exactly k units yields k-2 synthetic samples (58 for a
// 60s response at a 1s cadence).
func (c *Cadence) thresholdAndUnit(mode COMode) (threshold, unit int64) {
	switch mode {
	case COMinimum:
		return c.Min(), c.Min()
	case COMaximum:
		return c.Max(), c.Max()
	case COAverage:
		avg := c.Average()
		return 2 * avg, avg
	default:
		return 0, 0
	}
}

// User is one Virtual User: a sequential loop over a Scenario's expanded
// Transaction sequence, issuing HTTP requests and reporting samples to the
// shared Metrics Aggregator (spec §4.2).
//
// Grounded on user_simulator.go's UserSimulator: the same per-session
// sequential loop, generalized from a fixed weighted-action rotation to
// scheduler-expanded Transactions, and with CO-aware sample emission that
// the teacher has no analogue for.
type User struct {
	ID            uint64
	ScenarioIndex int
	Scenario      *Scenario
	BaseURL       string

	client         *http.Client
	sequence       []*Transaction
	rng            *rand.Rand
	throttle       *throttle.Throttle
	aggregator     *metrics.Aggregator
	prom           PrometheusObserver
	logger         *goselog.Logger
	requestTimeout time.Duration
	coMode         COMode
	attackStart    time.Time
	userAgent      string

	cadence    Cadence
	lastSample *metrics.RequestSample

	ctx    context.Context
	cancel context.CancelFunc

	SessionData any // free-form per-user state, set by OnStart, read by later Transactions
}

// PrometheusObserver is the subset of metrics.PrometheusMirror a User needs;
// declared here so this package does not import the prometheus client
// directly (kept in metrics, see SPEC_FULL.md DOMAIN STACK).
type PrometheusObserver interface {
	Observe(s metrics.RequestSample)
}

// UserConfig collects the dependencies a User needs at construction, handed
// down from the Orchestrator at hatch time.
type UserConfig struct {
	ID             uint64
	Scenario       *Scenario
	ScenarioIndex  int
	BaseURL        string
	Client         *http.Client
	Scheduler      Scheduler
	Throttle       *throttle.Throttle
	Aggregator     *metrics.Aggregator
	Prom           PrometheusObserver
	Logger         *goselog.Logger
	RequestTimeout time.Duration
	COMode         COMode
	AttackStart    time.Time
	UserAgent      string
	Seed           int64
}

// NewUser constructs a User and precomputes its execution sequence from the
// Scenario's registered Transactions via the configured Scheduler
// (spec §4.2: "at hatch time ... the user precomputes its full execution
// sequence once").
func NewUser(cfg UserConfig) *User {
	rng := rand.New(rand.NewSource(cfg.Seed))
	ctx, cancel := context.WithCancel(context.Background())
	host := cfg.BaseURL
	if cfg.Scenario.Host != "" {
		host = cfg.Scenario.Host
	}
	return &User{
		ID:             cfg.ID,
		ScenarioIndex:  cfg.ScenarioIndex,
		Scenario:       cfg.Scenario,
		BaseURL:        host,
		client:         cfg.Client,
		sequence:       expandSchedule(cfg.Scenario.Transactions, cfg.Scheduler, rng),
		rng:            rng,
		throttle:       cfg.Throttle,
		aggregator:     cfg.Aggregator,
		prom:           cfg.Prom,
		logger:         cfg.Logger,
		requestTimeout: cfg.RequestTimeout,
		coMode:         cfg.COMode,
		attackStart:    cfg.AttackStart,
		userAgent:      cfg.UserAgent,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Shutdown signals this User to stop at its next safe point: between
// Transactions, mid-wait, or mid-throttle-acquisition, but never mid-request
// (spec §4.2 "Shutdown interrupts the user...").
func (u *User) Shutdown() { u.cancel() }

func (u *User) shuttingDown() bool {
	select {
	case <-u.ctx.Done():
		return true
	default:
		return false
	}
}

// Run executes this User's lifecycle until Shutdown is called: OnStart once,
// then repeated iterations of the precomputed Transaction sequence separated
// by the Scenario's wait time, and finally OnStop once before returning
// (spec §4.2).
func (u *User) Run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newFatalFromRecover(fmt.Sprintf("user-%d", u.ID), r)
		}
	}()

	if u.Scenario.OnStart != nil {
		u.runTransaction(u.Scenario.OnStart, 0)
	}

	for {
		iterationStart := time.Now()

		for i, t := range u.sequence {
			if u.shuttingDown() {
				break
			}
			u.runTransaction(t, i+1)
		}

		u.cadence.Record(time.Since(iterationStart).Microseconds())
		u.aggregator.SubmitScenario(metrics.ScenarioSample{
			ScenarioIndex: u.ScenarioIndex,
			UserID:        u.ID,
			DurationUs:    time.Since(iterationStart).Microseconds(),
		})

		if u.shuttingDown() {
			if u.Scenario.OnStop != nil {
				u.runTransaction(u.Scenario.OnStop, 0)
			}
			return nil
		}

		u.sleepWaitTime()
		if u.shuttingDown() {
			if u.Scenario.OnStop != nil {
				u.runTransaction(u.Scenario.OnStop, 0)
			}
			return nil
		}
	}
}

func (u *User) runTransaction(t *Transaction, transactionIndex int) {
	start := time.Now()
	outcome := t.Function(u)
	duration := time.Since(start)

	u.aggregator.SubmitTransaction(metrics.TransactionSample{
		ScenarioIndex:    u.ScenarioIndex,
		TransactionIndex: transactionIndex,
		Name:             t.Name,
		DurationUs:       duration.Microseconds(),
		Success:          outcome.Success(),
	})
	if u.logger != nil {
		u.logger.LogTransaction(goselog.TransactionRecord{
			Timestamp:  time.Now(),
			Name:       t.Name,
			DurationUs: duration.Microseconds(),
			Success:    outcome.Success(),
			UserID:     u.ID,
		})
	}
}

// sleepWaitTime sleeps a random duration in [WaitMin, WaitMax] milliseconds,
// in ~100ms slices so Shutdown is observed promptly (spec §4.2; grounded on
// the teacher's manageUserSessions ticker-poll pattern, shortened to a fixed
// slice instead of a configurable tick).
func (u *User) sleepWaitTime() {
	if u.Scenario.WaitMax <= 0 {
		return
	}
	span := u.Scenario.WaitMax - u.Scenario.WaitMin
	wait := u.Scenario.WaitMin
	if span > 0 {
		wait += u.rng.Intn(span + 1)
	}
	total := time.Duration(wait) * time.Millisecond
	const slice = 100 * time.Millisecond

	deadline := time.Now().Add(total)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		if remaining > slice {
			remaining = slice
		}
		select {
		case <-u.ctx.Done():
			return
		case <-time.After(remaining):
		}
	}
}

// RequestOption customizes a single HTTP call made via Get/Post/Head/Delete.
type RequestOption func(*requestSettings)

type requestSettings struct {
	name    string
	headers map[string]string
}

// WithName overrides the metrics name recorded for this request; defaults
// to the request path (spec §3: "name ... defaults to the literal path").
func WithName(name string) RequestOption {
	return func(s *requestSettings) { s.name = name }
}

// WithHeader adds a header to this request only.
func WithHeader(key, value string) RequestOption {
	return func(s *requestSettings) {
		if s.headers == nil {
			s.headers = make(map[string]string)
		}
		s.headers[key] = value
	}
}

// Get issues an HTTP GET to path, resolved against the user's base URL.
func (u *User) Get(path string, opts ...RequestOption) (*http.Response, []byte, error) {
	return u.doRequest(http.MethodGet, path, nil, opts)
}

// Post issues an HTTP POST with the given body.
func (u *User) Post(path string, body []byte, opts ...RequestOption) (*http.Response, []byte, error) {
	return u.doRequest(http.MethodPost, path, body, opts)
}

// Head issues an HTTP HEAD request.
func (u *User) Head(path string, opts ...RequestOption) (*http.Response, []byte, error) {
	return u.doRequest(http.MethodHead, path, nil, opts)
}

// Delete issues an HTTP DELETE request.
func (u *User) Delete(path string, opts ...RequestOption) (*http.Response, []byte, error) {
	return u.doRequest(http.MethodDelete, path, nil, opts)
}

// Request issues an HTTP call with an arbitrary method, the general form
// behind Get/Post/Head/Delete (spec §3: "any HTTP method").
func (u *User) Request(method, path string, body []byte, opts ...RequestOption) (*http.Response, []byte, error) {
	return u.doRequest(method, path, body, opts)
}

func (u *User) resolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base := strings.TrimSuffix(u.BaseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func (u *User) doRequest(method, path string, body []byte, opts []RequestOption) (*http.Response, []byte, error) {
	settings := requestSettings{name: path}
	for _, opt := range opts {
		opt(&settings)
	}

	if u.throttle != nil {
		if err := u.throttle.Acquire(u.ctx); err != nil {
			return nil, nil, err
		}
	}

	fullURL := u.resolveURL(path)

	// A fresh, independent timeout per spec §4.2: "the in-flight request is
	// awaited to completion with its own timeout" even if the user has
	// since been asked to shut down.
	reqCtx, cancel := context.WithTimeout(context.Background(), u.requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, method, fullURL, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("goose: building request: %w", err)
	}
	if u.userAgent != "" {
		httpReq.Header.Set("User-Agent", u.userAgent)
	}
	for k, v := range settings.headers {
		httpReq.Header.Set(k, v)
	}

	sample := metrics.RequestSample{
		Method:        method,
		Name:          settings.name,
		URL:           fullURL,
		StartedAtMs:   time.Since(u.attackStart).Milliseconds(),
		UserID:        u.ID,
		ScenarioIndex: u.ScenarioIndex,
	}

	start := time.Now()
	resp, err := u.client.Do(httpReq)
	sample.ResponseTimeUs = time.Since(start).Microseconds()

	if err != nil {
		sample.Success = false
		sample.ErrorText = err.Error()
		u.emitRequest(sample)
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	sample.StatusCode = resp.StatusCode
	sample.Success = resp.StatusCode < 400
	if resp.Request != nil && resp.Request.URL != nil {
		sample.FinalURL = resp.Request.URL.String()
		sample.Redirected = sample.FinalURL != fullURL
	}
	if readErr != nil {
		sample.Success = false
		sample.ErrorText = readErr.Error()
	}
	if !sample.Success && sample.ErrorText == "" {
		sample.ErrorText = fmt.Sprintf("status %d", sample.StatusCode)
	}

	u.emitRequest(sample)
	return resp, data, nil
}

// emitRequest submits a completed sample to the Aggregator, mirrors it to
// Prometheus, logs it, remembers it for a later SetFailure call, and checks
// it against the Cadence tracker for Coordinated Omission backfill
// (spec §4.2, §4.3, §4.5).
func (u *User) emitRequest(sample metrics.RequestSample) {
	u.aggregator.SubmitRequest(sample)
	if u.prom != nil {
		u.prom.Observe(sample)
	}
	if u.logger != nil {
		u.logger.LogRequest(goselog.RequestRecord{
			Timestamp:      time.Now(),
			Method:         sample.Method,
			Name:           sample.Name,
			URL:            sample.URL,
			StatusCode:     sample.StatusCode,
			Success:        sample.Success,
			ResponseTimeUs: sample.ResponseTimeUs,
			IsCOSynthetic:  sample.IsCOSynthetic,
			UserID:         sample.UserID,
		})
		if !sample.Success {
			u.logger.LogError(goselog.ErrorRecord{
				Timestamp:  time.Now(),
				Method:     sample.Method,
				Name:       sample.Name,
				URL:        sample.URL,
				StatusCode: sample.StatusCode,
				ErrorText:  sample.ErrorText,
				UserID:     sample.UserID,
			})
		}
	}

	stored := sample
	u.lastSample = &stored

	u.checkCoordinatedOmission(sample)
}

// checkCoordinatedOmission compares a real sample's response time against
// this user's Cadence tracker and, if it exceeds the configured mode's
// threshold, emits synthetic backfill samples (spec §4.2, §8).
func (u *User) checkCoordinatedOmission(real metrics.RequestSample) {
	if u.coMode == CODisabled || real.IsCOSynthetic || !u.cadence.Ready() {
		return
	}
	threshold, unit := u.cadence.thresholdAndUnit(u.coMode)
	if unit <= 0 || real.ResponseTimeUs <= threshold {
		return
	}

	n := real.ResponseTimeUs/unit - 1
	for k := int64(1); k <= n; k++ {
		rt := real.ResponseTimeUs - k*unit
		if rt <= unit {
			break
		}
		synthetic := real
		synthetic.IsCOSynthetic = true
		synthetic.ResponseTimeUs = rt
		synthetic.COElapsedUs = real.StartedAtMs * 1000
		synthetic.UserCadenceUs = unit
		u.aggregator.SubmitRequest(synthetic)
		if u.prom != nil {
			u.prom.Observe(synthetic)
		}
	}
}

// SetFailure converts the most recently completed request from success to
// failure, for validation logic a status code alone cannot express (spec
// §4.2 ValidationFailure, §8 invariant: "success count -1, failure count
// +1"). A no-op if no request has completed yet or the last one already
// failed.
func (u *User) SetFailure(reason string) {
	if u.lastSample == nil || !u.lastSample.Success {
		return
	}
	update := *u.lastSample
	update.Success = false
	update.ErrorText = reason
	update.Update = true
	u.aggregator.SubmitRequest(update)
	if u.logger != nil {
		u.logger.LogError(goselog.ErrorRecord{
			Timestamp:  time.Now(),
			Method:     update.Method,
			Name:       update.Name,
			URL:        update.URL,
			StatusCode: update.StatusCode,
			ErrorText:  reason,
			UserID:     update.UserID,
		})
	}
	u.lastSample.Success = false
}
