// Package goselog implements the Logger of spec §4.5: a single task
// consuming a bounded channel of typed log entries, writing
// request/transaction/scenario/error/debug logs in CSV/JSON/raw/pretty
// formats.
//
// Grounded on the teacher's pattern of one goroutine per independent
// concern (FlowSimulator.runStatisticsLoop, runEventPublishingLoop): here
// generalized to one goroutine consuming one shared channel and fanning
// out to per-kind writers, since spec §4.5 specifies a single task, not
// one per log file.
package goselog

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// Format selects how a configured log renders each entry (spec §4.5).
type Format int

const (
	FormatJSON Format = iota
	FormatCSV
	FormatRaw
	FormatPretty
)

// Kind distinguishes the five independently-configurable logs of spec §4.5.
type Kind int

const (
	KindRequest Kind = iota
	KindTransaction
	KindScenario
	KindError
	KindDebug
)

// RequestRecord is one line of the request log (spec §4.5: "the full
// RequestSample including raw (method, url, headers; body only if
// request_body is enabled)").
type RequestRecord struct {
	Timestamp      time.Time
	Method         string
	Name           string
	URL            string
	StatusCode     int
	Success        bool
	ResponseTimeUs int64
	IsCOSynthetic  bool
	UserID         uint64
	RawHeaders     map[string][]string
	RawBody        string // User.emitRequest leaves RawHeaders and RawBody empty, whatever Config.RequestBody says
}

// TransactionRecord is one line of the transaction log.
type TransactionRecord struct {
	Timestamp  time.Time
	Name       string
	DurationUs int64
	Success    bool
	UserID     uint64
}

// ScenarioRecord is one line of the scenario log.
type ScenarioRecord struct {
	Timestamp     time.Time
	ScenarioIndex int
	DurationUs    int64
	UserID        uint64
}

// ErrorRecord is one line of the error log.
type ErrorRecord struct {
	Timestamp  time.Time
	Method     string
	Name       string
	URL        string
	StatusCode int
	ErrorText  string
	UserID     uint64
}

// DebugRecord is one line of the debug log, written by LogDebug; the
// Virtual User Runtime does not call LogDebug itself.
type DebugRecord struct {
	Timestamp time.Time
	Message   string
	RawBody   string // written as given; the Logger does not consult Config.NoDebugBody
}

type entry struct {
	kind        Kind
	request     *RequestRecord
	transaction *TransactionRecord
	scenario    *ScenarioRecord
	err         *ErrorRecord
	debug       *DebugRecord
}

// LogSpec configures one of the five logs: its destination path and
// rendering Format. An empty Path disables the log.
type LogSpec struct {
	Path   string
	Format Format
}

// Config is the set of configured logs, one LogSpec per Kind.
type Config struct {
	Request       LogSpec
	RequestBody   bool
	Transaction   LogSpec
	Scenario      LogSpec
	Error         LogSpec
	Debug         LogSpec
	NoDebugBody   bool
}

// Logger is the single task of spec §4.5.
type Logger struct {
	ch      chan entry
	writers map[Kind]*logWriter
	stopped chan struct{}
}

type logWriter struct {
	format    Format
	file      *os.File
	buf       *bufio.Writer
	csv       *csv.Writer
	wroteHead bool
	broken    bool
}

// New constructs a Logger, opening (and truncating) every configured log
// file up front, per spec §4.5: "On startup, existing files at each path
// are truncated."
func New(cfg Config, channelCapacity int) (*Logger, error) {
	if channelCapacity <= 0 {
		channelCapacity = 10_000
	}
	l := &Logger{
		ch:      make(chan entry, channelCapacity),
		writers: make(map[Kind]*logWriter),
		stopped: make(chan struct{}),
	}

	specs := map[Kind]LogSpec{
		KindRequest:     cfg.Request,
		KindTransaction: cfg.Transaction,
		KindScenario:    cfg.Scenario,
		KindError:       cfg.Error,
		KindDebug:       cfg.Debug,
	}
	for kind, spec := range specs {
		if spec.Path == "" {
			continue
		}
		f, err := os.Create(spec.Path) // os.Create truncates an existing file.
		if err != nil {
			return nil, fmt.Errorf("goselog: opening %s: %w", spec.Path, err)
		}
		w := &logWriter{format: spec.Format, file: f, buf: bufio.NewWriter(f)}
		if spec.Format == FormatCSV {
			w.csv = csv.NewWriter(w.buf)
		}
		l.writers[kind] = w
	}
	return l, nil
}

// Run consumes entries until the channel is closed by Shutdown.
func (l *Logger) Run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("goselog: panic: %v", r)
		}
		l.flushAndClose()
		close(l.stopped)
	}()
	for e := range l.ch {
		l.write(e)
	}
	return nil
}

// Shutdown closes the inbound channel and waits for Run to flush and close
// every writer (spec §4.5: "On shutdown, all writers are flushed and
// closed.").
func (l *Logger) Shutdown() {
	close(l.ch)
	<-l.stopped
}

func (l *Logger) flushAndClose() {
	for _, w := range l.writers {
		if w.csv != nil {
			w.csv.Flush()
		}
		_ = w.buf.Flush()
		_ = w.file.Close()
	}
}

// LogRequest enqueues a request-log entry, a no-op if that log is disabled.
func (l *Logger) LogRequest(r RequestRecord) { l.enqueue(entry{kind: KindRequest, request: &r}) }

// LogTransaction enqueues a transaction-log entry.
func (l *Logger) LogTransaction(r TransactionRecord) {
	l.enqueue(entry{kind: KindTransaction, transaction: &r})
}

// LogScenario enqueues a scenario-log entry.
func (l *Logger) LogScenario(r ScenarioRecord) { l.enqueue(entry{kind: KindScenario, scenario: &r}) }

// LogError enqueues an error-log entry.
func (l *Logger) LogError(r ErrorRecord) { l.enqueue(entry{kind: KindError, err: &r}) }

// LogDebug enqueues a debug-log entry.
func (l *Logger) LogDebug(r DebugRecord) { l.enqueue(entry{kind: KindDebug, debug: &r}) }

func (l *Logger) enqueue(e entry) {
	if _, enabled := l.writers[e.kind]; !enabled {
		return
	}
	l.ch <- e
}

func (l *Logger) write(e entry) {
	w, ok := l.writers[e.kind]
	if !ok || w.broken {
		return
	}
	var err error
	switch e.kind {
	case KindRequest:
		err = w.writeRequest(e.request)
	case KindTransaction:
		err = w.writeTransaction(e.transaction)
	case KindScenario:
		err = w.writeScenario(e.scenario)
	case KindError:
		err = w.writeError(e.err)
	case KindDebug:
		err = w.writeDebug(e.debug)
	}
	if err != nil {
		// spec §7 LogWriteError: non-fatal, logged to stderr, subsequent
		// writes to that file are suppressed.
		fmt.Fprintf(os.Stderr, "goselog: write error, suppressing further writes to this log: %v\n", err)
		w.broken = true
	}
}

func (w *logWriter) writeRequest(r *RequestRecord) error {
	switch w.format {
	case FormatJSON:
		return writeJSONLine(w.buf, r)
	case FormatCSV:
		return w.writeCSV([]string{"timestamp", "method", "name", "url", "status_code", "success", "response_time_us", "co_synthetic", "user_id"},
			[]string{ts(r.Timestamp), r.Method, r.Name, r.URL, itoa(r.StatusCode), boolStr(r.Success), i64(r.ResponseTimeUs), boolStr(r.IsCOSynthetic), u64(r.UserID)})
	case FormatRaw:
		_, err := fmt.Fprintf(w.buf, "%+v\n", r)
		return err
	default: // FormatPretty
		_, err := fmt.Fprintf(w.buf, "[%s] %s %s -> %d (%s) %dus user=%d%s\n",
			ts(r.Timestamp), r.Method, r.Name, r.StatusCode, successStr(r.Success), r.ResponseTimeUs, r.UserID, coTag(r.IsCOSynthetic))
		return err
	}
}

func (w *logWriter) writeTransaction(r *TransactionRecord) error {
	switch w.format {
	case FormatJSON:
		return writeJSONLine(w.buf, r)
	case FormatCSV:
		return w.writeCSV([]string{"timestamp", "name", "duration_us", "success", "user_id"},
			[]string{ts(r.Timestamp), r.Name, i64(r.DurationUs), boolStr(r.Success), u64(r.UserID)})
	case FormatRaw:
		_, err := fmt.Fprintf(w.buf, "%+v\n", r)
		return err
	default:
		_, err := fmt.Fprintf(w.buf, "[%s] transaction %s %dus (%s) user=%d\n", ts(r.Timestamp), r.Name, r.DurationUs, successStr(r.Success), r.UserID)
		return err
	}
}

func (w *logWriter) writeScenario(r *ScenarioRecord) error {
	switch w.format {
	case FormatJSON:
		return writeJSONLine(w.buf, r)
	case FormatCSV:
		return w.writeCSV([]string{"timestamp", "scenario_index", "duration_us", "user_id"},
			[]string{ts(r.Timestamp), itoa(r.ScenarioIndex), i64(r.DurationUs), u64(r.UserID)})
	case FormatRaw:
		_, err := fmt.Fprintf(w.buf, "%+v\n", r)
		return err
	default:
		_, err := fmt.Fprintf(w.buf, "[%s] scenario #%d %dus user=%d\n", ts(r.Timestamp), r.ScenarioIndex, r.DurationUs, r.UserID)
		return err
	}
}

func (w *logWriter) writeError(r *ErrorRecord) error {
	switch w.format {
	case FormatJSON:
		return writeJSONLine(w.buf, r)
	case FormatCSV:
		return w.writeCSV([]string{"timestamp", "method", "name", "url", "status_code", "error_text", "user_id"},
			[]string{ts(r.Timestamp), r.Method, r.Name, r.URL, itoa(r.StatusCode), r.ErrorText, u64(r.UserID)})
	case FormatRaw:
		_, err := fmt.Fprintf(w.buf, "%+v\n", r)
		return err
	default:
		_, err := fmt.Fprintf(w.buf, "[%s] ERROR %s %s -> %d: %s user=%d\n", ts(r.Timestamp), r.Method, r.Name, r.StatusCode, r.ErrorText, r.UserID)
		return err
	}
}

func (w *logWriter) writeDebug(r *DebugRecord) error {
	switch w.format {
	case FormatJSON:
		return writeJSONLine(w.buf, r)
	default:
		_, err := fmt.Fprintf(w.buf, "[%s] DEBUG %s\n%s\n", ts(r.Timestamp), r.Message, r.RawBody)
		return err
	}
}

func (w *logWriter) writeCSV(header, record []string) error {
	if !w.wroteHead {
		if err := w.csv.Write(header); err != nil {
			return err
		}
		w.wroteHead = true
	}
	if err := w.csv.Write(record); err != nil {
		return err
	}
	w.csv.Flush()
	return w.csv.Error()
}

func writeJSONLine(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	return enc.Encode(v)
}

func ts(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format(time.RFC3339Nano)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func successStr(b bool) string {
	if b {
		return "ok"
	}
	return "fail"
}

func coTag(synthetic bool) string {
	if synthetic {
		return " [synthetic]"
	}
	return ""
}

func itoa(n int) string     { return strconv.Itoa(n) }
func i64(n int64) string    { return strconv.FormatInt(n, 10) }
func u64(n uint64) string   { return strconv.FormatUint(n, 10) }
