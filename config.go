package goose

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tag1consulting/goose-go/goselog"
	"github.com/tag1consulting/goose-go/httpclient"
)

var configValidator = validator.New()

// LogLevel mirrors the -g/-q/-v shifts of spec §6.
type LogLevel int

const (
	LogLevelNormal LogLevel = iota
	LogLevelQuiet
	LogLevelVerbose
	LogLevelDebug
)

// Configuration is the single validated source of truth for one attack,
// merging CLI flags, programmatic overrides, and defaults (spec §4.1,
// §6). Grounded on `internal/config/config.go`'s flat struct-plus-Validate
// shape, generalized from env-var sourcing to CLI-flag sourcing since
// spec §6 names flags as the primary surface, not environment variables.
type Configuration struct {
	Host        string `validate:"omitempty,url"`
	Users       int    `validate:"gte=0"`
	HatchRate   float64 `validate:"gte=0"`
	StartupTime time.Duration
	RunTime     time.Duration
	TestPlan    string
	Iterations  int `validate:"gte=0"`

	NoResetMetrics         bool
	NoMetrics              bool
	NoTransactionMetrics   bool
	NoScenarioMetrics      bool
	NoStatusCodes          bool
	NoErrorSummary         bool
	ReportFile             string
	NoGranularReport       bool

	RequestLog         string
	RequestFormat      string
	RequestBody        bool
	TransactionLog     string
	TransactionFormat  string
	ScenarioLog        string
	ScenarioFormat     string
	ErrorLog           string
	ErrorFormat        string
	DebugLog           string
	DebugFormat        string
	NoDebugBody        bool

	ThrottleRequests int
	COMitigation     string // disabled|average|minimum|maximum

	Timeout            time.Duration
	StickyFollow       bool
	AcceptInvalidCerts bool

	NoTelnet      bool
	TelnetHost    string
	TelnetPort    int
	NoWebsocket   bool
	WebsocketHost string
	WebsocketPort int

	NoAutostart    bool
	Scenarios      []string
	ScenariosList  bool

	LogLevel LogLevel
}

// NewConfiguration returns the programmatic defaults goose-rs itself ships
// (spec §4.1 startup validation assumes these when a flag is unset).
func NewConfiguration() *Configuration {
	return &Configuration{
		Users:             1,
		HatchRate:         1.0,
		RequestFormat:     "json",
		TransactionFormat: "json",
		ScenarioFormat:    "json",
		ErrorFormat:       "json",
		DebugFormat:       "json",
		COMitigation:      "disabled",
		Timeout:           60 * time.Second,
		TelnetHost:        "0.0.0.0",
		TelnetPort:        5116,
		WebsocketHost:     "0.0.0.0",
		WebsocketPort:     5117,
	}
}

// Validate runs every startup check of spec §4.1 step 1, collecting every
// violation instead of stopping at the first (mirrors
// `internal/config.Validate`'s ValidationErrors accumulation).
func (c *Configuration) Validate() error {
	errs := &ConfigurationErrors{}

	if verr, ok := configValidator.Struct(c).(validator.ValidationErrors); ok {
		for _, fe := range verr {
			errs.add(fe.Field(), "failed %s validation", fe.Tag())
		}
	}

	if c.Host == "" && !c.NoAutostart {
		errs.add("host", "required unless --no-autostart is set")
	}

	// Users and HatchRate count as explicit only when set to something other
	// than their NewConfiguration defaults.
	defaults := NewConfiguration()
	explicitRamp := (c.Users != 0 && c.Users != defaults.Users) ||
		(c.HatchRate != 0 && c.HatchRate != defaults.HatchRate) ||
		c.RunTime != 0
	if c.TestPlan != "" && explicitRamp {
		errs.add("test_plan", "mutually exclusive with --users/--hatch-rate/--run-time")
	}
	if c.Iterations > 0 && c.RunTime > 0 {
		errs.add("iterations", "mutually exclusive with --run-time (resolves spec.md Open Question: reject rather than silently prefer one)")
	}

	if c.Users < 0 {
		errs.add("users", "must be >= 0")
	}
	if c.HatchRate < 0 {
		errs.add("hatch_rate", "must be >= 0")
	}
	if c.ThrottleRequests < 0 {
		errs.add("throttle_requests", "must be >= 0")
	}
	switch c.COMitigation {
	case "", "disabled", "average", "minimum", "maximum":
	default:
		errs.add("co_mitigation", "must be one of disabled|average|minimum|maximum")
	}
	if c.Timeout <= 0 {
		errs.add("timeout", "must be > 0")
	}
	if c.TestPlan != "" {
		if _, err := ParseTestPlan(c.TestPlan); err != nil {
			errs.add("test_plan", "%v", err)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// coModeFromString translates the --co-mitigation flag value into a COMode,
// defaulting to CODisabled for an empty or unrecognized value (Validate
// rejects unrecognized values before this is ever reached in practice).
func coModeFromString(s string) COMode {
	switch s {
	case "average":
		return COAverage
	case "minimum":
		return COMinimum
	case "maximum":
		return COMaximum
	default:
		return CODisabled
	}
}

// httpClientStrategy resolves spec §9's client sum type from
// --sticky-follow: cookie-following behavior requires an individually-owned
// jar per user, while a non-sticky run shares one process-wide client.
func (c *Configuration) httpClientStrategy() httpclient.Strategy {
	if c.StickyFollow {
		return httpclient.IndividualWithCookies
	}
	return httpclient.SharedWithoutCookies
}

func (c *Configuration) httpClientOptions() httpclient.Options {
	return httpclient.Options{
		Timeout:            c.Timeout,
		AcceptInvalidCerts: c.AcceptInvalidCerts,
	}
}

func formatFromString(s string) goselog.Format {
	switch s {
	case "csv":
		return goselog.FormatCSV
	case "raw":
		return goselog.FormatRaw
	case "pretty":
		return goselog.FormatPretty
	default:
		return goselog.FormatJSON
	}
}

// loggerConfig builds the goselog.Config implied by the Request/Transaction/
// Scenario/Error/Debug log flags; an empty path leaves that log disabled.
func (c *Configuration) loggerConfig() goselog.Config {
	return goselog.Config{
		Request:     goselog.LogSpec{Path: c.RequestLog, Format: formatFromString(c.RequestFormat)},
		RequestBody: c.RequestBody,
		Transaction: goselog.LogSpec{Path: c.TransactionLog, Format: formatFromString(c.TransactionFormat)},
		Scenario:    goselog.LogSpec{Path: c.ScenarioLog, Format: formatFromString(c.ScenarioFormat)},
		Error:       goselog.LogSpec{Path: c.ErrorLog, Format: formatFromString(c.ErrorFormat)},
		Debug:       goselog.LogSpec{Path: c.DebugLog, Format: formatFromString(c.DebugFormat)},
		NoDebugBody: c.NoDebugBody,
	}
}
