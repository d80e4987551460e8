package goose

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tag1consulting/goose-go/goselog"
	"github.com/tag1consulting/goose-go/httpclient"
	"github.com/tag1consulting/goose-go/metrics"
	"github.com/tag1consulting/goose-go/report"
	"github.com/tag1consulting/goose-go/throttle"
)

// ControllerCommandKind enumerates the commands a Controller can deliver to
// the Orchestrator's command channel (spec §4.7's command table): the
// lifecycle and setting changes plus the config and metrics reads.
type ControllerCommandKind int

const (
	CmdStart ControllerCommandKind = iota
	CmdStop
	CmdShutdown
	CmdSetHost
	CmdSetUsers
	CmdSetHatchRate
	CmdSetStartupTime
	CmdSetRunTime
	CmdSetTestPlan
	CmdGetConfig
	CmdGetMetrics
)

// ControllerCommand is sent by controller.Controller into GooseAttack's
// command channel (spec §4.1: "Controller commands are delivered to the
// Orchestrator through a command channel").
type ControllerCommand struct {
	Kind     ControllerCommandKind
	String   string
	Int      int
	Float    float64
	Duration time.Duration
	Reply    chan ControllerReply
}

// ControllerReply answers a ControllerCommand, always sent on the command's
// Reply channel exactly once.
type ControllerReply struct {
	Err      error
	Config   Configuration
	Snapshot metrics.Snapshot
	Phase    AttackPhase
}

// GooseAttack is the Attack Orchestrator of spec §4.1: owns the
// Configuration, registered Scenarios, and the current AttackPhase, and
// drives the Test-Plan state machine across Increase/Maintain/Decrease/
// Shutdown.
//
// Grounded on the teacher's FlowSimulator: `phase` generalizes
// `isRunning`/`statusMutex` into a full atomically-read AttackPhase;
// register_scenario/set_default/set_scheduler are builder methods in the
// same style as NewStandardDemoController's fluent construction.
type GooseAttack struct {
	cfg       *Configuration
	scenarios []*Scenario

	scheduler Scheduler
	phase     atomic.Int32

	aggregator    *metrics.Aggregator
	prom          *metrics.PrometheusMirror
	logger        *goselog.Logger
	throttle      *throttle.Throttle
	clientFactory *httpclient.Factory

	commands chan ControllerCommand

	mu         sync.Mutex
	running    map[uint64]*User
	nextUserID uint64

	userErrs chan error

	attackStart   time.Time
	firstIncrease bool
	resetDone     bool

	phaseHistory []report.PhaseRecord
}

// NewGooseAttack constructs an orchestrator for the given Configuration.
// Call RegisterScenario for each Scenario, then Execute.
func NewGooseAttack(cfg *Configuration) *GooseAttack {
	return &GooseAttack{
		cfg:      cfg,
		running:  make(map[uint64]*User),
		commands: make(chan ControllerCommand, 64),
		userErrs: make(chan error, 1024),
	}
}

// RegisterScenario adds a Scenario to the attack (spec §4.1 register_scenario).
func (g *GooseAttack) RegisterScenario(s *Scenario) *GooseAttack {
	s.index = len(g.scenarios)
	g.scenarios = append(g.scenarios, s)
	return g
}

// SetScheduler chooses the Scheduler applied to every user's Transaction
// expansion (spec §4.1 set_scheduler).
func (g *GooseAttack) SetScheduler(s Scheduler) *GooseAttack {
	g.scheduler = s
	return g
}

// SetDefault overrides a single named Configuration field programmatically
// (spec §4.1 set_default(key, value)), the generalized escape hatch for
// values not otherwise covered by Configuration's own setters.
func (g *GooseAttack) SetDefault(key string, value any) *GooseAttack {
	switch key {
	case "host":
		if v, ok := value.(string); ok {
			g.cfg.Host = v
		}
	case "users":
		if v, ok := value.(int); ok {
			g.cfg.Users = v
		}
	case "hatch_rate":
		if v, ok := value.(float64); ok {
			g.cfg.HatchRate = v
		}
	case "run_time":
		if v, ok := value.(time.Duration); ok {
			g.cfg.RunTime = v
		}
	}
	return g
}

// Commands returns the channel a Controller should send ControllerCommands
// into.
func (g *GooseAttack) Commands() chan<- ControllerCommand { return g.commands }

// Phase returns the orchestrator's current AttackPhase.
func (g *GooseAttack) Phase() AttackPhase { return AttackPhase(g.phase.Load()) }

func (g *GooseAttack) setPhase(p AttackPhase) {
	g.phase.Store(int32(p))
	if g.prom != nil {
		g.prom.SetPhase(p.String(), []string{"Idle", "Increase", "Maintain", "Decrease", "Shutdown"})
	}
}

// Execute runs the full startup sequence and state machine of spec §4.1 and
// returns the final report once the attack completes (spec §4.1 step 6).
func (g *GooseAttack) Execute(ctx context.Context) (*report.Report, error) {
	if err := g.cfg.Validate(); err != nil {
		return nil, err
	}
	if len(g.scenarios) == 0 {
		return nil, newConfigError("scenarios", "at least one scenario must be registered")
	}
	assignMachineNames(g.scenarios)

	active := g.filteredScenarios()
	if len(active) == 0 {
		return nil, newConfigError("scenarios", "--scenarios filter matched no registered scenario")
	}

	g.setPhase(PhaseIdle)
	g.aggregator = metrics.NewAggregator(10_000)
	go func() {
		if err := g.aggregator.Run(); err != nil {
			g.userErrs <- &FatalError{Source: "metrics", Cause: err}
		}
	}()
	defer g.aggregator.Shutdown()

	if !g.cfg.NoMetrics {
		g.prom = metrics.NewPrometheusMirror()
	}

	var err error
	g.logger, err = goselog.New(g.cfg.loggerConfig(), 10_000)
	if err != nil {
		return nil, fmt.Errorf("goose: starting logger: %w", err)
	}
	go func() {
		if err := g.logger.Run(); err != nil {
			g.userErrs <- &FatalError{Source: "logger", Cause: err}
		}
	}()
	defer g.logger.Shutdown()

	g.throttle = throttle.New(g.cfg.ThrottleRequests)
	defer g.throttle.Close()

	g.clientFactory = httpclient.NewFactory(g.cfg.httpClientStrategy(), g.cfg.httpClientOptions())

	if g.cfg.NoAutostart {
		if err := g.awaitStartCommand(ctx); err != nil {
			return nil, err
		}
	}

	g.attackStart = time.Now()
	g.aggregator.Reset() // align attack_start_instant even before first Increase

	plan := g.testPlan()
	scenarioCycle := expandScenarioCycle(active)

	if err := g.runPlan(ctx, plan, scenarioCycle); err != nil {
		return nil, err
	}

	snap := g.aggregator.Snapshot()
	return report.Generate(report.Input{
		AttackStart: g.attackStart,
		Duration:    snap.Duration,
		Phases:      g.phaseHistory,
		Snapshot:    snap,
	}, nil, report.Options{
		GranularReport: !g.cfg.NoGranularReport,
		IncludeStatusCodes: !g.cfg.NoStatusCodes,
		IncludeErrors:      !g.cfg.NoErrorSummary,
	})
}

func (g *GooseAttack) filteredScenarios() []*Scenario {
	if len(g.cfg.Scenarios) == 0 {
		return g.scenarios
	}
	var out []*Scenario
	for _, s := range g.scenarios {
		if matchesAnyPattern(s.MachineName(), g.cfg.Scenarios) {
			out = append(out, s)
		}
	}
	return out
}

func (g *GooseAttack) testPlan() *TestPlan {
	if g.cfg.TestPlan != "" {
		tp, err := ParseTestPlan(g.cfg.TestPlan)
		if err == nil {
			return tp
		}
	}
	return simpleTestPlan(g.cfg.Users, g.cfg.HatchRate, g.cfg.RunTime)
}

// expandScenarioCycle builds the weighted, repeating scenario-assignment
// sequence new users are drawn from round-robin, reusing the same
// weight-expansion idiom expandSchedule applies to Transactions (spec §3
// "integer weight" on Scenario, by analogy with Transaction weighting).
func expandScenarioCycle(scenarios []*Scenario) []*Scenario {
	max := 1
	for _, s := range scenarios {
		if s.Weight > max {
			max = s.Weight
		}
	}
	var out []*Scenario
	for round := 0; round < max; round++ {
		for _, s := range scenarios {
			if s.Weight > round {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		out = scenarios
	}
	return out
}

// awaitStartCommand blocks in PhaseIdle until a Controller "start" command
// arrives (spec §4.1 step 2).
func (g *GooseAttack) awaitStartCommand(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-g.commands:
			if cmd.Kind == CmdStart {
				g.replyOK(cmd)
				return nil
			}
			g.handleNonLifecycleCommand(ctx, cmd, nil)
		}
	}
}

// runPlan drives the phased state machine of spec §4.1 steps 3-6.
func (g *GooseAttack) runPlan(ctx context.Context, plan *TestPlan, scenarioCycle []*Scenario) error {
	phases := plan.derivePhases()

	for _, step := range phases {
		g.setPhase(step.Phase)
		g.phaseHistory = append(g.phaseHistory, report.PhaseRecord{
			Phase:       step.Phase.String(),
			FromUsers:   step.FromUsers,
			TargetUsers: step.TargetUsers,
			Duration:    step.Duration,
		})

		if err := g.runStep(ctx, step, scenarioCycle); err != nil {
			return err
		}
		if g.Phase() == PhaseIdle {
			// A Controller stop ended this step; the rest of the plan is skipped.
			break
		}

		if step.Phase == PhaseIncrease && !g.firstIncrease {
			g.firstIncrease = true
			if !g.cfg.NoResetMetrics && g.cfg.TestPlan == "" && plan.singleStep() {
				g.aggregator.Reset()
				g.attackStart = time.Now()
				g.resetDone = true
			}
		}
	}

	g.shutdownAllUsers()
	return nil
}

// singleStep reports whether this plan has at most two steps (a ramp and an
// optional hold). runPlan applies spec §4.1's metrics reset only when this
// holds and no --test-plan was given, i.e. for the implicit
// users/hatch-rate/run-time plan.
func (tp *TestPlan) singleStep() bool { return len(tp.Steps) <= 2 }

func (g *GooseAttack) runStep(ctx context.Context, step PhaseStep, scenarioCycle []*Scenario) error {
	delta := step.TargetUsers - step.FromUsers
	spacing := hatchSpacing(step)

	switch {
	case delta > 0:
		if err := g.hatchUsers(ctx, delta, spacing, scenarioCycle); err != nil {
			return err
		}
	case delta < 0:
		g.retireNewest(-delta, spacing)
	}

	if step.Phase == PhaseShutdown {
		return nil
	}
	return g.awaitStepEnd(ctx, step.Duration, scenarioCycle)
}

// rampToUserCount applies the live-ramp half of spec §4.7's `users`
// command: "update target users; if running, immediately ramp." A target
// change while Idle only updates cfg.Users for the next run; while
// Increase/Maintain/Decrease it hatches or retires the delta against the
// currently running set right away, with no hatch-rate spacing since the
// command asks for an immediate change, not a new ramp.
func (g *GooseAttack) rampToUserCount(ctx context.Context, target int, scenarioCycle []*Scenario) error {
	if g.Phase() == PhaseIdle || g.Phase() == PhaseShutdown {
		return nil
	}

	g.mu.Lock()
	current := len(g.running)
	g.mu.Unlock()

	delta := target - current
	switch {
	case delta > 0:
		return g.hatchUsers(ctx, delta, 0, scenarioCycle)
	case delta < 0:
		g.retireNewest(-delta, 0)
	}
	return nil
}

func (g *GooseAttack) hatchUsers(ctx context.Context, n int, spacing time.Duration, scenarioCycle []*Scenario) error {
	var ticker *time.Ticker
	if spacing > 0 {
		ticker = time.NewTicker(spacing)
		defer ticker.Stop()
	}
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-g.userErrs:
			if err != nil {
				g.shutdownAllUsers()
				return err
			}
		default:
		}

		g.spawnUser(scenarioCycle)

		if ticker != nil && i < n-1 {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			case err := <-g.userErrs:
				if err != nil {
					g.shutdownAllUsers()
					return err
				}
			}
		}
	}
	return nil
}

func (g *GooseAttack) spawnUser(scenarioCycle []*Scenario) {
	g.mu.Lock()
	id := g.nextUserID
	g.nextUserID++
	idx := int(id) % len(scenarioCycle)
	scenario := scenarioCycle[idx]
	scenarioIndex := scenario.index
	g.mu.Unlock()

	client, err := g.clientFactory.NewClient()
	if err != nil {
		g.userErrs <- fmt.Errorf("goose: building client for user %d: %w", id, err)
		return
	}

	u := NewUser(UserConfig{
		ID:             id,
		Scenario:       scenario,
		ScenarioIndex:  scenarioIndex,
		BaseURL:        g.cfg.Host,
		Client:         client,
		Scheduler:      g.scheduler,
		Throttle:       g.throttle,
		Aggregator:     g.aggregator,
		Prom:           g.prom,
		Logger:         g.logger,
		RequestTimeout: g.cfg.Timeout,
		COMode:         coModeFromString(g.cfg.COMitigation),
		AttackStart:    g.attackStart,
		UserAgent:      "goose-go/1.0",
		Seed:           int64(id) + 1,
	})

	g.mu.Lock()
	g.running[id] = u
	if g.prom != nil {
		g.prom.SetActiveUsers(len(g.running))
	}
	g.mu.Unlock()

	go func() {
		err := u.Run()
		g.mu.Lock()
		delete(g.running, id)
		if g.prom != nil {
			g.prom.SetActiveUsers(len(g.running))
		}
		g.mu.Unlock()
		g.userErrs <- err
	}()
}

// retireNewest shuts down the n most recently spawned users, the
// highest-numbered ids still running, spaced per spacing so a Decrease
// phase ramps down rather than dropping users all at once.
func (g *GooseAttack) retireNewest(n int, spacing time.Duration) {
	g.mu.Lock()
	ids := make([]uint64, 0, len(g.running))
	for id := range g.running {
		ids = append(ids, id)
	}
	g.mu.Unlock()

	// Highest ids first: insertion order of spawning means higher id is newer.
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] > ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}

	for i := 0; i < n && i < len(ids); i++ {
		g.mu.Lock()
		u, ok := g.running[ids[i]]
		g.mu.Unlock()
		if ok {
			u.Shutdown()
		}
		if spacing > 0 && i < n-1 {
			time.Sleep(spacing)
		}
	}
}

func (g *GooseAttack) shutdownAllUsers() {
	g.mu.Lock()
	users := make([]*User, 0, len(g.running))
	for _, u := range g.running {
		users = append(users, u)
	}
	g.mu.Unlock()

	for _, u := range users {
		u.Shutdown()
	}
	for range users {
		<-g.userErrs
	}
}

// awaitStepEnd waits for the step's duration to elapse or a Controller
// command to arrive, whichever is first (spec §4.1 step 5).
func (g *GooseAttack) awaitStepEnd(ctx context.Context, d time.Duration, scenarioCycle []*Scenario) error {
	var timer *time.Timer
	var timerC <-chan time.Time
	if d > 0 {
		timer = time.NewTimer(d)
		defer timer.Stop()
		timerC = timer.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timerC:
			return nil
		case err := <-g.userErrs:
			if err != nil {
				return err
			}
		case cmd := <-g.commands:
			if stop, err := g.handleLifecycleCommand(ctx, cmd, scenarioCycle); stop {
				return err
			}
		}
		if d == 0 {
			return nil
		}
	}
}

// handleLifecycleCommand processes start/stop/shutdown; returns stop=true
// when the step (and, for shutdown, the whole attack) should end.
func (g *GooseAttack) handleLifecycleCommand(ctx context.Context, cmd ControllerCommand, scenarioCycle []*Scenario) (stop bool, err error) {
	switch cmd.Kind {
	case CmdStop:
		g.replyOK(cmd)
		g.setPhase(PhaseIdle)
		return true, nil
	case CmdShutdown:
		g.replyOK(cmd)
		return true, ErrNotRunning
	default:
		g.handleNonLifecycleCommand(ctx, cmd, scenarioCycle)
		return false, nil
	}
}

// handleNonLifecycleCommand answers config/metrics queries and live
// reconfiguration commands that don't end the current step (spec §4.7
// command table: host, users, hatchrate, startuptime, runtime, test-plan,
// config/config-json, metrics/metrics-json).
func (g *GooseAttack) handleNonLifecycleCommand(ctx context.Context, cmd ControllerCommand, scenarioCycle []*Scenario) {
	switch cmd.Kind {
	case CmdSetHost:
		g.cfg.Host = cmd.String
		g.replyOK(cmd)
	case CmdSetUsers:
		g.cfg.Users = cmd.Int
		if err := g.rampToUserCount(ctx, cmd.Int, scenarioCycle); err != nil {
			g.reply(cmd, ControllerReply{Err: &ControllerError{Command: "users", Message: err.Error()}})
			return
		}
		g.replyOK(cmd)
	case CmdSetHatchRate:
		g.cfg.HatchRate = cmd.Float
		g.replyOK(cmd)
	case CmdSetStartupTime:
		g.cfg.StartupTime = cmd.Duration
		g.replyOK(cmd)
	case CmdSetRunTime:
		g.cfg.RunTime = cmd.Duration
		g.replyOK(cmd)
	case CmdSetTestPlan:
		if _, err := ParseTestPlan(cmd.String); err != nil {
			g.reply(cmd, ControllerReply{Err: &ControllerError{Command: "test-plan", Message: err.Error()}})
			return
		}
		g.cfg.TestPlan = cmd.String
		g.replyOK(cmd)
	case CmdGetConfig:
		g.reply(cmd, ControllerReply{Config: *g.cfg})
	case CmdGetMetrics:
		g.reply(cmd, ControllerReply{Snapshot: g.aggregator.Snapshot(), Phase: g.Phase()})
	default:
		g.reply(cmd, ControllerReply{Err: &ControllerError{Command: "unknown", Message: "unrecognized command"}})
	}
}

func (g *GooseAttack) replyOK(cmd ControllerCommand) { g.reply(cmd, ControllerReply{Phase: g.Phase()}) }

func (g *GooseAttack) reply(cmd ControllerCommand, r ControllerReply) {
	if cmd.Reply == nil {
		return
	}
	select {
	case cmd.Reply <- r:
	default:
	}
}
