package goose

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AttackPhase is the orchestrator's current state (spec §3).
type AttackPhase int

const (
	PhaseIdle AttackPhase = iota
	PhaseIncrease
	PhaseMaintain
	PhaseDecrease
	PhaseShutdown
)

func (p AttackPhase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseIncrease:
		return "Increase"
	case PhaseMaintain:
		return "Maintain"
	case PhaseDecrease:
		return "Decrease"
	case PhaseShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// TestPlanStep is one (target_users, duration) entry of a TestPlan.
type TestPlanStep struct {
	TargetUsers int
	Duration    time.Duration
}

// TestPlan is the ordered sequence of steps defining the load shape
// (spec §3). The plan implicitly ends with a (0, 0) step appended by
// derivePhases, which the caller never needs to add explicitly.
type TestPlan struct {
	Steps []TestPlanStep
}

// PhaseStep pairs a derived AttackPhase with the step that produced it and
// the number of users active at the *start* of the step, so the
// orchestrator can compute per-user hatch spacing (spec §4.1).
type PhaseStep struct {
	Phase       AttackPhase
	FromUsers   int
	TargetUsers int
	Duration    time.Duration
}

// derivePhases compares each step's target against the previous to label
// it Increase/Maintain/Decrease, per spec §3's AttackPhase definition, and
// appends the implicit terminal (0, 0) Shutdown step.
func (tp *TestPlan) derivePhases() []PhaseStep {
	phases := make([]PhaseStep, 0, len(tp.Steps)+1)
	prev := 0
	for _, step := range tp.Steps {
		phases = append(phases, PhaseStep{
			Phase:       phaseFromDelta(prev, step.TargetUsers),
			FromUsers:   prev,
			TargetUsers: step.TargetUsers,
			Duration:    step.Duration,
		})
		prev = step.TargetUsers
	}
	phases = append(phases, PhaseStep{
		Phase:       PhaseShutdown,
		FromUsers:   prev,
		TargetUsers: 0,
		Duration:    0,
	})
	return phases
}

func phaseFromDelta(from, to int) AttackPhase {
	switch {
	case to > from:
		return PhaseIncrease
	case to < from:
		return PhaseDecrease
	default:
		return PhaseMaintain
	}
}

// simpleTestPlan builds the single-step plan implied by users/hatch-rate/
// run-time flags: ramp to Users at HatchRate users/sec, hold for RunTime.
func simpleTestPlan(users int, hatchRate float64, runTime time.Duration) *TestPlan {
	rampSeconds := 0.0
	if hatchRate > 0 {
		rampSeconds = float64(users) / hatchRate
	}
	steps := []TestPlanStep{
		{TargetUsers: users, Duration: time.Duration(rampSeconds * float64(time.Second))},
	}
	if runTime > 0 {
		steps = append(steps, TestPlanStep{TargetUsers: users, Duration: runTime})
	}
	return &TestPlan{Steps: steps}
}

// ParseTestPlan parses the Controller/CLI literal grammar of spec §4.7:
// "users,dur[;users,dur...]", durations as "NNN[s|m|h]" or compositions
// like "1h30m".
func ParseTestPlan(literal string) (*TestPlan, error) {
	literal = strings.TrimSpace(literal)
	if literal == "" {
		return nil, fmt.Errorf("empty test plan")
	}
	parts := strings.Split(literal, ";")
	steps := make([]TestPlanStep, 0, len(parts))
	for _, part := range parts {
		fields := strings.SplitN(strings.TrimSpace(part), ",", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid test-plan step %q: expected users,duration", part)
		}
		users, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil || users < 0 {
			return nil, fmt.Errorf("invalid test-plan step %q: bad user count", part)
		}
		dur, err := ParseDuration(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid test-plan step %q: %w", part, err)
		}
		steps = append(steps, TestPlanStep{TargetUsers: users, Duration: dur})
	}
	return &TestPlan{Steps: steps}, nil
}

// ParseDuration accepts bare integers (seconds) in addition to Go's
// standard duration grammar, matching the "NNN[s|m|h]" shorthand of
// spec §4.7 ("integers optional suffix").
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// hatchSpacing computes the per-user launch/shutdown cadence for a step,
// per spec §4.1: "step_duration / |delta_users|". A zero delta or zero
// duration yields zero spacing (all users transition immediately).
func hatchSpacing(step PhaseStep) time.Duration {
	delta := step.TargetUsers - step.FromUsers
	if delta < 0 {
		delta = -delta
	}
	if delta == 0 || step.Duration <= 0 {
		return 0
	}
	return step.Duration / time.Duration(delta)
}
