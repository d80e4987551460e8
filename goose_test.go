package goose

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGooseAttack_ExecuteRunsSimplePlanAndReturnsReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := NewConfiguration()
	cfg.Host = srv.URL
	cfg.Users = 2
	cfg.HatchRate = 10
	cfg.RunTime = 150 * time.Millisecond
	cfg.NoMetrics = true

	scenario := NewScenario("Browse").SetWaitTime(1, 2)
	scenario.RegisterTransaction(NewTransaction("hit", func(u *User) TransactionOutcome {
		_, _, err := u.Get("/")
		return TransactionOutcome{Err: err}
	}))

	attack := NewGooseAttack(cfg).RegisterScenario(scenario)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rep, err := attack.Execute(ctx)
	require.NoError(t, err)
	require.NotNil(t, rep)

	require.Len(t, rep.Requests, 1)
	assert.Equal(t, "GET", rep.Requests[0].Method)
	assert.GreaterOrEqual(t, rep.Requests[0].Count, int64(1))
	assert.Equal(t, PhaseShutdown, attack.Phase())
}

func TestGooseAttack_CmdSetUsersRampsLiveWhileRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := NewConfiguration()
	cfg.Host = srv.URL
	cfg.Users = 1
	cfg.HatchRate = 10
	cfg.RunTime = 3 * time.Second
	cfg.NoMetrics = true

	scenario := NewScenario("Browse").SetWaitTime(1, 2)
	scenario.RegisterTransaction(NewTransaction("hit", func(u *User) TransactionOutcome {
		_, _, err := u.Get("/")
		return TransactionOutcome{Err: err}
	}))

	attack := NewGooseAttack(cfg).RegisterScenario(scenario)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		attack.Execute(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return attack.Phase() == PhaseMaintain
	}, 2*time.Second, 10*time.Millisecond)

	reply := make(chan ControllerReply, 1)
	attack.Commands() <- ControllerCommand{Kind: CmdSetUsers, Int: 3, Reply: reply}
	r := <-reply
	require.NoError(t, r.Err)

	require.Eventually(t, func() bool {
		attack.mu.Lock()
		n := len(attack.running)
		attack.mu.Unlock()
		return n == 3
	}, 2*time.Second, 10*time.Millisecond, "users command should immediately ramp the running set")

	stopReply := make(chan ControllerReply, 1)
	attack.Commands() <- ControllerCommand{Kind: CmdStop, Reply: stopReply}
	<-stopReply

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("attack did not finish after stop")
	}
}

func TestGooseAttack_RejectsWhenNoScenarioRegistered(t *testing.T) {
	cfg := NewConfiguration()
	cfg.Host = "http://example.invalid"
	cfg.NoMetrics = true

	attack := NewGooseAttack(cfg)
	_, err := attack.Execute(context.Background())
	assert.Error(t, err)
}

func TestGooseAttack_ScenariosFilterRejectsNoMatch(t *testing.T) {
	cfg := NewConfiguration()
	cfg.Host = "http://example.invalid"
	cfg.NoMetrics = true
	cfg.Scenarios = []string{"nonexistent"}

	scenario := NewScenario("Browse")
	scenario.RegisterTransaction(NewTransaction("hit", func(u *User) TransactionOutcome { return TransactionOutcome{} }))

	attack := NewGooseAttack(cfg).RegisterScenario(scenario)
	_, err := attack.Execute(context.Background())
	assert.Error(t, err)
}

func TestExpandScenarioCycle_WeightsAssignment(t *testing.T) {
	a := NewScenario("a").SetWeight(1)
	b := NewScenario("b").SetWeight(3)
	cycle := expandScenarioCycle([]*Scenario{a, b})
	require.Len(t, cycle, 4)

	counts := map[string]int{}
	for _, s := range cycle {
		counts[s.Name]++
	}
	assert.Equal(t, 1, counts["a"])
	assert.Equal(t, 3, counts["b"])
}

func TestHandleNonLifecycleCommand_GetConfigAndSetUsers(t *testing.T) {
	cfg := NewConfiguration()
	cfg.Host = "http://example.invalid"
	attack := NewGooseAttack(cfg)
	attack.aggregator = nil // not started; GetConfig doesn't need it

	ctx := context.Background()
	reply := make(chan ControllerReply, 1)
	attack.handleNonLifecycleCommand(ctx, ControllerCommand{Kind: CmdSetUsers, Int: 7, Reply: reply}, nil)
	r := <-reply
	assert.NoError(t, r.Err)
	assert.Equal(t, 7, attack.cfg.Users)

	attack.handleNonLifecycleCommand(ctx, ControllerCommand{Kind: CmdGetConfig, Reply: reply}, nil)
	r = <-reply
	assert.Equal(t, 7, r.Config.Users)
}

func TestHandleNonLifecycleCommand_SetTestPlanRejectsInvalidLiteral(t *testing.T) {
	cfg := NewConfiguration()
	attack := NewGooseAttack(cfg)

	reply := make(chan ControllerReply, 1)
	attack.handleNonLifecycleCommand(context.Background(), ControllerCommand{Kind: CmdSetTestPlan, String: "not-a-plan", Reply: reply}, nil)
	r := <-reply
	require.Error(t, r.Err)
}
