package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goose "github.com/tag1consulting/goose-go"
	"github.com/tag1consulting/goose-go/metrics"
)

// fakeAttack answers commands the way GooseAttack's command loop would,
// without spinning up a real attack, so Dispatch can be tested in isolation.
type fakeAttack struct {
	commands chan goose.ControllerCommand
	cfg      goose.Configuration
}

func newFakeAttack() *fakeAttack {
	f := &fakeAttack{commands: make(chan goose.ControllerCommand, 8), cfg: *goose.NewConfiguration()}
	go f.run()
	return f
}

func (f *fakeAttack) Commands() chan<- goose.ControllerCommand { return f.commands }

func (f *fakeAttack) run() {
	for cmd := range f.commands {
		switch cmd.Kind {
		case goose.CmdSetHost:
			f.cfg.Host = cmd.String
			f.replyOK(cmd)
		case goose.CmdSetUsers:
			f.cfg.Users = cmd.Int
			f.replyOK(cmd)
		case goose.CmdSetHatchRate:
			f.cfg.HatchRate = cmd.Float
			f.replyOK(cmd)
		case goose.CmdSetStartupTime:
			f.cfg.StartupTime = cmd.Duration
			f.replyOK(cmd)
		case goose.CmdSetRunTime:
			f.cfg.RunTime = cmd.Duration
			f.replyOK(cmd)
		case goose.CmdSetTestPlan:
			f.cfg.TestPlan = cmd.String
			f.replyOK(cmd)
		case goose.CmdGetConfig:
			f.reply(cmd, goose.ControllerReply{Config: f.cfg})
		case goose.CmdGetMetrics:
			f.reply(cmd, goose.ControllerReply{Snapshot: metrics.Snapshot{}})
		default:
			f.replyOK(cmd)
		}
	}
}

func (f *fakeAttack) replyOK(cmd goose.ControllerCommand) {
	f.reply(cmd, goose.ControllerReply{Phase: goose.PhaseIdle})
}

func (f *fakeAttack) reply(cmd goose.ControllerCommand, r goose.ControllerReply) {
	select {
	case cmd.Reply <- r:
	default:
	}
}

func TestDispatch_HelpAndUnknown(t *testing.T) {
	attack := newFakeAttack()
	out, err := Dispatch("help", attack)
	require.NoError(t, err)
	assert.Contains(t, out, "commands:")

	_, err = Dispatch("bogus", attack)
	assert.Error(t, err)
}

func TestDispatch_SetHostAndUsers(t *testing.T) {
	attack := newFakeAttack()
	out, err := Dispatch("host http://example.com", attack)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	out, err = Dispatch("users 25", attack)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	out, err = Dispatch("config-json", attack)
	require.NoError(t, err)
	assert.Contains(t, out, "http://example.com")
	assert.Contains(t, out, "25")
}

func TestDispatch_UsersRejectsNonInteger(t *testing.T) {
	attack := newFakeAttack()
	_, err := Dispatch("users notanumber", attack)
	assert.Error(t, err)
}

func TestDispatch_HostRequiresExactlyOneArg(t *testing.T) {
	attack := newFakeAttack()
	_, err := Dispatch("host", attack)
	assert.Error(t, err)
}

func TestDispatch_MetricsJSONReturnsReport(t *testing.T) {
	attack := newFakeAttack()
	out, err := Dispatch("metrics-json", attack)
	require.NoError(t, err)
	assert.Contains(t, out, "schema_version")
}

func TestSend_TimesOutWhenNoOneListens(t *testing.T) {
	blocked := &fakeAttack{commands: make(chan goose.ControllerCommand)} // unbuffered, no consumer
	done := make(chan struct{})
	go func() {
		r := send(blocked, goose.ControllerCommand{Kind: goose.CmdStop})
		assert.Error(t, r.Err)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(7 * time.Second):
		t.Fatal("send did not time out")
	}
}
