// Package controller implements the three Controller surfaces of spec
// §4.7 (Telnet, WebSocket, HTTP/Prometheus) over the single command
// dispatcher defined here, so all three protocols share one command table
// and one translation into goose.ControllerCommand.
//
// Grounded on internal/demo/controller.go's StandardDemoController (single
// dispatcher behind every transport) and internal/demo/websocket.go's
// WebSocketHub (one broadcast/register/unregister loop feeding many
// connections), adapted from trading-domain commands to the load-test
// command table of spec §4.7.
package controller

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	goose "github.com/tag1consulting/goose-go"
	"github.com/tag1consulting/goose-go/report"
)

// Attack is the subset of *goose.GooseAttack a Controller depends on: the
// command channel used to request state changes and query current state.
type Attack interface {
	Commands() chan<- goose.ControllerCommand
}

const commandTimeout = 5 * time.Second

const helpText = `commands:
  help, ?                 show this text
  start                   start the attack (only meaningful with --no-autostart)
  stop                    stop the running attack, returning to Idle
  shutdown                stop the running attack and end the run
  host <url>              change the target host
  users <n>               change the target user count
  hatchrate <n>           change the hatch rate (users/second)
  startuptime <duration>  change the startup ramp duration
  runtime <duration>      change the run duration
  test-plan <literal>     replace the test plan (e.g. "10,30s;0,5s")
  config                  show the current configuration
  config-json             show the current configuration as JSON
  metrics                 show a live metrics snapshot
  metrics-json            show a live metrics snapshot as JSON
  exit, quit              close this connection
over WebSocket, config and metrics always reply with JSON
`

// Dispatch parses one command line and applies it against attack, returning
// the text a Telnet or WebSocket client should see (spec §4.7's command
// table). "exit"/"quit" are handled by the caller, not here, since closing a
// connection isn't something Dispatch can do on its own.
func Dispatch(line string, attack Attack) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	case "help", "?":
		return helpText, nil
	case "start":
		return ackReply(attack, goose.ControllerCommand{Kind: goose.CmdStart})
	case "stop":
		return ackReply(attack, goose.ControllerCommand{Kind: goose.CmdStop})
	case "shutdown":
		return ackReply(attack, goose.ControllerCommand{Kind: goose.CmdShutdown})
	case "host":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: host <url>")
		}
		return ackReply(attack, goose.ControllerCommand{Kind: goose.CmdSetHost, String: args[0]})
	case "users":
		n, err := requireInt(args)
		if err != nil {
			return "", err
		}
		return ackReply(attack, goose.ControllerCommand{Kind: goose.CmdSetUsers, Int: n})
	case "hatchrate":
		f, err := requireFloat(args)
		if err != nil {
			return "", err
		}
		return ackReply(attack, goose.ControllerCommand{Kind: goose.CmdSetHatchRate, Float: f})
	case "startuptime":
		d, err := requireDuration(args)
		if err != nil {
			return "", err
		}
		return ackReply(attack, goose.ControllerCommand{Kind: goose.CmdSetStartupTime, Duration: d})
	case "runtime":
		d, err := requireDuration(args)
		if err != nil {
			return "", err
		}
		return ackReply(attack, goose.ControllerCommand{Kind: goose.CmdSetRunTime, Duration: d})
	case "test-plan":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: test-plan <literal>")
		}
		return ackReply(attack, goose.ControllerCommand{Kind: goose.CmdSetTestPlan, String: args[0]})
	case "config":
		return configText(attack)
	case "config-json":
		return configJSON(attack)
	case "metrics":
		return metricsText(attack)
	case "metrics-json":
		return metricsJSON(attack)
	default:
		return "", fmt.Errorf("unknown command %q, try 'help'", verb)
	}
}

func requireInt(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one integer argument")
	}
	return strconv.Atoi(args[0])
}

func requireFloat(args []string) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one numeric argument")
	}
	return strconv.ParseFloat(args[0], 64)
}

func requireDuration(args []string) (time.Duration, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one duration argument")
	}
	return goose.ParseDuration(args[0])
}

// send delivers cmd to the Orchestrator's command channel and waits for its
// reply, bounding both sides by commandTimeout so a stalled Orchestrator
// never hangs a Controller connection forever (spec §7 item 4: a rejected
// or stuck command affects only the issuing connection).
func send(attack Attack, cmd goose.ControllerCommand) goose.ControllerReply {
	reply := make(chan goose.ControllerReply, 1)
	cmd.Reply = reply

	select {
	case attack.Commands() <- cmd:
	case <-time.After(commandTimeout):
		return goose.ControllerReply{Err: fmt.Errorf("command channel busy: %w", goose.ErrControllerRejected)}
	}

	select {
	case r := <-reply:
		return r
	case <-time.After(commandTimeout):
		return goose.ControllerReply{Err: fmt.Errorf("no reply from orchestrator: %w", goose.ErrControllerRejected)}
	}
}

func ackReply(attack Attack, cmd goose.ControllerCommand) (string, error) {
	r := send(attack, cmd)
	if r.Err != nil {
		return "", r.Err
	}
	return fmt.Sprintf("ok (phase=%s)", r.Phase), nil
}

func configText(attack Attack) (string, error) {
	r := send(attack, goose.ControllerCommand{Kind: goose.CmdGetConfig})
	if r.Err != nil {
		return "", r.Err
	}
	return fmt.Sprintf("%+v", r.Config), nil
}

func configJSON(attack Attack) (string, error) {
	r := send(attack, goose.ControllerCommand{Kind: goose.CmdGetConfig})
	if r.Err != nil {
		return "", r.Err
	}
	data, err := json.MarshalIndent(r.Config, "", "  ")
	if err != nil {
		return "", fmt.Errorf("controller: marshaling config: %w", err)
	}
	return string(data), nil
}

func metricsText(attack Attack) (string, error) {
	rep, err := liveReport(attack)
	if err != nil {
		return "", err
	}
	return rep.Text(), nil
}

func metricsJSON(attack Attack) (string, error) {
	rep, err := liveReport(attack)
	if err != nil {
		return "", err
	}
	data, err := rep.JSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func liveReport(attack Attack) (*report.Report, error) {
	r := send(attack, goose.ControllerCommand{Kind: goose.CmdGetMetrics})
	if r.Err != nil {
		return nil, r.Err
	}
	return reportFromReply(r)
}

// reportFromReply builds a Report from an already-received CmdGetMetrics
// reply, the shared tail end of every "current metrics" command whether it
// arrived via Telnet, WebSocket, or the HTTP /report.html route.
func reportFromReply(r goose.ControllerReply) (*report.Report, error) {
	return report.Generate(report.Input{
		Duration: r.Snapshot.Duration,
		Snapshot: r.Snapshot,
	}, nil, report.Options{IncludeStatusCodes: true, IncludeErrors: true})
}
