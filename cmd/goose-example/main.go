// Command goose-example is a demonstration load test: two Scenarios
// exercising a GET/POST pair of Transactions against a target host, wired
// up with the same cobra flag surface spec §6 names for the framework.
//
// Grounded on the teacher's cmd/healthcheck/main.go for the overall shape
// of a small flag-driven main, generalized from a single HTTP probe to a
// full attack lifecycle (NewGooseAttack → RegisterScenario → Execute) plus
// the three Controller surfaces of spec §4.7.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	goose "github.com/tag1consulting/goose-go"
	"github.com/tag1consulting/goose-go/controller"
)

var cfg = goose.NewConfiguration()

func main() {
	root := &cobra.Command{
		Use:   "goose-example",
		Short: "Run a demonstration goose-go load test",
		RunE:  run,
	}

	flags := root.Flags()
	flags.StringVar(&cfg.Host, "host", cfg.Host, "target host, e.g. http://example.com")
	flags.IntVarP(&cfg.Users, "users", "u", cfg.Users, "number of concurrent users")
	flags.Float64VarP(&cfg.HatchRate, "hatch-rate", "r", cfg.HatchRate, "users started per second during ramp-up")
	flags.DurationVar(&cfg.StartupTime, "startup-time", cfg.StartupTime, "ramp-up duration, alternative to --hatch-rate")
	flags.DurationVar(&cfg.RunTime, "run-time", cfg.RunTime, "how long to hold --users after ramp-up (0 ends the attack once ramp-up completes)")
	flags.StringVar(&cfg.TestPlan, "test-plan", cfg.TestPlan, `explicit plan, e.g. "10,30s;0,5s"`)
	flags.IntVar(&cfg.Iterations, "iterations", cfg.Iterations, "iteration count; only checked against --run-time, users do not stop after it")
	flags.StringVar(&cfg.ReportFile, "report-file", cfg.ReportFile, "write the final report to this path (.html/.json/.txt by extension)")
	flags.BoolVar(&cfg.NoMetrics, "no-metrics", cfg.NoMetrics, "disable metrics collection entirely")
	flags.StringVar(&cfg.RequestLog, "request-log", cfg.RequestLog, "path to write the request log")
	flags.StringVar(&cfg.COMitigation, "co-mitigation", cfg.COMitigation, "disabled|average|minimum|maximum")
	flags.IntVar(&cfg.ThrottleRequests, "throttle-requests", cfg.ThrottleRequests, "cap sustained requests/second (0 disables)")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-request HTTP timeout")
	flags.BoolVar(&cfg.StickyFollow, "sticky-follow", cfg.StickyFollow, "give each user its own cookie jar")
	flags.BoolVar(&cfg.NoTelnet, "no-telnet", cfg.NoTelnet, "disable the Telnet Controller")
	flags.StringVar(&cfg.TelnetHost, "telnet-host", cfg.TelnetHost, "Telnet Controller bind address")
	flags.IntVar(&cfg.TelnetPort, "telnet-port", cfg.TelnetPort, "Telnet Controller port")
	flags.BoolVar(&cfg.NoWebsocket, "no-websocket", cfg.NoWebsocket, "disable the WebSocket/HTTP Controller")
	flags.StringVar(&cfg.WebsocketHost, "websocket-host", cfg.WebsocketHost, "WebSocket/HTTP Controller bind address")
	flags.IntVar(&cfg.WebsocketPort, "websocket-port", cfg.WebsocketPort, "WebSocket/HTTP Controller port")
	flags.BoolVar(&cfg.NoAutostart, "no-autostart", cfg.NoAutostart, "wait for a Controller `start` command instead of starting immediately")
	flags.StringSliceVar(&cfg.Scenarios, "scenarios", cfg.Scenarios, "glob patterns selecting which Scenarios to run")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	attack := goose.NewGooseAttack(cfg)
	attack.RegisterScenario(browsingScenario())
	attack.RegisterScenario(apiScenario())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stopControllers, err := startControllers(attack, logger)
	if err != nil {
		return fmt.Errorf("goose-example: starting controllers: %w", err)
	}
	defer stopControllers()

	rep, err := attack.Execute(ctx)
	if err != nil {
		return fmt.Errorf("goose-example: %w", err)
	}

	fmt.Println(rep.Text())
	if cfg.ReportFile != "" {
		if err := writeReportFile(rep, cfg.ReportFile); err != nil {
			return fmt.Errorf("goose-example: writing report file: %w", err)
		}
	}
	return nil
}

// startControllers brings up the Telnet and combined HTTP/WebSocket
// Controller surfaces per cfg, returning a function that tears both down.
func startControllers(attack *goose.GooseAttack, logger *slog.Logger) (func(), error) {
	var closers []func()

	if !cfg.NoTelnet {
		addr := net.JoinHostPort(cfg.TelnetHost, fmt.Sprint(cfg.TelnetPort))
		telnet, err := controller.NewTelnetServer(attack, addr, logger)
		if err != nil {
			return nil, fmt.Errorf("telnet listener: %w", err)
		}
		go func() {
			if err := telnet.Serve(); err != nil {
				logger.Error("telnet controller stopped", "error", err)
			}
		}()
		closers = append(closers, func() { telnet.Close() })
	}

	if !cfg.NoWebsocket {
		ws := controller.NewWebSocketServer(attack, logger)
		httpSrv := controller.NewHTTPServerWithWebSocket(attack, nil, ws)
		addr := net.JoinHostPort(cfg.WebsocketHost, fmt.Sprint(cfg.WebsocketPort))
		server := &http.Server{Addr: addr, Handler: httpSrv.Router()}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http/websocket controller stopped", "error", err)
			}
		}()
		closers = append(closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		})
	}

	return func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

func writeReportFile(rep interface {
	Text() string
	HTML() (string, error)
	JSON() ([]byte, error)
}, path string) error {
	var data []byte
	switch {
	case hasSuffix(path, ".html"):
		html, err := rep.HTML()
		if err != nil {
			return err
		}
		data = []byte(html)
	case hasSuffix(path, ".json"):
		j, err := rep.JSON()
		if err != nil {
			return err
		}
		data = j
	default:
		data = []byte(rep.Text())
	}
	return os.WriteFile(path, data, 0o644)
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func browsingScenario() *goose.Scenario {
	load := goose.NewTransaction("load_index", func(u *goose.User) goose.TransactionOutcome {
		_, _, err := u.Get("/")
		return goose.TransactionOutcome{Err: err}
	})
	about := goose.NewTransaction("load_about", func(u *goose.User) goose.TransactionOutcome {
		_, _, err := u.Get("/about")
		return goose.TransactionOutcome{Err: err}
	})
	return goose.NewScenario("browsing").
		SetWeight(3).
		SetWaitTime(100, 500).
		RegisterTransaction(load).
		RegisterTransaction(about)
}

func apiScenario() *goose.Scenario {
	create := goose.NewTransaction("create_widget", func(u *goose.User) goose.TransactionOutcome {
		_, _, err := u.Post("/api/widgets", []byte(`{"name":"example"}`))
		return goose.TransactionOutcome{Err: err}
	})
	return goose.NewScenario("api").
		SetWeight(1).
		SetWaitTime(0, 100).
		RegisterTransaction(create)
}
