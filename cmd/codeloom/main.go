// codeloom is a lightweight terminal interface to an AI coding
// engine. It streams responses, keeps full session history, and
// supervises background jobs the engine asks for.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruapotato/codeloom/internal/cleanup"
	"github.com/ruapotato/codeloom/internal/config"
	"github.com/ruapotato/codeloom/internal/engine"
	"github.com/ruapotato/codeloom/internal/job"
	"github.com/ruapotato/codeloom/internal/logger"
	"github.com/ruapotato/codeloom/internal/mcp"
	"github.com/ruapotato/codeloom/internal/metrics"
	"github.com/ruapotato/codeloom/internal/profile"
	"github.com/ruapotato/codeloom/internal/schedule"
	"github.com/ruapotato/codeloom/internal/session"
	"github.com/ruapotato/codeloom/internal/ui"
)

func main() {
	// Subcommand form: codeloom mcp [flags]
	if len(os.Args) > 1 && os.Args[1] == "mcp" {
		runMCP(os.Args[2:])
		return
	}

	var (
		sessionID   string
		listOnly    bool
		noColor     bool
		configPath  string
		metricsAddr string
	)
	flag.StringVar(&sessionID, "s", "", "load a specific session by ID")
	flag.StringVar(&sessionID, "session", "", "load a specific session by ID")
	flag.BoolVar(&listOnly, "l", false, "list available sessions and exit")
	flag.BoolVar(&listOnly, "list", false, "list available sessions and exit")
	flag.BoolVar(&noColor, "no-color", false, "disable colored output")
	flag.StringVar(&configPath, "config", "", "path to config file (JSONC)")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "codeloom: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogDir(), cfg.Debug); err != nil {
		fmt.Fprintf(os.Stderr, "codeloom: failed to open log: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	term := ui.New(noColor)

	sessions, err := session.NewManager(cfg.SessionsDir())
	if err != nil {
		fatal(term, err)
	}

	if listOnly {
		term.SessionList(sessions.List(20))
		return
	}

	profiles, err := profile.NewManager(cfg.ProfilesDir())
	if err != nil {
		fatal(term, err)
	}

	jobs, err := job.NewSupervisor(cfg.JobsDir())
	if err != nil {
		fatal(term, err)
	}

	schedules, err := schedule.NewStore(cfg.DataDir)
	if err != nil {
		fatal(term, err)
	}
	defer schedules.Close()

	app := newApp(cfg, term, sessions, profiles, jobs, schedules, engine.New(engine.Options{
		Command:           cfg.Engine.Command,
		ExtraArgs:         cfg.Engine.ExtraArgs,
		HistoryWindow:     cfg.History.Window,
		AssistantTruncate: cfg.History.AssistantTruncate,
	}))

	runner := schedule.NewRunner(schedules, app.enqueueScheduled,
		cfg.Schedule.SendsPerMinute, cfg.Schedule.SendBurst)
	runner.Start()
	defer runner.Stop()

	sweeper := cleanup.New(cleanup.Config{
		DataDir:     cfg.DataDir,
		SessionsDir: cfg.SessionsDir(),
		Jobs:        jobs,
		Interval:    cfg.CleanupInterval(),
		Retention:   cfg.CleanupRetention(),
		DiskWarn:    80.0,
		DiskError:   90.0,
	})
	sweeper.Start()
	defer sweeper.Stop()

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error("metrics server: %v", err)
			}
		}()
		logger.Info("metrics listening on %s", metricsAddr)
	}

	// Ctrl+C interrupts an in-flight response; with nothing streaming
	// it only prints an exit hint.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	go func() {
		for range sigCh {
			if !app.interrupt() {
				fmt.Println()
				term.Info("Press Ctrl+D or type /quit to exit")
			}
		}
	}()

	app.run(sessionID)
}

// runMCP serves the job and schedule tools over stdio.
func runMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (JSONC)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "codeloom: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.LogDir(), cfg.Debug); err != nil {
		fmt.Fprintf(os.Stderr, "codeloom: failed to open log: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	jobs, err := job.NewSupervisor(cfg.JobsDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "codeloom: %v\n", err)
		os.Exit(1)
	}
	schedules, err := schedule.NewStore(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "codeloom: %v\n", err)
		os.Exit(1)
	}
	defer schedules.Close()

	srv := mcp.NewServer(jobs, schedules)
	if err := srv.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "codeloom: mcp server error: %v\n", err)
		os.Exit(1)
	}
}

func fatal(term *ui.UI, err error) {
	term.Error(err.Error())
	logger.Error("fatal: %v", err)
	os.Exit(1)
}
