package main

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/ruapotato/codeloom/internal/config"
	"github.com/ruapotato/codeloom/internal/engine"
	"github.com/ruapotato/codeloom/internal/job"
	"github.com/ruapotato/codeloom/internal/logger"
	"github.com/ruapotato/codeloom/internal/profile"
	"github.com/ruapotato/codeloom/internal/schedule"
	"github.com/ruapotato/codeloom/internal/session"
	"github.com/ruapotato/codeloom/internal/ui"
)

// backgroundPatterns match [BACKGROUND]/[BG] markers in an assistant
// response, optionally wrapped in backticks.
var backgroundPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[BACKGROUND\]\s*(.+?)(?:\n|$)`),
	regexp.MustCompile(`(?i)\[BG\]\s*(.+?)(?:\n|$)`),
	regexp.MustCompile("(?i)`\\[BACKGROUND\\]\\s*(.+?)`"),
	regexp.MustCompile("(?i)`\\[BG\\]\\s*(.+?)`"),
}

// app ties the subsystems into the conversation loop.
type app struct {
	cfg       *config.Config
	ui        *ui.UI
	sessions  *session.Manager
	profiles  *profile.Manager
	jobs      *job.Supervisor
	schedules *schedule.Store
	engine    *engine.Engine

	// scheduled holds due schedule prompts until the loop drains them
	// between turns.
	scheduled chan string

	// streaming is read by the signal-handler goroutine while the main
	// loop writes it around each turn.
	streaming atomic.Bool
	running   bool
}

func newApp(cfg *config.Config, term *ui.UI, sessions *session.Manager,
	profiles *profile.Manager, jobs *job.Supervisor,
	schedules *schedule.Store, eng *engine.Engine) *app {
	return &app{
		cfg:       cfg,
		ui:        term,
		sessions:  sessions,
		profiles:  profiles,
		jobs:      jobs,
		schedules: schedules,
		engine:    eng,
		scheduled: make(chan string, 16),
		running:   true,
	}
}

// interrupt forwards Ctrl+C to the engine. Returns whether an active
// turn was actually interrupted.
func (a *app) interrupt() bool {
	if !a.streaming.Load() {
		return false
	}
	return a.engine.Interrupt()
}

// enqueueScheduled receives due schedule prompts from the runner.
func (a *app) enqueueScheduled(sched *schedule.Schedule) {
	prompt := fmt.Sprintf("[Scheduled: %s] %s", sched.Name, sched.Prompt)
	select {
	case a.scheduled <- prompt:
	default:
		logger.Error("scheduled prompt queue full, dropping %s", sched.ID)
	}
}

// run is the main conversation loop.
func (a *app) run(initialSession string) {
	a.ui.Banner()

	if initialSession != "" {
		if _, err := a.sessions.Load(initialSession); err != nil {
			a.ui.Error(fmt.Sprintf("Session '%s' not found", initialSession))
			a.sessions.New("")
		}
	} else {
		a.sessions.New("")
	}

	a.ui.Info(fmt.Sprintf("Session: %s | Profile: %s",
		a.sessions.Current().Name, a.profiles.Current().Name))
	fmt.Println()

	input := bufio.NewScanner(os.Stdin)
	for a.running {
		a.drainCallbacks()
		a.drainScheduled()

		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		fmt.Print(a.ui.Prompt(ui.ShortPath(cwd), a.profiles.Current().Name))

		if !input.Scan() {
			// Ctrl+D
			fmt.Println()
			break
		}
		line := strings.TrimSpace(input.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			a.handleCommand(line)
			continue
		}
		a.sendMessage(line)
	}

	if a.sessions.Current() != nil {
		if err := a.sessions.Save(); err != nil {
			logger.Error("failed to save session on exit: %v", err)
		}
	}
	a.ui.Info("Goodbye!")
}

// sendMessage runs one engine turn and streams the response.
func (a *app) sendMessage(message string) {
	a.sessions.AddMessage("user", message)

	// Exclude the message just added.
	history := a.sessions.History()
	if len(history) > 0 {
		history = history[:len(history)-1]
	}

	context := a.profiles.Context()
	if jobContext := a.jobContext(); jobContext != "" {
		if context != "" {
			context += "\n\n" + jobContext
		} else {
			context = jobContext
		}
	}

	a.ui.StreamStart()
	a.streaming.Store(true)

	var response strings.Builder
	stream := a.engine.Send(message, history, context)
	for {
		ev, ok := stream.Next()
		if !ok {
			break
		}
		if ev.Err {
			// Error events are terminal; the stream closes after them.
			a.streaming.Store(false)
			a.ui.StreamEnd()
			a.ui.Error(ev.Text)
			return
		}
		if ev.Done {
			response.WriteString(ev.Text)
			a.ui.StreamChunk(ev.Text, false)
			break
		}
		response.WriteString(ev.Text)
		a.ui.StreamChunk(ev.Text, ev.ToolCall)
	}

	a.streaming.Store(false)
	a.ui.StreamEnd()

	text := strings.TrimSpace(response.String())
	if text != "" {
		a.sessions.AddMessage("assistant", text)
	}
	a.launchBackgroundRequests(response.String())
}

// jobContext builds the ambient process context for the engine: the
// running-job digest plus instructions for requesting background runs.
func (a *app) jobContext() string {
	var parts []string
	if summary := a.jobs.RunningSummary(); summary != "" {
		parts = append(parts, summary)
	}
	parts = append(parts, "To run a long-running command in the background (like a server, build, or test):\n"+
		"Output: [BACKGROUND] your-command-here\n"+
		"The command will run in background and you'll be called back with results when it completes.")
	return strings.Join(parts, "\n\n")
}

// drainCallbacks routes finished callback jobs back through the
// engine for review. Jobs are marked reviewed before sending so a
// failed send cannot loop.
func (a *app) drainCallbacks() {
	for _, rec := range a.jobs.PendingCallbacks() {
		a.ui.Info(fmt.Sprintf("Background process [%s] finished. Sending for review...", rec.ID))
		fmt.Println()

		msg := a.jobs.CallbackMessage(rec)
		a.jobs.MarkReviewed(rec.ID)
		a.sendMessage(msg)
	}
}

// drainScheduled sends any due scheduled prompts queued by the runner.
func (a *app) drainScheduled() {
	for {
		select {
		case prompt := <-a.scheduled:
			a.ui.Info("Running scheduled prompt...")
			fmt.Println()
			a.sendMessage(prompt)
		default:
			return
		}
	}
}

// launchBackgroundRequests starts jobs for any [BACKGROUND]/[BG]
// markers in the assistant's response, flagged for callback.
func (a *app) launchBackgroundRequests(response string) {
	for _, cmd := range parseBackgroundCommands(response) {
		a.ui.Info("Starting background process: " + clip(cmd, 50))
		rec, err := a.jobs.Launch(cmd, "", true)
		if err != nil {
			a.ui.Error(fmt.Sprintf("Failed to start: %v", err))
			continue
		}
		a.ui.Success(fmt.Sprintf("Started [%s] - will notify when complete", rec.ID))
		fmt.Println()
	}
}

// parseBackgroundCommands extracts deduplicated commands from
// background markers in a response.
func parseBackgroundCommands(response string) []string {
	seen := make(map[string]bool)
	var commands []string
	for _, pattern := range backgroundPatterns {
		for _, match := range pattern.FindAllStringSubmatch(response, -1) {
			cmd := strings.TrimSpace(match[1])
			cmd = strings.TrimSpace(strings.TrimSuffix(cmd, "`"))
			if cmd == "" || seen[cmd] {
				continue
			}
			seen[cmd] = true
			commands = append(commands, cmd)
		}
	}
	return commands
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
