// Package engine drives the external AI process and exposes its
// output as a pull-based stream of display events.
package engine

import (
	"bufio"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/ruapotato/codeloom/internal/logger"
	"github.com/ruapotato/codeloom/internal/metrics"
	"github.com/ruapotato/codeloom/internal/protocol"
)

// Engine spawns one engine process per Send and streams its decoded
// output. A single Engine serves the whole application; Sends are
// expected to be sequential (one conversation turn at a time) while
// Interrupt may arrive from any goroutine, including a signal handler.
type Engine struct {
	command   string
	extraArgs []string

	historyWindow     int
	assistantTruncate int

	mu          sync.Mutex
	proc        *exec.Cmd
	interrupted atomic.Bool
}

// Options configures an Engine. Zero values fall back to defaults
// matching the conversation window the prompt builder expects.
type Options struct {
	Command           string
	ExtraArgs         []string
	HistoryWindow     int
	AssistantTruncate int
}

// New returns an Engine invoking command for each turn.
func New(opts Options) *Engine {
	if opts.Command == "" {
		opts.Command = "claude"
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 6
	}
	if opts.AssistantTruncate <= 0 {
		opts.AssistantTruncate = 500
	}
	return &Engine{
		command:           opts.Command,
		extraArgs:         opts.ExtraArgs,
		historyWindow:     opts.HistoryWindow,
		assistantTruncate: opts.AssistantTruncate,
	}
}

// Stream is a pull-based sequence of display events for one turn.
// Exactly one terminal event (Done set) is produced, always last.
type Stream struct {
	events chan protocol.Event
}

// Next blocks until the next event is available. The second return is
// false once the stream is exhausted.
func (s *Stream) Next() (protocol.Event, bool) {
	e, ok := <-s.events
	return e, ok
}

// Send starts one engine turn and returns its event stream. The
// process runs in its own group so Interrupt can signal it without
// touching the caller. Spawn failures surface as a single terminal
// error event on the returned stream, not as a Go error.
func (e *Engine) Send(message string, history []HistoryEntry, context string) *Stream {
	e.interrupted.Store(false)
	prompt := e.buildPrompt(message, history, context)

	args := append([]string{}, e.extraArgs...)
	args = append(args,
		"-p", prompt,
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
	)

	s := &Stream{events: make(chan protocol.Event)}
	go e.run(s, args)
	metrics.EngineSends.Inc()
	return s
}

// run is the producer: it owns the process for this turn and is the
// only writer of the stream channel, so the terminal event is emitted
// exactly once by construction.
func (e *Engine) run(s *Stream, args []string) {
	defer close(s.events)

	cmd := exec.Command(e.command, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		metrics.EngineErrors.Inc()
		s.events <- protocol.Event{Text: fmt.Sprintf("Error: %v", err), Err: true, Done: true}
		return
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		metrics.EngineErrors.Inc()
		logger.Error("engine spawn failed: %v", err)
		s.events <- protocol.Event{
			Text: fmt.Sprintf("Error: %q could not be started. Is it installed? (%v)", e.command, err),
			Err:  true,
			Done: true,
		}
		return
	}

	e.mu.Lock()
	e.proc = cmd
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.proc = nil
		e.mu.Unlock()
	}()

	decoder := protocol.NewDecoder()
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for scanner.Scan() {
		if e.interrupted.Load() {
			break
		}
		for _, ev := range decoder.DecodeLine(scanner.Text()) {
			if ev.Err {
				// An in-band error record ends the turn. Reap the
				// process first so the error is the single terminal
				// event and nothing follows it.
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
				_ = cmd.Wait()
				metrics.EngineErrors.Inc()
				logger.Error("engine reported error: %s", ev.Text)
				ev.Done = true
				s.events <- ev
				return
			}
			s.events <- ev
		}
	}

	waitErr := cmd.Wait()

	if e.interrupted.Load() {
		s.events <- protocol.Event{Text: "\n[Interrupted]", Done: true}
		return
	}

	if waitErr != nil {
		metrics.EngineErrors.Inc()
		logger.Error("engine exited with error: %v", waitErr)
		s.events <- protocol.Event{Text: fmt.Sprintf("Error: engine failed: %v", waitErr), Err: true, Done: true}
		return
	}

	s.events <- protocol.DoneEvent()
}

// Interrupt stops the in-flight turn, if any. The flag is observed at
// the next line boundary; the group signal unblocks the read when the
// engine is mid-chunk. Returns whether a process was actually
// signaled.
func (e *Engine) Interrupt() bool {
	e.interrupted.Store(true)

	e.mu.Lock()
	cmd := e.proc
	e.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return false
	}

	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM); err != nil {
		return false
	}
	metrics.EngineInterrupts.Inc()
	logger.Info("engine turn interrupted")
	return true
}
