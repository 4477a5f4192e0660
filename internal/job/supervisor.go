package job

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ruapotato/codeloom/internal/logger"
	"github.com/ruapotato/codeloom/internal/metrics"
)

const logSeparator = "----------------------------------------"

// Supervisor launches and tracks background jobs.
//
// Launch returns as soon as the process has started; one capture worker
// per job streams combined output to the job's log file and records the
// exit. Processes run in their own process group so killing a job never
// touches codeloom itself.
type Supervisor struct {
	store *Store
	dir   string

	// launchMu serializes id assignment so two launches cannot race to
	// the same id before either record is persisted.
	launchMu sync.Mutex
}

// NewSupervisor creates a supervisor storing job state under dataDir.
// The on-disk index is reloaded so jobs from previous runs stay tracked.
func NewSupervisor(dataDir string) (*Supervisor, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create jobs directory: %w", err)
	}

	store := NewStore(dataDir)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load job index: %w", err)
	}

	s := &Supervisor{store: store, dir: dataDir}
	s.reconcile()
	return s, nil
}

// LogPath returns the output log path for a job id.
func (s *Supervisor) LogPath(id string) string {
	return filepath.Join(s.dir, id+".log")
}

// Launch starts command in the background and returns its record once
// the record is persisted. name is optional; unnamed jobs get a random
// id, named ones are sanitized and suffixed on collision. callback
// flags the job for review by the conversation loop when it finishes.
func (s *Supervisor) Launch(command, name string, callback bool) (*Record, error) {
	s.launchMu.Lock()
	defer s.launchMu.Unlock()

	id := s.assignID(name)
	logPath := s.LogPath(id)

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create output log: %w", err)
	}

	now := time.Now()
	fmt.Fprintf(logFile, "$ %s\n", command)
	fmt.Fprintf(logFile, "Started: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(logFile, "CWD: %s\n", cwd)
	fmt.Fprintln(logFile, logSeparator)

	// Combined stdout+stderr through one pipe so the worker sees output
	// in arrival order.
	pr, pw, err := os.Pipe()
	if err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = cwd
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		_ = logFile.Close()
		_ = os.Remove(logPath)
		return nil, fmt.Errorf("failed to start command: %w", err)
	}
	// The child holds its own copy of the write end.
	_ = pw.Close()

	rec := Record{
		ID:        id,
		PID:       cmd.Process.Pid,
		Command:   command,
		StartedAt: now,
		Status:    StatusRunning,
		Cwd:       cwd,
		Callback:  callback,
	}

	putErr := s.store.Put(rec)

	metrics.JobsLaunched.Inc()
	metrics.JobsRunning.Inc()
	logger.Info("job %s started: %s (pid %d)", id, command, rec.PID)

	// The process is already running, so the capture worker starts
	// either way; the record stays tracked in memory.
	go s.capture(id, cmd, pr, logFile)

	if putErr != nil {
		logger.Error("failed to persist job %s: %v", id, putErr)
		return nil, fmt.Errorf("failed to persist job record: %w", putErr)
	}
	return &rec, nil
}

// capture is the per-job worker: it drains the output pipe into the log
// and records the exit. It is the only writer of the record while the
// process runs, except for Kill.
func (s *Supervisor) capture(id string, cmd *exec.Cmd, pr *os.File, logFile *os.File) {
	defer logFile.Close()
	defer pr.Close()

	buf := make([]byte, 4096)
	for {
		n, err := pr.Read(buf)
		if n > 0 {
			if _, werr := logFile.Write(buf[:n]); werr == nil {
				_ = logFile.Sync()
			}
		}
		if err != nil {
			break
		}
	}

	waitErr := cmd.Wait()
	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	status := StatusCompleted
	if exitCode != 0 {
		status = StatusFailed
	}

	recorded := false
	err := s.store.Update(id, func(rec *Record) {
		// Kill may have won the race; its trailer is already written.
		if rec.Status != StatusRunning {
			return
		}
		code := exitCode
		rec.ExitCode = &code
		rec.Status = status
		recorded = true
	})
	if err != nil {
		logger.Error("failed to record exit of job %s: %v", id, err)
	}

	if recorded {
		fmt.Fprintln(logFile, logSeparator)
		fmt.Fprintf(logFile, "Exited: %s\n", time.Now().Format(time.RFC3339))
		fmt.Fprintf(logFile, "Exit code: %d\n", exitCode)
		_ = logFile.Sync()

		metrics.JobsRunning.Dec()
		metrics.JobsFinished.WithLabelValues(string(status)).Inc()
		logger.Info("job %s finished: %s (exit code %d)", id, status, exitCode)
	}
}

// Kill signals a running job's entire process group with SIGTERM.
// It returns false when the job is unknown, not running, or its process
// is already gone; in the last case the record is corrected to
// completed rather than killed.
func (s *Supervisor) Kill(id string) bool {
	rec, ok := s.store.Get(id)
	if !ok || rec.Status != StatusRunning {
		return false
	}

	if err := syscall.Kill(-rec.PID, syscall.SIGTERM); err != nil {
		// Process group already gone: treat as finished normally.
		if uerr := s.store.Update(id, func(r *Record) {
			if r.Status == StatusRunning {
				r.Status = StatusCompleted
			}
		}); uerr != nil {
			logger.Error("failed to reconcile job %s after kill miss: %v", id, uerr)
		}
		metrics.JobsRunning.Dec()
		metrics.JobsFinished.WithLabelValues(string(StatusCompleted)).Inc()
		return false
	}

	if !s.markKilled(id) {
		// The capture worker recorded the exit between our liveness
		// check and the update; its trailer and metrics stand.
		return false
	}

	s.appendTrailer(id, fmt.Sprintf("Killed: %s", time.Now().Format(time.RFC3339)))
	metrics.JobsRunning.Dec()
	metrics.JobsFinished.WithLabelValues(string(StatusKilled)).Inc()
	logger.Info("job %s killed", id)
	return true
}

// markKilled flips a still-running record to killed. It returns false
// when the record already holds a recorded exit, leaving the exit code
// and status untouched.
func (s *Supervisor) markKilled(id string) bool {
	won := false
	if err := s.store.Update(id, func(r *Record) {
		if r.Status != StatusRunning {
			return
		}
		r.Status = StatusKilled
		won = true
	}); err != nil {
		logger.Error("failed to persist kill of job %s: %v", id, err)
	}
	return won
}

// Get returns the record for id, reconciling a stale running status
// against process liveness first.
func (s *Supervisor) Get(id string) (Record, bool) {
	rec, ok := s.store.Get(id)
	if !ok {
		return Record{}, false
	}
	if rec.Status == StatusRunning && !processAlive(rec.PID) {
		s.flipDeadToCompleted(id)
		rec, _ = s.store.Get(id)
	}
	return rec, true
}

// List returns tracked jobs, reconciling running records whose process
// is no longer alive. With includeFinished false only running jobs are
// returned.
func (s *Supervisor) List(includeFinished bool) []Record {
	s.reconcile()

	all := s.store.List()
	if includeFinished {
		return all
	}

	running := make([]Record, 0, len(all))
	for _, rec := range all {
		if rec.Status == StatusRunning {
			running = append(running, rec)
		}
	}
	return running
}

// Output returns the last tail lines of a job's log (0 for the whole
// log). The second return is false when no log exists for id.
func (s *Supervisor) Output(id string, tail int) (string, bool) {
	data, err := os.ReadFile(s.LogPath(id))
	if err != nil {
		return "", false
	}

	if tail <= 0 {
		return string(data), true
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	return strings.Join(lines, "\n") + "\n", true
}

// Cleanup removes finished jobs and their logs. With keepRunning false
// every tracked job is removed, running ones included (their processes
// are left alone). Returns the number of records removed.
func (s *Supervisor) Cleanup(keepRunning bool) int {
	var remove []string
	for _, rec := range s.store.List() {
		if rec.Status != StatusRunning || !keepRunning {
			remove = append(remove, rec.ID)
		}
	}

	for _, id := range remove {
		if err := os.Remove(s.LogPath(id)); err != nil && !os.IsNotExist(err) {
			logger.Error("failed to remove log for job %s: %v", id, err)
		}
	}

	if err := s.store.Delete(remove...); err != nil {
		logger.Error("failed to persist cleanup: %v", err)
	}
	return len(remove)
}

// PruneOlderThan removes finished jobs whose start time is before
// cutoff, together with their logs. Running jobs are never touched.
func (s *Supervisor) PruneOlderThan(cutoff time.Time) int {
	var remove []string
	for _, rec := range s.store.List() {
		if rec.Status != StatusRunning && rec.StartedAt.Before(cutoff) {
			remove = append(remove, rec.ID)
		}
	}
	if len(remove) == 0 {
		return 0
	}

	for _, id := range remove {
		if err := os.Remove(s.LogPath(id)); err != nil && !os.IsNotExist(err) {
			logger.Error("failed to remove log for job %s: %v", id, err)
		}
	}
	if err := s.store.Delete(remove...); err != nil {
		logger.Error("failed to persist prune: %v", err)
	}
	return len(remove)
}

// PendingCallbacks returns finished callback jobs not yet reviewed.
func (s *Supervisor) PendingCallbacks() []Record {
	s.reconcile()

	var pending []Record
	for _, rec := range s.store.List() {
		if rec.Callback && !rec.Reviewed && rec.Status != StatusRunning {
			pending = append(pending, rec)
		}
	}
	return pending
}

// MarkReviewed flags a job's callback as handled. Idempotent.
func (s *Supervisor) MarkReviewed(id string) {
	err := s.store.Update(id, func(rec *Record) {
		if rec.Status != StatusRunning {
			rec.Reviewed = true
		}
	})
	if err != nil && err != ErrNotFound {
		logger.Error("failed to mark job %s reviewed: %v", id, err)
	}
}

// RunningSummary returns a short digest of in-flight jobs for the
// engine's prompt context, or "" when nothing is running.
func (s *Supervisor) RunningSummary() string {
	running := s.List(false)
	if len(running) == 0 {
		return ""
	}

	lines := []string{"Background processes running:"}
	for _, rec := range running {
		lines = append(lines, fmt.Sprintf("  [%s] %s", rec.ID, truncate(rec.Command, 50)))
	}
	return strings.Join(lines, "\n")
}

// CallbackMessage builds the synthesized review message for a finished
// callback job, including the tail of its output.
func (s *Supervisor) CallbackMessage(rec Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Background process [%s] finished.\n", rec.ID)
	fmt.Fprintf(&b, "Command: %s\n", rec.Command)
	fmt.Fprintf(&b, "Status: %s", rec.Status)
	if rec.ExitCode != nil {
		fmt.Fprintf(&b, " (exit code %d)", *rec.ExitCode)
	}
	b.WriteString("\n")

	if output, ok := s.Output(rec.ID, 30); ok {
		b.WriteString("\nLast output:\n")
		b.WriteString(output)
	}

	b.WriteString("\nPlease review the result and summarize what happened.")
	return b.String()
}

// assignID picks a unique job id. Callers hold launchMu.
func (s *Supervisor) assignID(name string) string {
	id := sanitizeID(name)
	if id == "" {
		id = uuid.New().String()[:8]
	}

	if !s.store.Exists(id) {
		return id
	}
	base := id
	for n := 1; ; n++ {
		id = fmt.Sprintf("%s_%d", base, n)
		if !s.store.Exists(id) {
			return id
		}
	}
}

// reconcile flips reloaded running records whose process has vanished
// to completed. The exit code is unrecoverable in this path and stays
// unset.
func (s *Supervisor) reconcile() {
	for _, rec := range s.store.List() {
		if rec.Status == StatusRunning && !processAlive(rec.PID) {
			s.flipDeadToCompleted(rec.ID)
		}
	}
}

func (s *Supervisor) flipDeadToCompleted(id string) {
	err := s.store.Update(id, func(rec *Record) {
		if rec.Status == StatusRunning {
			rec.Status = StatusCompleted
		}
	})
	if err != nil {
		logger.Error("failed to reconcile job %s: %v", id, err)
		return
	}
	metrics.JobsFinished.WithLabelValues(string(StatusCompleted)).Inc()
	logger.Info("job %s process gone, marked completed", id)
}

func (s *Supervisor) appendTrailer(id, line string) {
	f, err := os.OpenFile(s.LogPath(id), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintln(f, logSeparator)
	fmt.Fprintln(f, line)
}

// processAlive probes a pid with signal 0.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

// sanitizeID keeps alphanumerics, dashes and underscores of a
// user-supplied job name.
func sanitizeID(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
