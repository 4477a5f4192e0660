// Package job provides the background job supervisor.
//
// Jobs are externally spawned commands tracked beyond the lifetime of a
// single request. Each job has a persistent record in the index file and
// an append-only output log, both under the processes directory, so
// tracking survives codeloom restarts.
package job

import (
	"time"
)

// Status represents the state of a background job
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusKilled    Status = "killed"
)

// IsTerminal reports whether the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s != StatusRunning
}

// Record is the persistent metadata for one background job.
//
// ExitCode is set when the capture worker observes process exit
// (completed or failed). It stays nil for killed jobs and for jobs whose
// completion was detected only by liveness probing, where the exit code
// is unrecoverable.
type Record struct {
	ID        string    `json:"id"`
	PID       int       `json:"pid"`
	Command   string    `json:"command"`
	StartedAt time.Time `json:"started_at"`
	Status    Status    `json:"status"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Cwd       string    `json:"cwd"`
	Callback  bool      `json:"callback"`
	Reviewed  bool      `json:"reviewed"`
}
