// Package schedule persists cron-driven prompts and delivers the due
// ones back into the conversation loop.
package schedule

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrInvalidCron      = errors.New("invalid cron expression")
)

// Store handles schedule persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new schedule store with SQLite backend
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "schedules.db")
	// Enable WAL mode and busy timeout for better concurrent access
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		cron_expr TEXT NOT NULL,
		prompt TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_run_at DATETIME,
		next_run_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_schedules_enabled ON schedules(enabled);
	CREATE INDEX IF NOT EXISTS idx_schedules_next_run ON schedules(next_run_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Create validates the cron expression, assigns an id and computes the
// first run time before inserting.
func (s *Store) Create(schedule *Schedule) error {
	if err := ValidateCron(schedule.CronExpr); err != nil {
		return err
	}

	if schedule.ID == "" {
		schedule.ID = "sched_" + uuid.New().String()[:8]
	}
	now := time.Now()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	if schedule.NextRunAt == nil && schedule.Enabled {
		nextRun, err := NextRun(schedule.CronExpr, now)
		if err == nil {
			schedule.NextRunAt = &nextRun
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO schedules (id, name, cron_expr, prompt, enabled, created_at, updated_at, last_run_at, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID, schedule.Name, schedule.CronExpr, schedule.Prompt,
		schedule.Enabled, schedule.CreatedAt, schedule.UpdatedAt,
		schedule.LastRunAt, schedule.NextRunAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

// Get retrieves a schedule by ID
func (s *Store) Get(id string) (*Schedule, error) {
	row := s.db.QueryRow(`
		SELECT id, name, cron_expr, prompt, enabled, created_at, updated_at, last_run_at, next_run_at
		FROM schedules WHERE id = ?`, id)

	sched, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}
	return sched, nil
}

// List returns all schedules ordered by creation time
func (s *Store) List() ([]*Schedule, error) {
	rows, err := s.db.Query(`
		SELECT id, name, cron_expr, prompt, enabled, created_at, updated_at, last_run_at, next_run_at
		FROM schedules ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var out []*Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

// ListDue returns enabled schedules whose next run time has passed
func (s *Store) ListDue(now time.Time) ([]*Schedule, error) {
	rows, err := s.db.Query(`
		SELECT id, name, cron_expr, prompt, enabled, created_at, updated_at, last_run_at, next_run_at
		FROM schedules
		WHERE enabled = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}
	defer rows.Close()

	var out []*Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

// MarkRan records an execution and advances the next run time.
func (s *Store) MarkRan(id string, ranAt time.Time) error {
	sched, err := s.Get(id)
	if err != nil {
		return err
	}

	var next *time.Time
	if nextRun, err := NextRun(sched.CronExpr, ranAt); err == nil {
		next = &nextRun
	}

	_, err = s.db.Exec(`
		UPDATE schedules SET last_run_at = ?, next_run_at = ?, updated_at = ? WHERE id = ?`,
		ranAt, next, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// SetEnabled pauses or resumes a schedule. Resuming recomputes the
// next run time from now.
func (s *Store) SetEnabled(id string, enabled bool) error {
	sched, err := s.Get(id)
	if err != nil {
		return err
	}

	var next *time.Time
	if enabled {
		if nextRun, err := NextRun(sched.CronExpr, time.Now()); err == nil {
			next = &nextRun
		}
	}

	_, err = s.db.Exec(`
		UPDATE schedules SET enabled = ?, next_run_at = ?, updated_at = ? WHERE id = ?`,
		enabled, next, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return nil
}

// Delete removes a schedule
func (s *Store) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*Schedule, error) {
	var sched Schedule
	var lastRun, nextRun sql.NullTime
	err := row.Scan(&sched.ID, &sched.Name, &sched.CronExpr, &sched.Prompt,
		&sched.Enabled, &sched.CreatedAt, &sched.UpdatedAt, &lastRun, &nextRun)
	if err != nil {
		return nil, err
	}
	if lastRun.Valid {
		sched.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		sched.NextRunAt = &nextRun.Time
	}
	return &sched, nil
}
