// Package cleanup provides background retention sweeps for codeloom's
// data directory.
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ruapotato/codeloom/internal/job"
	"github.com/ruapotato/codeloom/internal/logger"
)

// Cleaner periodically prunes old finished jobs and stale session
// files, and watches disk usage under the data directory.
type Cleaner struct {
	dataDir     string
	sessionsDir string
	jobs        *job.Supervisor
	interval    time.Duration
	retention   time.Duration
	diskWarn    float64
	diskError   float64
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// Config holds cleanup configuration.
type Config struct {
	DataDir     string
	SessionsDir string
	Jobs        *job.Supervisor
	Interval    time.Duration // How often to run cleanup
	Retention   time.Duration // How long to keep finished jobs and idle sessions
	DiskWarn    float64       // Warn at this disk usage percentage
	DiskError   float64       // Error at this disk usage percentage
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(dataDir, sessionsDir string, jobs *job.Supervisor) Config {
	return Config{
		DataDir:     dataDir,
		SessionsDir: sessionsDir,
		Jobs:        jobs,
		Interval:    30 * time.Minute,
		Retention:   14 * 24 * time.Hour,
		DiskWarn:    80.0,
		DiskError:   90.0,
	}
}

// New creates a new Cleaner with the given configuration.
func New(cfg Config) *Cleaner {
	return &Cleaner{
		dataDir:     cfg.DataDir,
		sessionsDir: cfg.SessionsDir,
		jobs:        cfg.Jobs,
		interval:    cfg.Interval,
		retention:   cfg.Retention,
		diskWarn:    cfg.DiskWarn,
		diskError:   cfg.DiskError,
	}
}

// Start begins the periodic cleanup loop.
func (c *Cleaner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		// Run immediately on start
		c.runCleanup()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.runCleanup()
			}
		}
	}()

	logger.Info("cleanup started (interval=%v, retention=%v)", c.interval, c.retention)
}

// Stop halts the cleanup loop.
func (c *Cleaner) Stop() {
	if c.cancel != nil {
		c.cancel()
		c.wg.Wait()
		logger.Info("cleanup stopped")
	}
}

// runCleanup performs all cleanup tasks.
func (c *Cleaner) runCleanup() {
	c.cleanupTmpFiles()
	c.cleanupOldJobs()
	c.cleanupOldSessions()
	c.checkDiskUsage()
}

// cleanupTmpFiles removes orphaned .tmp files left by interrupted
// atomic writes.
func (c *Cleaner) cleanupTmpFiles() {
	cutoff := time.Now().Add(-c.retention)
	var removed int

	err := filepath.Walk(c.dataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() && strings.HasSuffix(info.Name(), ".tmp") {
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(path); err == nil {
					removed++
				}
			}
		}
		return nil
	})

	if err != nil {
		logger.Error("cleanup walk error: %v", err)
	}
	if removed > 0 {
		logger.Info("removed %d orphaned .tmp files", removed)
	}
}

// cleanupOldJobs prunes finished jobs past retention.
func (c *Cleaner) cleanupOldJobs() {
	if c.jobs == nil {
		return
	}
	if removed := c.jobs.PruneOlderThan(time.Now().Add(-c.retention)); removed > 0 {
		logger.Info("pruned %d old finished jobs", removed)
	}
}

// cleanupOldSessions removes session files untouched past retention.
// Mod time tracks the last save, so an active session is never stale.
func (c *Cleaner) cleanupOldSessions() {
	cutoff := time.Now().Add(-c.retention)
	var removed int

	entries, err := os.ReadDir(c.sessionsDir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(c.sessionsDir, entry.Name())); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		logger.Info("cleaned up %d old session files", removed)
	}
}

// checkDiskUsage monitors disk usage and logs warnings.
func (c *Cleaner) checkDiskUsage() {
	_, _, usedPercent, err := c.DiskUsage()
	if err != nil {
		return
	}

	if usedPercent >= c.diskError {
		logger.Error("disk usage at %.1f%% (data dir)", usedPercent)
	} else if usedPercent >= c.diskWarn {
		logger.Info("disk usage at %.1f%% (data dir)", usedPercent)
	}
}

// DiskUsage returns current disk usage stats for the data directory.
func (c *Cleaner) DiskUsage() (usedBytes, totalBytes uint64, usedPercent float64, err error) {
	var stat syscall.Statfs_t
	if err = syscall.Statfs(c.dataDir, &stat); err != nil {
		return
	}

	totalBytes = stat.Blocks * uint64(stat.Bsize)
	freeBytes := stat.Bfree * uint64(stat.Bsize)
	usedBytes = totalBytes - freeBytes
	usedPercent = float64(usedBytes) / float64(totalBytes) * 100
	return
}
