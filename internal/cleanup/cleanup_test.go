package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ruapotato/codeloom/internal/job"
)

func touchOld(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-age)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
}

func TestRunCleanup_TmpAndSessionFiles(t *testing.T) {
	dataDir := t.TempDir()
	sessionsDir := filepath.Join(dataDir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0o755); err != nil {
		t.Fatal(err)
	}

	touchOld(t, filepath.Join(dataDir, "index.json.tmp"), 48*time.Hour)
	touchOld(t, filepath.Join(sessionsDir, "20240101_000000.json"), 48*time.Hour)

	// Recent files survive.
	fresh := filepath.Join(sessionsDir, "20260830_120000.json")
	if err := os.WriteFile(fresh, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	notJSON := filepath.Join(sessionsDir, "README")
	touchOld(t, notJSON, 48*time.Hour)

	c := New(Config{
		DataDir:     dataDir,
		SessionsDir: sessionsDir,
		Interval:    time.Hour,
		Retention:   24 * time.Hour,
		DiskWarn:    99.9,
		DiskError:   99.9,
	})
	c.runCleanup()

	if _, err := os.Stat(filepath.Join(dataDir, "index.json.tmp")); !os.IsNotExist(err) {
		t.Error("old .tmp file should be removed")
	}
	if _, err := os.Stat(filepath.Join(sessionsDir, "20240101_000000.json")); !os.IsNotExist(err) {
		t.Error("old session file should be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("recent session file should survive")
	}
	if _, err := os.Stat(notJSON); err != nil {
		t.Error("non-json files should not be touched")
	}
}

func TestRunCleanup_PrunesOldJobs(t *testing.T) {
	dataDir := t.TempDir()
	jobs, err := job.NewSupervisor(filepath.Join(dataDir, "processes"))
	if err != nil {
		t.Fatal(err)
	}

	rec, err := jobs.Launch("true", "old-build", false)
	if err != nil {
		t.Fatal(err)
	}
	// Wait for the job to finish, then backdate it past retention.
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, _ := jobs.Get(rec.ID)
		if got.Status != job.StatusRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if removed := jobs.PruneOlderThan(time.Now().Add(time.Minute)); removed != 1 {
		t.Fatalf("PruneOlderThan() = %d, want 1", removed)
	}
	if _, ok := jobs.Get(rec.ID); ok {
		t.Error("pruned job should be gone")
	}
	if _, err := os.Stat(jobs.LogPath(rec.ID)); !os.IsNotExist(err) {
		t.Error("pruned job's log should be deleted")
	}
}

func TestDiskUsage(t *testing.T) {
	dataDir := t.TempDir()
	c := New(DefaultConfig(dataDir, filepath.Join(dataDir, "sessions"), nil))

	used, total, percent, err := c.DiskUsage()
	if err != nil {
		t.Fatalf("DiskUsage() error = %v", err)
	}
	if total == 0 {
		t.Error("total bytes should be nonzero")
	}
	if used > total {
		t.Errorf("used %d > total %d", used, total)
	}
	if percent < 0 || percent > 100 {
		t.Errorf("percent = %f, want 0..100", percent)
	}
}
