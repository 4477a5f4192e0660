package schedule

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)

	sched := &Schedule{
		Name:     "morning review",
		CronExpr: "0 9 * * *",
		Prompt:   "summarize overnight job output",
		Enabled:  true,
	}
	if err := store.Create(sched); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sched.ID == "" {
		t.Fatal("Create() should assign an id")
	}
	if sched.NextRunAt == nil {
		t.Fatal("enabled schedule should get a next run time")
	}

	got, err := store.Get(sched.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != sched.Name || got.Prompt != sched.Prompt || got.CronExpr != sched.CronExpr {
		t.Errorf("Get() = %+v, want fields of %+v", got, sched)
	}
	if !got.Enabled {
		t.Error("Enabled not persisted")
	}
}

func TestStore_CreateRejectsInvalidCron(t *testing.T) {
	store := newTestStore(t)
	err := store.Create(&Schedule{Name: "bad", CronExpr: "nope", Prompt: "x", Enabled: true})
	if !errors.Is(err, ErrInvalidCron) {
		t.Errorf("Create() error = %v, want ErrInvalidCron", err)
	}
}

func TestStore_GetUnknown(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get("sched_missing"); !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("Get() error = %v, want ErrScheduleNotFound", err)
	}
}

func TestStore_ListDue(t *testing.T) {
	store := newTestStore(t)

	past := time.Now().Add(-time.Hour)
	due := &Schedule{Name: "due", CronExpr: "* * * * *", Prompt: "p", Enabled: true, NextRunAt: &past}
	if err := store.Create(due); err != nil {
		t.Fatal(err)
	}

	future := time.Now().Add(24 * time.Hour)
	notDue := &Schedule{Name: "later", CronExpr: "* * * * *", Prompt: "p", Enabled: true, NextRunAt: &future}
	if err := store.Create(notDue); err != nil {
		t.Fatal(err)
	}

	disabled := &Schedule{Name: "paused", CronExpr: "* * * * *", Prompt: "p", Enabled: false, NextRunAt: &past}
	if err := store.Create(disabled); err != nil {
		t.Fatal(err)
	}

	got, err := store.ListDue(time.Now())
	if err != nil {
		t.Fatalf("ListDue() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Errorf("ListDue() = %+v, want only %s", got, due.ID)
	}
}

func TestStore_MarkRanAdvancesNextRun(t *testing.T) {
	store := newTestStore(t)

	past := time.Now().Add(-time.Hour)
	sched := &Schedule{Name: "s", CronExpr: "* * * * *", Prompt: "p", Enabled: true, NextRunAt: &past}
	if err := store.Create(sched); err != nil {
		t.Fatal(err)
	}

	ranAt := time.Now()
	if err := store.MarkRan(sched.ID, ranAt); err != nil {
		t.Fatalf("MarkRan() error = %v", err)
	}

	got, err := store.Get(sched.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastRunAt == nil {
		t.Fatal("LastRunAt not recorded")
	}
	if got.NextRunAt == nil || !got.NextRunAt.After(ranAt) {
		t.Errorf("NextRunAt = %v, want after %v", got.NextRunAt, ranAt)
	}

	due, err := store.ListDue(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Errorf("schedule still due after MarkRan: %+v", due)
	}
}

func TestStore_SetEnabled(t *testing.T) {
	store := newTestStore(t)
	sched := &Schedule{Name: "s", CronExpr: "* * * * *", Prompt: "p", Enabled: true}
	if err := store.Create(sched); err != nil {
		t.Fatal(err)
	}

	if err := store.SetEnabled(sched.ID, false); err != nil {
		t.Fatalf("SetEnabled(false) error = %v", err)
	}
	got, _ := store.Get(sched.ID)
	if got.Enabled {
		t.Error("schedule still enabled after pause")
	}
	if got.NextRunAt != nil {
		t.Error("paused schedule should have no next run time")
	}

	if err := store.SetEnabled(sched.ID, true); err != nil {
		t.Fatalf("SetEnabled(true) error = %v", err)
	}
	got, _ = store.Get(sched.ID)
	if !got.Enabled || got.NextRunAt == nil {
		t.Errorf("resumed schedule = %+v, want enabled with next run", got)
	}
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	sched := &Schedule{Name: "s", CronExpr: "* * * * *", Prompt: "p", Enabled: true}
	if err := store.Create(sched); err != nil {
		t.Fatal(err)
	}

	if err := store.Delete(sched.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(sched.ID); !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("second Delete() error = %v, want ErrScheduleNotFound", err)
	}
}

func TestRunner_DeliversDueSchedules(t *testing.T) {
	store := newTestStore(t)

	past := time.Now().Add(-time.Hour)
	sched := &Schedule{Name: "s", CronExpr: "* * * * *", Prompt: "check jobs", Enabled: true, NextRunAt: &past}
	if err := store.Create(sched); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var delivered []string
	r := NewRunner(store, func(s *Schedule) {
		mu.Lock()
		delivered = append(delivered, s.Prompt)
		mu.Unlock()
	}, 10, 10)

	r.checkDue()

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 || delivered[0] != "check jobs" {
		t.Errorf("delivered = %v, want [check jobs]", delivered)
	}

	due, err := store.ListDue(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Error("delivered schedule should no longer be due")
	}
}

func TestRunner_RateLimitDefers(t *testing.T) {
	store := newTestStore(t)

	past := time.Now().Add(-time.Hour)
	for _, name := range []string{"a", "b", "c"} {
		s := &Schedule{Name: name, CronExpr: "* * * * *", Prompt: name, Enabled: true, NextRunAt: &past}
		if err := store.Create(s); err != nil {
			t.Fatal(err)
		}
	}

	var mu sync.Mutex
	count := 0
	r := NewRunner(store, func(*Schedule) {
		mu.Lock()
		count++
		mu.Unlock()
	}, 1, 1)

	r.checkDue()

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("delivered %d schedules, want 1 within the rate limit", count)
	}

	// Deferred schedules stay due for the next tick.
	due, err := store.ListDue(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 {
		t.Errorf("remaining due = %d, want 2", len(due))
	}
}
