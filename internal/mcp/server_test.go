package mcp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ruapotato/codeloom/internal/job"
	"github.com/ruapotato/codeloom/internal/schedule"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	jobs, err := job.NewSupervisor(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	schedules, err := schedule.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = schedules.Close() })
	return NewServer(jobs, schedules)
}

func TestHandleJobLaunchAndOutput(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	if _, _, err := s.handleJobLaunch(ctx, nil, JobLaunchInput{}); err == nil {
		t.Error("empty command should be rejected")
	}

	_, out, err := s.handleJobLaunch(ctx, nil, JobLaunchInput{Command: "echo from-mcp", Name: "hello"})
	if err != nil {
		t.Fatalf("handleJobLaunch() error = %v", err)
	}
	launched := out.(JobLaunchOutput)
	if launched.ID != "hello" {
		t.Errorf("ID = %q, want hello", launched.ID)
	}

	// Wait for the job to finish before reading its log.
	deadline := time.Now().Add(5 * time.Second)
	for {
		_, listed, err := s.handleJobList(ctx, nil, JobListInput{IncludeFinished: true})
		if err != nil {
			t.Fatal(err)
		}
		jobs := listed.(JobListOutput).Jobs
		if len(jobs) == 1 && jobs[0].Status != job.StatusRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}

	_, outputAny, err := s.handleJobOutput(ctx, nil, JobOutputInput{ID: "hello"})
	if err != nil {
		t.Fatalf("handleJobOutput() error = %v", err)
	}
	if output := outputAny.(JobOutputOutput).Output; !strings.Contains(output, "from-mcp") {
		t.Errorf("output missing command text:\n%s", output)
	}

	if _, _, err := s.handleJobOutput(ctx, nil, JobOutputInput{ID: "ghost"}); err == nil {
		t.Error("unknown job id should error")
	}
}

func TestHandleJobKill(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleJobLaunch(ctx, nil, JobLaunchInput{Command: "sleep 30", Name: "long"})
	if err != nil {
		t.Fatal(err)
	}
	id := out.(JobLaunchOutput).ID

	_, killedAny, err := s.handleJobKill(ctx, nil, JobKillInput{ID: id})
	if err != nil {
		t.Fatal(err)
	}
	if !killedAny.(JobKillOutput).Killed {
		t.Error("Killed = false for a running job")
	}

	_, killedAny, err = s.handleJobKill(ctx, nil, JobKillInput{ID: id})
	if err != nil {
		t.Fatal(err)
	}
	if killedAny.(JobKillOutput).Killed {
		t.Error("second kill should report false")
	}
}

func TestHandleScheduleAddAndList(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	if _, _, err := s.handleScheduleAdd(ctx, nil, ScheduleAddInput{Name: "x", Cron: "0 9 * * *"}); err == nil {
		t.Error("empty prompt should be rejected")
	}
	if _, _, err := s.handleScheduleAdd(ctx, nil, ScheduleAddInput{Name: "x", Cron: "bad", Prompt: "p"}); err == nil {
		t.Error("invalid cron should be rejected")
	}

	_, addAny, err := s.handleScheduleAdd(ctx, nil, ScheduleAddInput{Name: "daily", Cron: "0 9 * * *", Prompt: "review"})
	if err != nil {
		t.Fatalf("handleScheduleAdd() error = %v", err)
	}
	id := addAny.(ScheduleAddOutput).ID
	if id == "" {
		t.Fatal("schedule id not assigned")
	}

	_, listAny, err := s.handleScheduleList(ctx, nil, ScheduleListInput{})
	if err != nil {
		t.Fatal(err)
	}
	listed := listAny.(ScheduleListOutput).Schedules
	if len(listed) != 1 || listed[0].ID != id {
		t.Errorf("schedules = %+v, want [%s]", listed, id)
	}
}
