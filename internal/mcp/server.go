// Package mcp exposes codeloom's job supervisor and schedules as MCP
// tools over stdio, so other agents can launch and inspect background
// work.
package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ruapotato/codeloom/internal/job"
	"github.com/ruapotato/codeloom/internal/logger"
	"github.com/ruapotato/codeloom/internal/schedule"
)

// Server wires the supervisor and schedule store into an MCP server.
type Server struct {
	jobs      *job.Supervisor
	schedules *schedule.Store
	srv       *mcp.Server
}

// NewServer registers all tools on a fresh MCP server.
func NewServer(jobs *job.Supervisor, schedules *schedule.Store) *Server {
	s := &Server{jobs: jobs, schedules: schedules}

	s.srv = mcp.NewServer(&mcp.Implementation{
		Name:    "codeloom",
		Version: "0.1.0",
	}, &mcp.ServerOptions{
		HasTools: true,
	})

	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "job_launch",
		Description: "Run a shell command in the background. Returns immediately with the job id; use job_output to follow it.",
	}, s.handleJobLaunch)

	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "job_list",
		Description: "List tracked background jobs with status and exit codes.",
	}, s.handleJobList)

	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "job_output",
		Description: "Fetch the output log of a background job, optionally only the last N lines.",
	}, s.handleJobOutput)

	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "job_kill",
		Description: "Terminate a running background job and its whole process group.",
	}, s.handleJobKill)

	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "schedule_list",
		Description: "List scheduled prompts with their cron expressions and next run times.",
	}, s.handleScheduleList)

	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "schedule_add",
		Description: "Create a scheduled prompt from a standard 5-field cron expression.",
	}, s.handleScheduleAdd)

	return s
}

// Run serves MCP over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	logger.Info("mcp server starting on stdio")
	return s.srv.Run(ctx, &mcp.StdioTransport{})
}

type JobLaunchInput struct {
	Command  string `json:"command" jsonschema:"shell command to run in the background"`
	Name     string `json:"name,omitempty" jsonschema:"optional job name; a random id is assigned if empty"`
	Callback bool   `json:"callback,omitempty" jsonschema:"flag the job for review in the conversation when it finishes"`
}

type JobLaunchOutput struct {
	ID  string `json:"id"`
	PID int    `json:"pid"`
}

func (s *Server) handleJobLaunch(ctx context.Context, req *mcp.CallToolRequest, input JobLaunchInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(input.Command) == "" {
		return nil, JobLaunchOutput{}, fmt.Errorf("command is required")
	}

	rec, err := s.jobs.Launch(input.Command, input.Name, input.Callback)
	if err != nil {
		return nil, JobLaunchOutput{}, fmt.Errorf("failed to launch job: %w", err)
	}
	return textResult(fmt.Sprintf("started job %s (pid %d)", rec.ID, rec.PID)),
		JobLaunchOutput{ID: rec.ID, PID: rec.PID}, nil
}

type JobListInput struct {
	IncludeFinished bool `json:"include_finished,omitempty" jsonschema:"include finished jobs, not just running ones"`
}

type JobListOutput struct {
	Jobs []job.Record `json:"jobs"`
}

func (s *Server) handleJobList(ctx context.Context, req *mcp.CallToolRequest, input JobListInput) (*mcp.CallToolResult, any, error) {
	jobs := s.jobs.List(input.IncludeFinished)

	var b strings.Builder
	for _, rec := range jobs {
		fmt.Fprintf(&b, "[%s] %s  %s", rec.ID, rec.Status, rec.Command)
		if rec.ExitCode != nil {
			fmt.Fprintf(&b, " (exit %d)", *rec.ExitCode)
		}
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		b.WriteString("no jobs")
	}
	return textResult(b.String()), JobListOutput{Jobs: jobs}, nil
}

type JobOutputInput struct {
	ID   string `json:"id" jsonschema:"job id"`
	Tail int    `json:"tail,omitempty" jsonschema:"last N lines only; 0 returns the whole log"`
}

type JobOutputOutput struct {
	Output string `json:"output"`
}

func (s *Server) handleJobOutput(ctx context.Context, req *mcp.CallToolRequest, input JobOutputInput) (*mcp.CallToolResult, any, error) {
	output, ok := s.jobs.Output(input.ID, input.Tail)
	if !ok {
		return nil, JobOutputOutput{}, fmt.Errorf("unknown job: %s", input.ID)
	}
	return textResult(output), JobOutputOutput{Output: output}, nil
}

type JobKillInput struct {
	ID string `json:"id" jsonschema:"job id to terminate"`
}

type JobKillOutput struct {
	Killed bool `json:"killed"`
}

func (s *Server) handleJobKill(ctx context.Context, req *mcp.CallToolRequest, input JobKillInput) (*mcp.CallToolResult, any, error) {
	killed := s.jobs.Kill(input.ID)
	msg := "job was not running"
	if killed {
		msg = "job killed"
	}
	return textResult(msg), JobKillOutput{Killed: killed}, nil
}

type ScheduleListInput struct{}

type ScheduleListOutput struct {
	Schedules []*schedule.Schedule `json:"schedules"`
}

func (s *Server) handleScheduleList(ctx context.Context, req *mcp.CallToolRequest, input ScheduleListInput) (*mcp.CallToolResult, any, error) {
	schedules, err := s.schedules.List()
	if err != nil {
		return nil, ScheduleListOutput{}, fmt.Errorf("failed to list schedules: %w", err)
	}

	var b strings.Builder
	for _, sched := range schedules {
		state := "off"
		if sched.Enabled {
			state = "on"
		}
		fmt.Fprintf(&b, "[%s] %s  %s  %s\n", sched.ID, state, sched.CronExpr, sched.Name)
	}
	if b.Len() == 0 {
		b.WriteString("no schedules")
	}
	return textResult(b.String()), ScheduleListOutput{Schedules: schedules}, nil
}

type ScheduleAddInput struct {
	Name   string `json:"name" jsonschema:"short schedule name"`
	Cron   string `json:"cron" jsonschema:"standard 5-field cron expression, e.g. 0 9 * * *"`
	Prompt string `json:"prompt" jsonschema:"prompt delivered to the conversation when due"`
}

type ScheduleAddOutput struct {
	ID string `json:"id"`
}

func (s *Server) handleScheduleAdd(ctx context.Context, req *mcp.CallToolRequest, input ScheduleAddInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(input.Prompt) == "" {
		return nil, ScheduleAddOutput{}, fmt.Errorf("prompt is required")
	}

	sched := &schedule.Schedule{
		Name:     input.Name,
		CronExpr: input.Cron,
		Prompt:   input.Prompt,
		Enabled:  true,
	}
	if err := s.schedules.Create(sched); err != nil {
		return nil, ScheduleAddOutput{}, fmt.Errorf("failed to create schedule: %w", err)
	}
	return textResult("created schedule " + sched.ID), ScheduleAddOutput{ID: sched.ID}, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
