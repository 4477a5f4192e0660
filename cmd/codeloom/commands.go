package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ruapotato/codeloom/internal/schedule"
	"github.com/ruapotato/codeloom/internal/ui"
)

// handleCommand dispatches one slash command.
func (a *app) handleCommand(line string) {
	parts := strings.SplitN(strings.TrimPrefix(line, "/"), " ", 2)
	cmd := strings.ToLower(parts[0])
	args := ""
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "quit", "exit", "q":
		a.running = false

	case "help":
		a.ui.Help()

	case "clear":
		a.ui.ClearScreen()

	case "new":
		s := a.sessions.New(args)
		a.ui.Success("New session: " + s.Name)

	case "list":
		a.ui.SessionList(a.sessions.List(20))

	case "load":
		a.cmdLoad(args)

	case "save":
		if err := a.sessions.Save(); err != nil {
			a.ui.Error("Failed to save session")
		} else {
			a.ui.Success("Session saved")
		}

	case "rename":
		if args == "" {
			a.ui.Error("Usage: /rename <new name>")
			return
		}
		if err := a.sessions.Rename(args); err != nil {
			a.ui.Error("Failed to rename session")
		} else {
			a.ui.Success("Renamed to: " + args)
		}

	case "delete":
		if args == "" {
			a.ui.Error("Usage: /delete <session_id>")
			return
		}
		if a.sessions.Delete(args) {
			a.ui.Success("Deleted session: " + args)
		} else {
			a.ui.Error("Session not found: " + args)
		}

	case "history":
		if s := a.sessions.Current(); s != nil {
			a.ui.History(s.Messages, 20)
		} else {
			a.ui.Info("No messages in this session")
		}

	case "profile":
		a.cmdProfile(args)

	case "profiles":
		a.ui.ProfileList(a.profiles.List(), a.profiles.Current().Name)

	case "prompt":
		if args == "" {
			if p := a.profiles.Current().SystemPrompt; p != "" {
				a.ui.Info("System prompt:\n" + p)
			} else {
				a.ui.Info("No system prompt set")
			}
			return
		}
		if err := a.profiles.SetSystemPrompt(args); err != nil {
			a.ui.Error(err.Error())
		} else {
			a.ui.Success("System prompt updated")
		}

	case "note":
		a.cmdNote(args)

	case "notes":
		a.ui.Notes(a.profiles.Notes())

	case "clearnotes":
		if err := a.profiles.ClearNotes(); err != nil {
			a.ui.Error(err.Error())
		} else {
			a.ui.Success("All notes cleared")
		}

	case "run":
		if args == "" {
			a.ui.Error("Usage: /run <command>")
			return
		}
		rec, err := a.jobs.Launch(args, "", false)
		if err != nil {
			a.ui.Error(fmt.Sprintf("Failed to start: %v", err))
			return
		}
		a.ui.Success(fmt.Sprintf("Started [%s]: %s", rec.ID, clip(args, 50)))

	case "ps":
		a.ui.JobList(a.jobs.List(args != "-r"))

	case "output", "out":
		a.cmdOutput(args)

	case "kill":
		if args == "" {
			a.ui.Error("Usage: /kill <process_id>")
			return
		}
		if a.jobs.Kill(args) {
			a.ui.Success("Killed process: " + args)
		} else {
			a.ui.Error("Could not kill process: " + args)
		}

	case "pclean":
		count := a.jobs.Cleanup(true)
		a.ui.Success(fmt.Sprintf("Cleaned up %d finished processes", count))

	case "sched":
		a.cmdSched(args)

	default:
		a.ui.Error("Unknown command: /" + cmd)
		a.ui.Info("Type /help for available commands")
	}
}

// cmdLoad loads a session by id, or by number from the last listing.
func (a *app) cmdLoad(args string) {
	if args == "" {
		a.ui.Error("Usage: /load <session_id or number>")
		return
	}

	if idx, err := strconv.Atoi(args); err == nil {
		list := a.sessions.List(20)
		if idx < 1 || idx > len(list) {
			a.ui.Error(fmt.Sprintf("Invalid session number: %d", idx))
			return
		}
		args = list[idx-1].ID
	}

	s, err := a.sessions.Load(args)
	if err != nil {
		a.ui.Error("Session not found: " + args)
		return
	}
	a.ui.Success("Loaded: " + s.Name)

	if preview := a.sessions.Preview(args, 3); len(preview) > 0 {
		fmt.Println()
		for _, line := range preview {
			a.ui.Info("  " + line)
		}
		fmt.Println()
	}
}

// cmdProfile shows, switches to, or creates a profile.
func (a *app) cmdProfile(args string) {
	if args == "" {
		a.ui.Profile(a.profiles.Current())
		return
	}

	if p, err := a.profiles.Load(args); err == nil {
		a.ui.Success("Switched to profile: " + p.Name)
		return
	}
	p, err := a.profiles.New(args, "")
	if err != nil {
		a.ui.Error(err.Error())
		return
	}
	a.ui.Success("Created new profile: " + p.Name)
}

func (a *app) cmdNote(args string) {
	if args == "" {
		a.ui.Error("Usage: /note <text> to add, /notes to list, /note del <n> to remove")
		return
	}

	if rest, ok := strings.CutPrefix(args, "del "); ok {
		idx, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			a.ui.Error("Usage: /note del <number>")
			return
		}
		if err := a.profiles.RemoveNote(idx); err != nil {
			a.ui.Error(fmt.Sprintf("Invalid note number: %d", idx))
			return
		}
		a.ui.Success(fmt.Sprintf("Removed note %d", idx))
		return
	}

	if err := a.profiles.AddNote(args); err != nil {
		a.ui.Error(err.Error())
		return
	}
	a.ui.Success("Note added")
}

func (a *app) cmdOutput(args string) {
	if args == "" {
		a.ui.Error("Usage: /output <process_id> [lines]")
		return
	}

	fields := strings.Fields(args)
	id := fields[0]
	tail := a.cfg.Jobs.DefaultTail
	if len(fields) > 1 {
		if n, err := strconv.Atoi(fields[1]); err == nil {
			tail = n
		}
	}

	output, ok := a.jobs.Output(id, tail)
	if !ok {
		a.ui.Error("Process not found: " + id)
		return
	}
	fmt.Print(output)
	fmt.Println()
}

// cmdSched manages scheduled prompts:
//
//	/sched                          list
//	/sched add "<cron>" <prompt>    create (name defaults to the prompt)
//	/sched on|off <id>              enable/disable
//	/sched rm <id>                  delete
func (a *app) cmdSched(args string) {
	if args == "" {
		a.listSchedules()
		return
	}

	verb, rest, _ := strings.Cut(args, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "add":
		a.addSchedule(rest)
	case "on", "off":
		if rest == "" {
			a.ui.Error("Usage: /sched " + verb + " <id>")
			return
		}
		if err := a.schedules.SetEnabled(rest, verb == "on"); err != nil {
			a.ui.Error(err.Error())
			return
		}
		a.ui.Success("Schedule " + rest + " " + verb)
	case "rm":
		if rest == "" {
			a.ui.Error("Usage: /sched rm <id>")
			return
		}
		if err := a.schedules.Delete(rest); err != nil {
			if errors.Is(err, schedule.ErrScheduleNotFound) {
				a.ui.Error("Schedule not found: " + rest)
			} else {
				a.ui.Error(err.Error())
			}
			return
		}
		a.ui.Success("Deleted schedule " + rest)
	default:
		a.ui.Error("Usage: /sched [add|on|off|rm]")
	}
}

func (a *app) listSchedules() {
	list, err := a.schedules.List()
	if err != nil {
		a.ui.Error(err.Error())
		return
	}
	rows := make([]ui.ScheduleRow, 0, len(list))
	for _, s := range list {
		rows = append(rows, ui.ScheduleRow{
			ID:        s.ID,
			Name:      s.Name,
			CronExpr:  s.CronExpr,
			Prompt:    s.Prompt,
			Enabled:   s.Enabled,
			NextRunAt: s.NextRunAt,
		})
	}
	a.ui.ScheduleList(rows)
}

// addSchedule parses `"<cron>" <prompt>`: the cron expression must be
// quoted since it contains spaces.
func (a *app) addSchedule(args string) {
	if !strings.HasPrefix(args, "\"") {
		a.ui.Error("Usage: /sched add \"<cron>\" <prompt>")
		return
	}
	end := strings.Index(args[1:], "\"")
	if end < 0 {
		a.ui.Error("Usage: /sched add \"<cron>\" <prompt>")
		return
	}
	cronExpr := args[1 : end+1]
	prompt := strings.TrimSpace(args[end+2:])
	if prompt == "" {
		a.ui.Error("Usage: /sched add \"<cron>\" <prompt>")
		return
	}

	sched := &schedule.Schedule{
		Name:     clip(prompt, 30),
		CronExpr: cronExpr,
		Prompt:   prompt,
		Enabled:  true,
	}
	if err := a.schedules.Create(sched); err != nil {
		if errors.Is(err, schedule.ErrInvalidCron) {
			a.ui.Error("Invalid cron expression: " + cronExpr)
		} else {
			a.ui.Error(err.Error())
		}
		return
	}
	a.ui.Success(fmt.Sprintf("Created schedule %s (%s)", sched.ID, cronExpr))
}
