// Package ui renders codeloom's terminal output. Styling is kept
// minimal so it works over SSH and on narrow phone terminals.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ruapotato/codeloom/internal/job"
	"github.com/ruapotato/codeloom/internal/profile"
	"github.com/ruapotato/codeloom/internal/session"
)

const version = "0.1"

type styles struct {
	title   lipgloss.Style
	dim     lipgloss.Style
	accent  lipgloss.Style
	good    lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	badBold lipgloss.Style
	bold    lipgloss.Style
	marker  lipgloss.Style
	respond lipgloss.Style
}

func newStyles(noColor bool) styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return styles{
			title: plain, dim: plain, accent: plain, good: plain,
			warn: plain, bad: plain, badBold: plain, bold: plain, marker: plain, respond: plain,
		}
	}
	return styles{
		title:   lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		dim:     lipgloss.NewStyle().Faint(true),
		accent:  lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		good:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		bad:     lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		badBold: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		bold:    lipgloss.NewStyle().Bold(true),
		marker:  lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		respond: lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true),
	}
}

// UI renders to a single writer, stdout by default.
type UI struct {
	out       io.Writer
	s         styles
	streaming bool
}

// New returns a UI. noColor disables all styling, for pipes and dumb
// terminals.
func New(noColor bool) *UI {
	return &UI{out: os.Stdout, s: newStyles(noColor)}
}

// NewWriter returns a UI rendering to w.
func NewWriter(w io.Writer, noColor bool) *UI {
	return &UI{out: w, s: newStyles(noColor)}
}

// ClearScreen clears the terminal.
func (u *UI) ClearScreen() {
	fmt.Fprint(u.out, "\033[2J\033[H")
}

// Banner prints the startup header.
func (u *UI) Banner() {
	fmt.Fprintf(u.out, "\n%s %s\n", u.s.title.Render("codeloom"), u.s.dim.Render("v"+version))
	fmt.Fprintln(u.out, u.s.dim.Render("Type /help for commands, Ctrl+C to interrupt"))
	fmt.Fprintln(u.out)
}

// Prompt formats the input prompt as path:profile >.
func (u *UI) Prompt(path, profileName string) string {
	var prefix string
	switch {
	case path != "" && profileName != "":
		prefix = u.s.dim.Render(path) + ":" + u.s.accent.Render(profileName) + " "
	case path != "":
		prefix = u.s.dim.Render(path) + " "
	}
	return prefix + u.s.marker.Render(">") + " "
}

// StreamStart opens a response block.
func (u *UI) StreamStart() {
	fmt.Fprint(u.out, u.s.respond.Render("<")+" ")
	u.streaming = true
}

// StreamChunk prints one decoded event's text. Tool calls render
// highlighted on their own line.
func (u *UI) StreamChunk(text string, isToolCall bool) {
	if isToolCall {
		if u.streaming {
			fmt.Fprintln(u.out)
		}
		fmt.Fprintln(u.out, u.s.warn.Render(text))
		return
	}
	fmt.Fprint(u.out, text)
}

// StreamEnd closes a response block.
func (u *UI) StreamEnd() {
	if u.streaming {
		fmt.Fprintln(u.out)
	}
	fmt.Fprintln(u.out)
	u.streaming = false
}

// Error prints an error message.
func (u *UI) Error(msg string) {
	fmt.Fprintf(u.out, "%s %s\n\n", u.s.badBold.Render("Error:"), u.s.bad.Render(msg))
}

// Info prints a dim informational line.
func (u *UI) Info(msg string) {
	fmt.Fprintln(u.out, u.s.dim.Render(msg))
}

// Success prints a confirmation line.
func (u *UI) Success(msg string) {
	fmt.Fprintln(u.out, u.s.good.Render(msg))
}

// Warning prints a warning line.
func (u *UI) Warning(msg string) {
	fmt.Fprintln(u.out, u.s.warn.Render(msg))
}

// SessionList prints stored sessions with load hints.
func (u *UI) SessionList(sessions []session.Summary) {
	if len(sessions) == 0 {
		u.Info("No saved sessions")
		return
	}

	fmt.Fprintln(u.out, u.s.bold.Render("Recent Sessions:"))
	fmt.Fprintln(u.out)
	for i, s := range sessions {
		fmt.Fprintf(u.out, "  %s %s\n", u.s.accent.Render(fmt.Sprintf("%2d.", i+1)), s.Name)
		detail := fmt.Sprintf("ID: %s | %d messages | %s", s.ID, s.MessageCount, s.UpdatedAt.Format("2006-01-02 15:04"))
		fmt.Fprintf(u.out, "      %s\n", u.s.dim.Render(detail))
	}
	fmt.Fprintln(u.out)
	u.Info("Use /load <number> or /load <id> to load a session")
	fmt.Fprintln(u.out)
}

// SessionPreview prints a session header and its recent turns.
func (u *UI) SessionPreview(id, name string, lines []string) {
	fmt.Fprintf(u.out, "%s %s (%s)\n\n", u.s.bold.Render("Session:"), name, id)
	if len(lines) == 0 {
		fmt.Fprintf(u.out, "  %s\n", u.s.dim.Render("(empty session)"))
	}
	for _, line := range lines {
		fmt.Fprintf(u.out, "  %s\n", u.s.dim.Render(line))
	}
	fmt.Fprintln(u.out)
}

// History prints up to limit recent turns of the current session.
func (u *UI) History(messages []session.Message, limit int) {
	if len(messages) == 0 {
		u.Info("No messages in this session")
		return
	}
	if limit > 0 && len(messages) > limit {
		fmt.Fprintln(u.out, u.s.dim.Render(fmt.Sprintf("(showing last %d of %d messages)", limit, len(messages))))
		messages = messages[len(messages)-limit:]
	}

	for _, msg := range messages {
		stamp := u.s.dim.Render(msg.Timestamp.Format("15:04"))
		if msg.Role == "user" {
			fmt.Fprintf(u.out, "%s %s %s\n", stamp, u.s.marker.Render(">"), msg.Content)
		} else {
			content := msg.Content
			if len(content) > 200 {
				content = content[:200] + "..."
			}
			fmt.Fprintf(u.out, "%s %s %s\n", stamp, u.s.respond.Render("<"), content)
		}
	}
	fmt.Fprintln(u.out)
}

// Profile prints the active profile's prompt and notes.
func (u *UI) Profile(p *profile.Profile) {
	fmt.Fprintf(u.out, "%s %s\n\n", u.s.bold.Render("Profile:"), u.s.accent.Render(p.Name))
	if p.SystemPrompt != "" {
		fmt.Fprintln(u.out, u.s.bold.Render("System Prompt:"))
		fmt.Fprintf(u.out, "  %s\n", u.s.dim.Render(p.SystemPrompt))
	} else {
		u.Info("No system prompt set")
	}
	fmt.Fprintln(u.out)
	u.Notes(p.Notes)
}

// ProfileList prints all profiles, marking the active one.
func (u *UI) ProfileList(profiles []profile.Summary, current string) {
	if len(profiles) == 0 {
		u.Info("No profiles")
		return
	}

	fmt.Fprintln(u.out, u.s.bold.Render("Profiles:"))
	fmt.Fprintln(u.out)
	for _, p := range profiles {
		marker := "  "
		if p.Name == current {
			marker = u.s.good.Render("*") + " "
		}
		fmt.Fprintf(u.out, "%s%s\n", marker, u.s.accent.Render(p.Name))
		if p.PromptPreview != "" {
			fmt.Fprintf(u.out, "    %s\n", u.s.dim.Render(p.PromptPreview+"..."))
		}
		if p.NoteCount > 0 {
			fmt.Fprintf(u.out, "    %s\n", u.s.dim.Render(fmt.Sprintf("%d notes", p.NoteCount)))
		}
	}
	fmt.Fprintln(u.out)
	u.Info("Use /profile <name> to switch")
	fmt.Fprintln(u.out)
}

// Notes prints the active profile's notes.
func (u *UI) Notes(notes []string) {
	if len(notes) == 0 {
		u.Info("No notes in current profile")
		u.Info("Use /note <text> to add a note")
		return
	}

	fmt.Fprintln(u.out, u.s.bold.Render("Notes:"))
	fmt.Fprintln(u.out)
	for i, note := range notes {
		fmt.Fprintf(u.out, "  %s %s\n", u.s.accent.Render(fmt.Sprintf("%d.", i+1)), note)
	}
	fmt.Fprintln(u.out)
	u.Info("Use /note del <n> to remove")
	fmt.Fprintln(u.out)
}

// JobList prints tracked background jobs.
func (u *UI) JobList(jobs []job.Record) {
	if len(jobs) == 0 {
		u.Info("No background processes")
		return
	}

	fmt.Fprintln(u.out, u.s.bold.Render("Background Processes:"))
	fmt.Fprintln(u.out)
	for _, rec := range jobs {
		var status string
		switch rec.Status {
		case job.StatusRunning:
			status = u.s.good.Render("running")
		case job.StatusKilled:
			status = u.s.warn.Render("killed")
		case job.StatusFailed:
			status = u.s.bad.Render("failed")
		default:
			status = u.s.dim.Render(string(rec.Status))
		}

		cmd := rec.Command
		if len(cmd) > 60 {
			cmd = cmd[:60] + "..."
		}
		fmt.Fprintf(u.out, "  %s %s  %s\n", u.s.accent.Render("["+rec.ID+"]"), status, cmd)

		detail := "started " + rec.StartedAt.Format("15:04:05")
		if rec.ExitCode != nil {
			detail += fmt.Sprintf(", exit code %d", *rec.ExitCode)
		}
		if rec.Callback {
			detail += ", callback"
		}
		fmt.Fprintf(u.out, "      %s\n", u.s.dim.Render(detail))
	}
	fmt.Fprintln(u.out)
}

// ScheduleList prints stored schedules.
func (u *UI) ScheduleList(rows []ScheduleRow) {
	if len(rows) == 0 {
		u.Info("No schedules")
		u.Info("Use /sched add \"<cron>\" <prompt> to create one")
		return
	}

	fmt.Fprintln(u.out, u.s.bold.Render("Schedules:"))
	fmt.Fprintln(u.out)
	for _, row := range rows {
		state := u.s.good.Render("on")
		if !row.Enabled {
			state = u.s.dim.Render("off")
		}
		fmt.Fprintf(u.out, "  %s %s  %s  %s\n",
			u.s.accent.Render("["+row.ID+"]"), state, row.CronExpr, row.Name)
		detail := row.Prompt
		if len(detail) > 60 {
			detail = detail[:60] + "..."
		}
		if row.NextRunAt != nil {
			detail += "  (next " + row.NextRunAt.Format("2006-01-02 15:04") + ")"
		}
		fmt.Fprintf(u.out, "      %s\n", u.s.dim.Render(detail))
	}
	fmt.Fprintln(u.out)
}

// ScheduleRow is the listing view of one schedule.
type ScheduleRow struct {
	ID        string
	Name      string
	CronExpr  string
	Prompt    string
	Enabled   bool
	NextRunAt *time.Time
}

// Help prints the command reference.
func (u *UI) Help() {
	section := func(title string, rows [][2]string) {
		fmt.Fprintln(u.out, u.s.bold.Render(title))
		for _, row := range rows {
			fmt.Fprintf(u.out, "  %-18s %s\n", u.s.accent.Render(row[0]), row[1])
		}
		fmt.Fprintln(u.out)
	}

	fmt.Fprintln(u.out)
	section("Session Commands:", [][2]string{
		{"/new [name]", "Start a new session"},
		{"/list", "List saved sessions"},
		{"/load <id>", "Load a session by ID or number"},
		{"/save", "Force save current session"},
		{"/rename <name>", "Rename current session"},
		{"/delete <id>", "Delete a session"},
		{"/history", "Show current session history"},
	})
	section("Profile Commands:", [][2]string{
		{"/profile [name]", "Show current or switch to profile"},
		{"/profiles", "List all profiles"},
		{"/prompt [text]", "Show or set system prompt"},
		{"/note <text>", "Add a persistent note"},
		{"/notes", "List all notes"},
		{"/note del <n>", "Delete note by number"},
		{"/clearnotes", "Clear all notes"},
	})
	section("Background Processes:", [][2]string{
		{"/run <command>", "Run a command in the background"},
		{"/ps", "List background processes"},
		{"/output <id>", "Show output of a process"},
		{"/kill <id>", "Kill a running process"},
		{"/pclean", "Remove finished processes"},
	})
	section("Schedules:", [][2]string{
		{"/sched", "List schedules"},
		{"/sched add", "Add a scheduled prompt"},
		{"/sched on|off <id>", "Enable or disable a schedule"},
		{"/sched rm <id>", "Delete a schedule"},
	})
	section("Other:", [][2]string{
		{"/clear", "Clear the screen"},
		{"/help", "Show this help"},
		{"/quit", "Exit codeloom"},
	})

	u.Info("Tips:")
	u.Info("  - Press Ctrl+C to interrupt AI response")
	u.Info("  - Start a message with [BACKGROUND] or [BG] to run it as a job")
	u.Info("  - Sessions auto-save after each message")
	fmt.Fprintln(u.out)
}

// ShortPath compresses the working directory for the prompt, home
// becomes ~ and only the last two segments are kept.
func ShortPath(path string) string {
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(path, home) {
		path = "~" + strings.TrimPrefix(path, home)
	}
	parts := strings.Split(path, string(os.PathSeparator))
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	return strings.Join(parts, string(os.PathSeparator))
}
