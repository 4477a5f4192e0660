// Package session persists conversation sessions with their full
// history, one JSON file per session.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ruapotato/codeloom/internal/engine"
	"github.com/ruapotato/codeloom/internal/logger"
)

// Message is one conversation turn, user or assistant.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a named conversation with its complete history, engine
// output included.
type Session struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	WorkingDirectory string    `json:"working_directory"`
	Messages         []Message `json:"messages"`
}

// Summary is the listing view of a stored session.
type Summary struct {
	ID           string
	Name         string
	UpdatedAt    time.Time
	MessageCount int
}

// Manager owns the sessions directory and the current session.
type Manager struct {
	dir     string
	current *Session
}

// NewManager creates the sessions directory if needed.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// Current returns the active session, or nil before the first message.
func (m *Manager) Current() *Session {
	return m.current
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.dir, id+".json")
}

// New starts a fresh session. An empty name defaults to the start
// timestamp.
func (m *Manager) New(name string) *Session {
	now := time.Now()
	if name == "" {
		name = now.Format("2006-01-02 15:04")
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	m.current = &Session{
		ID:               now.Format("20060102_150405"),
		Name:             name,
		CreatedAt:        now,
		UpdatedAt:        now,
		WorkingDirectory: cwd,
		Messages:         []Message{},
	}
	if err := m.Save(); err != nil {
		logger.Error("failed to persist new session %s: %v", m.current.ID, err)
	}
	return m.current
}

// Load switches the current session to a stored one.
func (m *Manager) Load(id string) (*Session, error) {
	data, err := os.ReadFile(m.path(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", id, err)
	}
	m.current = &s
	return m.current, nil
}

// Save writes the current session to disk via a temp file rename.
func (m *Manager) Save() error {
	if m.current == nil {
		return fmt.Errorf("no active session")
	}
	m.current.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(m.current, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	path := m.path(m.current.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// AddMessage appends a turn to the current session and saves it,
// starting a session implicitly if none is active.
func (m *Manager) AddMessage(role, content string) {
	if m.current == nil {
		m.New("")
	}
	m.current.Messages = append(m.current.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if err := m.Save(); err != nil {
		logger.Error("failed to save session %s: %v", m.current.ID, err)
	}
}

// History returns the current session's turns in the shape the engine
// prompt builder consumes.
func (m *Manager) History() []engine.HistoryEntry {
	if m.current == nil {
		return nil
	}
	entries := make([]engine.HistoryEntry, 0, len(m.current.Messages))
	for _, msg := range m.current.Messages {
		entries = append(entries, engine.HistoryEntry{Role: msg.Role, Content: msg.Content})
	}
	return entries
}

// List returns up to limit stored sessions, newest first. Unreadable
// files are skipped.
func (m *Manager) List(limit int) []Summary {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	// Ids are timestamps, so reverse lexical order is newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	var out []Summary
	for _, name := range names {
		if limit > 0 && len(out) >= limit {
			break
		}
		data, err := os.ReadFile(filepath.Join(m.dir, name))
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		out = append(out, Summary{
			ID:           s.ID,
			Name:         s.Name,
			UpdatedAt:    s.UpdatedAt,
			MessageCount: len(s.Messages),
		})
	}
	return out
}

// Delete removes a stored session; deleting the current one clears it.
func (m *Manager) Delete(id string) bool {
	if err := os.Remove(m.path(id)); err != nil {
		return false
	}
	if m.current != nil && m.current.ID == id {
		m.current = nil
	}
	return true
}

// Rename changes the current session's name.
func (m *Manager) Rename(name string) error {
	if m.current == nil {
		return fmt.Errorf("no active session")
	}
	m.current.Name = name
	return m.Save()
}

// Preview returns up to n formatted recent turns of a stored session,
// "> " for user and "< " for assistant, contents clipped to 60 runes.
func (m *Manager) Preview(id string, n int) []string {
	data, err := os.ReadFile(m.path(id))
	if err != nil {
		return nil
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}

	msgs := s.Messages
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}

	var lines []string
	for _, msg := range msgs {
		content := msg.Content
		if len(content) > 60 {
			content = content[:60] + "..."
		}
		prefix := "<"
		if msg.Role == "user" {
			prefix = ">"
		}
		lines = append(lines, prefix+" "+content)
	}
	return lines
}
