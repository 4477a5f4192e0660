// Package profile stores system prompts and persistent notes, one
// JSON file per named profile.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const defaultSystemPrompt = "You are a helpful coding assistant. Be concise and direct."

// Profile carries the per-persona context injected into every engine
// turn.
type Profile struct {
	Name         string    `json:"name"`
	SystemPrompt string    `json:"system_prompt"`
	Notes        []string  `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summary is the listing view of a stored profile.
type Summary struct {
	Name          string
	PromptPreview string
	NoteCount     int
	UpdatedAt     time.Time
}

// Manager owns the profiles directory and the active profile. A
// "default" profile always exists and is loaded at construction.
type Manager struct {
	dir     string
	current *Profile
}

// NewManager creates the profiles directory, seeds the default
// profile when missing and activates it.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profiles directory: %w", err)
	}

	m := &Manager{dir: dir}
	if _, err := os.Stat(m.path("default")); os.IsNotExist(err) {
		seed := &Profile{Name: "default", SystemPrompt: defaultSystemPrompt, Notes: []string{}}
		if err := m.write(seed); err != nil {
			return nil, err
		}
	}
	if _, err := m.Load("default"); err != nil {
		return nil, err
	}
	return m, nil
}

// Current returns the active profile.
func (m *Manager) Current() *Profile {
	return m.current
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.dir, sanitizeName(name)+".json")
}

// Load activates a stored profile by name.
func (m *Manager) Load(name string) (*Profile, error) {
	data, err := os.ReadFile(m.path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", name, err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", name, err)
	}
	m.current = &p
	return m.current, nil
}

// New creates and activates a profile, optionally copying the prompt
// and notes of an existing one.
func (m *Manager) New(name, copyFrom string) (*Profile, error) {
	p := &Profile{Name: name, Notes: []string{}}
	if copyFrom != "" {
		src, err := m.readProfile(copyFrom)
		if err != nil {
			return nil, fmt.Errorf("cannot copy from %s: %w", copyFrom, err)
		}
		p.SystemPrompt = src.SystemPrompt
		p.Notes = append([]string{}, src.Notes...)
	}
	if err := m.write(p); err != nil {
		return nil, err
	}
	m.current = p
	return p, nil
}

// Delete removes a profile. The default profile cannot be deleted.
func (m *Manager) Delete(name string) bool {
	if name == "default" {
		return false
	}
	return os.Remove(m.path(name)) == nil
}

// List returns stored profiles sorted by name.
func (m *Manager) List() []Summary {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil
	}

	var out []Summary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.dir, e.Name()))
		if err != nil {
			continue
		}
		var p Profile
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		preview := p.SystemPrompt
		if len(preview) > 50 {
			preview = preview[:50]
		}
		out = append(out, Summary{
			Name:          p.Name,
			PromptPreview: preview,
			NoteCount:     len(p.Notes),
			UpdatedAt:     p.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetSystemPrompt replaces the active profile's system prompt.
func (m *Manager) SetSystemPrompt(prompt string) error {
	m.current.SystemPrompt = prompt
	return m.write(m.current)
}

// AddNote appends a persistent note to the active profile.
func (m *Manager) AddNote(note string) error {
	m.current.Notes = append(m.current.Notes, note)
	return m.write(m.current)
}

// RemoveNote deletes a note by 1-based index.
func (m *Manager) RemoveNote(index int) error {
	idx := index - 1
	if idx < 0 || idx >= len(m.current.Notes) {
		return fmt.Errorf("no note %d", index)
	}
	m.current.Notes = append(m.current.Notes[:idx], m.current.Notes[idx+1:]...)
	return m.write(m.current)
}

// Notes returns the active profile's notes.
func (m *Manager) Notes() []string {
	return m.current.Notes
}

// ClearNotes removes all notes from the active profile.
func (m *Manager) ClearNotes() error {
	m.current.Notes = []string{}
	return m.write(m.current)
}

// Context folds the system prompt and notes into the ambient context
// string for engine turns.
func (m *Manager) Context() string {
	var parts []string
	if m.current.SystemPrompt != "" {
		parts = append(parts, m.current.SystemPrompt)
	}
	if len(m.current.Notes) > 0 {
		lines := make([]string, 0, len(m.current.Notes))
		for _, note := range m.current.Notes {
			lines = append(lines, "- "+note)
		}
		parts = append(parts, "Persistent notes:\n"+strings.Join(lines, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

func (m *Manager) readProfile(name string) (*Profile, error) {
	data, err := os.ReadFile(m.path(name))
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *Manager) write(p *Profile) error {
	now := time.Now()
	p.UpdatedAt = now
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	path := m.path(p.Name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write profile file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace profile file: %w", err)
	}
	return nil
}

// sanitizeName keeps lowercase alphanumerics, dashes and underscores
// so profile names map cleanly to filenames.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}
