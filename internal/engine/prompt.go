package engine

import (
	"fmt"
	"strings"
)

// HistoryEntry is one prior conversation turn fed into prompt
// construction.
type HistoryEntry struct {
	Role    string
	Content string
}

// buildPrompt folds recent history and ambient context into a single
// prompt string. Only the last window entries are included, and
// assistant entries are truncated so long answers do not crowd out the
// current message.
func (e *Engine) buildPrompt(message string, history []HistoryEntry, context string) string {
	var parts []string
	if context != "" {
		parts = append(parts, context)
	}

	if len(history) > 0 {
		recent := history
		if len(recent) > e.historyWindow {
			recent = recent[len(recent)-e.historyWindow:]
		}

		var lines []string
		for _, entry := range recent {
			content := entry.Content
			switch entry.Role {
			case "assistant":
				if len(content) > e.assistantTruncate {
					content = content[:e.assistantTruncate] + "..."
				}
				lines = append(lines, "Assistant: "+content)
			default:
				lines = append(lines, "User: "+content)
			}
		}
		if len(lines) > 0 {
			parts = append(parts, "Previous conversation context:\n"+strings.Join(lines, "\n"))
		}
	}

	if len(parts) == 0 {
		return message
	}
	return fmt.Sprintf("%s\n\nCurrent message: %s", strings.Join(parts, "\n\n"), message)
}
