// Package protocol decodes the engine's line-delimited stream-json
// output into display events ready for rendering.
package protocol

// Event is one normalized unit of engine output. Exactly one of the
// boolean markers is meaningful for terminal events; plain text events
// carry none.
type Event struct {
	Text     string
	ToolCall bool
	Err      bool
	Done     bool
}

// TextEvent returns a plain text event.
func TextEvent(text string) Event {
	return Event{Text: text}
}

// ToolEvent returns a tool-call marker event.
func ToolEvent(text string) Event {
	return Event{Text: text, ToolCall: true}
}

// ErrorEvent returns a terminal error event.
func ErrorEvent(text string) Event {
	return Event{Text: text, Err: true}
}

// DoneEvent returns the normal-completion terminal event.
func DoneEvent() Event {
	return Event{Done: true}
}
