package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ruapotato/codeloom/internal/metrics"
)

const (
	// maxToolResult caps the rendered length of a tool result block.
	maxToolResult = 2000
	// maxDebugLine caps raw debug output for unknown record types.
	maxDebugLine = 200
)

// Decoder turns protocol units into display events. It keeps only the
// per-stream state needed to suppress a duplicate final result; one
// Decoder serves exactly one stream session.
type Decoder struct {
	// streamedText is set once assistant text has been emitted
	// incrementally, so the final result record is not shown twice.
	streamedText bool
}

// NewDecoder returns a decoder for a fresh stream session.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// DecodeLine decodes one protocol unit into zero or more events, in
// source order. Lines that do not parse as structured records are
// passed through verbatim.
func (d *Decoder) DecodeLine(line string) []Event {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		metrics.DecodeFallbacks.Inc()
		return []Event{TextEvent(line + "\n")}
	}

	recType, ok := raw["type"].(string)
	if !ok || recType == "" {
		metrics.DecodeFallbacks.Inc()
		return []Event{TextEvent(line + "\n")}
	}

	switch recType {
	case "system":
		return d.decodeSystem(raw)
	case "assistant":
		return d.decodeAssistant(raw)
	case "stream_event":
		return d.decodeStreamEvent(raw)
	case "tool", "tool_result":
		return d.decodeToolResult(raw)
	case "result":
		return d.decodeResult(raw)
	case "error":
		return []Event{ErrorEvent(errorText(raw))}
	case "user":
		// Tool results echoed back on the user channel.
		return d.decodeUserContent(raw)
	default:
		return []Event{TextEvent(debugLine(recType, line))}
	}
}

// decodeSystem handles status records. The init subtype renders as a
// tool-call line so session setup is visibly distinct from model text.
func (d *Decoder) decodeSystem(raw map[string]any) []Event {
	subtype := getString(raw, "subtype")
	if subtype == "init" {
		model := getString(raw, "model")
		if model == "" {
			return []Event{ToolEvent("session started")}
		}
		return []Event{ToolEvent("session started (" + model + ")")}
	}

	msg := getString(raw, "message")
	if msg == "" {
		return nil
	}
	return []Event{TextEvent(msg)}
}

// decodeAssistant walks the message content array, emitting text
// blocks as plain events and tool_use blocks as tool-call events.
func (d *Decoder) decodeAssistant(raw map[string]any) []Event {
	message, ok := raw["message"].(map[string]any)
	if !ok {
		if text := getString(raw, "text"); text != "" {
			d.streamedText = true
			return []Event{TextEvent(text)}
		}
		return nil
	}

	content, ok := message["content"].([]any)
	if !ok {
		return nil
	}

	var events []Event
	for _, block := range content {
		bm, ok := block.(map[string]any)
		if !ok {
			continue
		}
		switch getString(bm, "type") {
		case "text":
			if text := getString(bm, "text"); text != "" {
				d.streamedText = true
				events = append(events, TextEvent(text))
			}
		case "tool_use":
			events = append(events, ToolEvent(toolSummary(getString(bm, "name"), bm["input"])))
		}
	}
	return events
}

// decodeStreamEvent unwraps partial-message events. Only text deltas
// and tool-use block starts render; lifecycle markers are silent.
func (d *Decoder) decodeStreamEvent(raw map[string]any) []Event {
	event, ok := raw["event"].(map[string]any)
	if !ok {
		return nil
	}

	switch getString(event, "type") {
	case "content_block_delta":
		delta, ok := event["delta"].(map[string]any)
		if !ok {
			return nil
		}
		if getString(delta, "type") == "text_delta" {
			text := getString(delta, "text")
			if text == "" {
				return nil
			}
			d.streamedText = true
			return []Event{TextEvent(text)}
		}
		// input_json_delta and thinking_delta stay off screen.
		return nil
	case "content_block_start":
		block, ok := event["content_block"].(map[string]any)
		if !ok || getString(block, "type") != "tool_use" {
			return nil
		}
		return []Event{ToolEvent(toolSummary(getString(block, "name"), block["input"]))}
	default:
		// message_start, content_block_stop, message_delta, message_stop.
		return nil
	}
}

// decodeToolResult renders a completed tool execution, truncating
// oversized output.
func (d *Decoder) decodeToolResult(raw map[string]any) []Event {
	text := getString(raw, "output")
	if text == "" {
		text = getString(raw, "content")
	}
	if text == "" {
		if out, ok := raw["output"]; ok {
			if data, err := json.Marshal(out); err == nil {
				text = string(data)
			}
		}
	}
	if text == "" {
		return nil
	}
	return []Event{ToolEvent(truncateResult(text))}
}

// decodeUserContent handles tool_result blocks relayed on the user
// channel of the stream.
func (d *Decoder) decodeUserContent(raw map[string]any) []Event {
	message, ok := raw["message"].(map[string]any)
	if !ok {
		return nil
	}
	content, ok := message["content"].([]any)
	if !ok {
		return nil
	}

	var events []Event
	for _, block := range content {
		bm, ok := block.(map[string]any)
		if !ok || getString(bm, "type") != "tool_result" {
			continue
		}
		if text := blockText(bm["content"]); text != "" {
			events = append(events, ToolEvent(truncateResult(text)))
		}
	}
	return events
}

// decodeResult emits the final result record unless its content was
// already streamed incrementally. A failed turn surfaces as an error
// event even when text was streamed.
func (d *Decoder) decodeResult(raw map[string]any) []Event {
	isErr, _ := raw["is_error"].(bool)
	if isErr || strings.HasPrefix(getString(raw, "subtype"), "error") {
		text := getString(raw, "result")
		if text == "" {
			text = getString(raw, "error")
		}
		if text == "" {
			text = getString(raw, "subtype")
		}
		if text == "" {
			text = "engine turn failed"
		}
		return []Event{ErrorEvent(text)}
	}

	if d.streamedText {
		return nil
	}

	text := getString(raw, "result")
	if text == "" {
		text = getString(raw, "text")
	}
	if text == "" {
		return nil
	}
	return []Event{TextEvent(text + "\n")}
}

// toolSummary formats one tool invocation line from its per-tool
// template.
func toolSummary(name string, input any) string {
	args, _ := input.(map[string]any)

	switch name {
	case "Write":
		return "✎ write " + getString(args, "file_path")
	case "Edit", "MultiEdit":
		return "✎ edit " + getString(args, "file_path")
	case "Read":
		return "⏵ read " + getString(args, "file_path")
	case "Grep", "Glob", "Search", "WebSearch":
		target := getString(args, "pattern")
		if target == "" {
			target = getString(args, "query")
		}
		return "⌕ search " + target
	case "Bash":
		return "$ " + truncateLine(getString(args, "command"), 80)
	default:
		if name == "" {
			name = "tool"
		}
		return "⚙ running " + name
	}
}

func errorText(raw map[string]any) string {
	code := getString(raw, "code")
	msg := getString(raw, "message")
	if msg == "" {
		msg = getString(raw, "error")
	}
	if msg == "" {
		msg = "unknown engine error"
	}
	if code != "" {
		return code + ": " + msg
	}
	return msg
}

// blockText flattens a tool_result content value, which is either a
// plain string or an array of text blocks.
func blockText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var b strings.Builder
		for _, block := range v {
			if bm, ok := block.(map[string]any); ok {
				b.WriteString(getString(bm, "text"))
			}
		}
		return b.String()
	default:
		return ""
	}
}

func truncateResult(s string) string {
	if len(s) <= maxToolResult {
		return s
	}
	return s[:maxToolResult] + "... (truncated)"
}

func debugLine(recType, line string) string {
	return fmt.Sprintf("[%s] %s\n", recType, truncateLine(line, maxDebugLine))
}

func truncateLine(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func getString(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}
