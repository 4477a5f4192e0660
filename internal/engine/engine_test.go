package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ruapotato/codeloom/internal/protocol"
)

// fakeEngine writes an executable script standing in for the real
// engine binary. Scripts ignore their arguments and emit canned
// stream output.
func fakeEngine(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-engine")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func collect(t *testing.T, s *Stream, timeout time.Duration) []protocol.Event {
	t.Helper()
	var events []protocol.Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			ev, ok := s.Next()
			if !ok {
				return
			}
			events = append(events, ev)
		}
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("stream did not terminate")
	}
	return events
}

func checkSingleTerminal(t *testing.T, events []protocol.Event) {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("stream produced no events")
	}
	terminals := 0
	for _, ev := range events {
		if ev.Done {
			terminals++
		}
	}
	if terminals != 1 {
		t.Errorf("terminal event count = %d, want exactly 1", terminals)
	}
	if !events[len(events)-1].Done {
		t.Error("terminal event is not last")
	}
}

func TestSend_StreamsDecodedEvents(t *testing.T) {
	bin := fakeEngine(t, `
echo '{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"hi "}}}'
echo '{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"there"}}}'
echo '{"type":"result","result":"hi there"}'
`)
	e := New(Options{Command: bin})

	events := collect(t, e.Send("hello", nil, ""), 5*time.Second)
	checkSingleTerminal(t, events)

	var text strings.Builder
	for _, ev := range events {
		if !ev.Done && !ev.ToolCall && !ev.Err {
			text.WriteString(ev.Text)
		}
	}
	if text.String() != "hi there" {
		t.Errorf("streamed text = %q, want %q", text.String(), "hi there")
	}
}

func TestSend_SpawnFailure(t *testing.T) {
	e := New(Options{Command: filepath.Join(t.TempDir(), "missing-binary")})

	events := collect(t, e.Send("hello", nil, ""), 5*time.Second)
	if len(events) != 1 {
		t.Fatalf("got %d events, want exactly 1", len(events))
	}
	ev := events[0]
	if !ev.Err || !ev.Done {
		t.Errorf("spawn failure event = %+v, want error and terminal", ev)
	}
	if !strings.Contains(ev.Text, "could not be started") {
		t.Errorf("event text = %q", ev.Text)
	}
}

func TestSend_ErrorRecordIsTerminal(t *testing.T) {
	bin := fakeEngine(t, `
echo '{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"partial"}}}'
echo '{"type":"error","message":"boom"}'
echo '{"type":"result","result":"should never render"}'
`)
	e := New(Options{Command: bin})

	events := collect(t, e.Send("hello", nil, ""), 5*time.Second)
	checkSingleTerminal(t, events)

	last := events[len(events)-1]
	if !last.Err || !last.Done {
		t.Errorf("last event = %+v, want terminal error", last)
	}
	if !strings.Contains(last.Text, "boom") {
		t.Errorf("error text = %q, want the engine message", last.Text)
	}
	for _, ev := range events {
		if strings.Contains(ev.Text, "should never render") {
			t.Errorf("output after the error record leaked through: %+v", ev)
		}
	}
}

func TestSend_ResultErrorIsTerminal(t *testing.T) {
	bin := fakeEngine(t, `
echo '{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"partial"}}}'
echo '{"type":"result","subtype":"error_max_turns","is_error":true,"result":"ran out of turns"}'
`)
	e := New(Options{Command: bin})

	events := collect(t, e.Send("hello", nil, ""), 5*time.Second)
	checkSingleTerminal(t, events)

	last := events[len(events)-1]
	if !last.Err || !strings.Contains(last.Text, "ran out of turns") {
		t.Errorf("last event = %+v, want terminal error with result text", last)
	}
}

func TestSend_PlainTextFallback(t *testing.T) {
	bin := fakeEngine(t, `echo 'legacy output'`)
	e := New(Options{Command: bin})

	events := collect(t, e.Send("hello", nil, ""), 5*time.Second)
	checkSingleTerminal(t, events)
	if events[0].Text != "legacy output\n" {
		t.Errorf("first event = %+v, want verbatim line", events[0])
	}
}

func TestInterrupt_StopsStream(t *testing.T) {
	bin := fakeEngine(t, `
echo '{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"starting"}}}'
sleep 30
`)
	e := New(Options{Command: bin})
	s := e.Send("hello", nil, "")

	first, ok := s.Next()
	if !ok || first.Text != "starting" {
		t.Fatalf("first event = %+v, %v", first, ok)
	}

	if !e.Interrupt() {
		t.Fatal("Interrupt() = false with an active process")
	}

	var rest []protocol.Event
	deadline := time.After(5 * time.Second)
	for {
		next := make(chan struct{})
		var ev protocol.Event
		var more bool
		go func() { ev, more = s.Next(); close(next) }()
		select {
		case <-next:
		case <-deadline:
			t.Fatal("stream did not terminate after interrupt")
		}
		if !more {
			break
		}
		rest = append(rest, ev)
	}

	if len(rest) == 0 {
		t.Fatal("no terminal event after interrupt")
	}
	last := rest[len(rest)-1]
	if !last.Done || !strings.Contains(last.Text, "[Interrupted]") {
		t.Errorf("terminal event = %+v, want interrupted marker", last)
	}
	for _, ev := range rest[:len(rest)-1] {
		if ev.Done {
			t.Errorf("extra terminal event before the last: %+v", ev)
		}
	}
}

func TestInterrupt_NothingActive(t *testing.T) {
	e := New(Options{Command: "claude"})
	if e.Interrupt() {
		t.Error("Interrupt() = true with no active process")
	}
}

func TestBuildPrompt(t *testing.T) {
	e := New(Options{Command: "claude", HistoryWindow: 2, AssistantTruncate: 10})

	tests := []struct {
		name    string
		history []HistoryEntry
		context string
		want    []string
		notWant []string
	}{
		{
			name: "bare message without history",
			want: []string{"current question"},
		},
		{
			name: "history window applies",
			history: []HistoryEntry{
				{Role: "user", Content: "oldest"},
				{Role: "user", Content: "older"},
				{Role: "assistant", Content: "short"},
			},
			want:    []string{"Previous conversation context:", "User: older", "Assistant: short", "Current message: current question"},
			notWant: []string{"oldest"},
		},
		{
			name: "assistant truncation",
			history: []HistoryEntry{
				{Role: "assistant", Content: strings.Repeat("a", 50)},
			},
			want:    []string{"Assistant: " + strings.Repeat("a", 10) + "..."},
			notWant: []string{strings.Repeat("a", 11)},
		},
		{
			name:    "ambient context leads",
			context: "Background processes running:\n  [job1] sleep 30",
			want:    []string{"Background processes running:", "Current message: current question"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.buildPrompt("current question", tt.history, tt.context)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("prompt missing %q:\n%s", want, got)
				}
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(got, notWant) {
					t.Errorf("prompt should not contain %q:\n%s", notWant, got)
				}
			}
		})
	}
}
