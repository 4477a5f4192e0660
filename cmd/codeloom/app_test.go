package main

import (
	"reflect"
	"sync"
	"testing"

	"github.com/ruapotato/codeloom/internal/engine"
)

// The streaming flag is written by the conversation loop and read by
// the signal-handler goroutine, so concurrent access must stay clean
// under the race detector.
func TestInterrupt_ConcurrentWithTurns(t *testing.T) {
	a := &app{engine: engine.New(engine.Options{Command: "claude"})}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			a.streaming.Store(i%2 == 0)
		}
		a.streaming.Store(false)
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			a.interrupt()
		}
	}()
	wg.Wait()

	if a.interrupt() {
		t.Error("interrupt() = true with no turn in flight")
	}
}

func TestParseBackgroundCommands(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []string
	}{
		{
			name:     "plain marker",
			response: "I'll run it now.\n[BACKGROUND] make test\nand report back.",
			want:     []string{"make test"},
		},
		{
			name:     "short marker",
			response: "[BG] npm run dev",
			want:     []string{"npm run dev"},
		},
		{
			name:     "case insensitive",
			response: "[background] go build ./...",
			want:     []string{"go build ./..."},
		},
		{
			name:     "backtick wrapped",
			response: "Run `[BACKGROUND] python server.py` for me",
			want:     []string{"python server.py"},
		},
		{
			name:     "duplicates collapse",
			response: "[BG] make test\n[BG] make test",
			want:     []string{"make test"},
		},
		{
			name:     "multiple distinct",
			response: "[BACKGROUND] make build\nthen\n[BG] make test",
			want:     []string{"make build", "make test"},
		},
		{
			name:     "no markers",
			response: "just a normal answer about [brackets]",
			want:     nil,
		},
		{
			name:     "empty command ignored",
			response: "[BACKGROUND]   \n",
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseBackgroundCommands(tt.response)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseBackgroundCommands() = %v, want %v", got, tt.want)
			}
		})
	}
}
