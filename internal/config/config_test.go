package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.jsonc"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.Command != "claude" {
		t.Errorf("Engine.Command = %q, want %q", cfg.Engine.Command, "claude")
	}
	if cfg.History.Window != 6 {
		t.Errorf("History.Window = %d, want 6", cfg.History.Window)
	}
}

func TestLoad_SparseFileBackfillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codeloom.jsonc")
	content := `{
		// only override the engine
		"engine": {"command": "my-engine"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.Command != "my-engine" {
		t.Errorf("Engine.Command = %q, want %q", cfg.Engine.Command, "my-engine")
	}
	if cfg.Jobs.DefaultTail != 50 {
		t.Errorf("Jobs.DefaultTail = %d, want 50", cfg.Jobs.DefaultTail)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codeloom.jsonc")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for malformed config")
	}
}

func TestStripJSONComments(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "line comment",
			input: "{\n// comment\n\"a\": 1}",
			want:  "{\n\n\"a\": 1}",
		},
		{
			name:  "block comment",
			input: `{"a": /* inline */ 1}`,
			want:  `{"a":  1}`,
		},
		{
			name:  "slashes inside string preserved",
			input: `{"url": "http://example.com"}`,
			want:  `{"url": "http://example.com"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(StripJSONComments([]byte(tt.input)))
			if got != tt.want {
				t.Errorf("StripJSONComments() = %q, want %q", got, tt.want)
			}
		})
	}
}
