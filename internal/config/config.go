// Package config loads codeloom configuration from codeloom.jsonc.
//
// The config file lives in the data directory (default ~/.config/codeloom)
// and may contain // and /* */ comments. Every field has a default so a
// missing file is not an error.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EngineConfig holds settings for the external AI engine process.
type EngineConfig struct {
	Command   string   `json:"command"`    // engine binary, default "claude"
	ExtraArgs []string `json:"extra_args"` // appended after the built-in arguments
}

// HistoryConfig bounds the prompt context built from conversation history.
type HistoryConfig struct {
	Window            int `json:"window"`             // most recent entries included
	AssistantTruncate int `json:"assistant_truncate"` // max chars per assistant entry
}

// JobsConfig holds background job settings.
type JobsConfig struct {
	DefaultTail int `json:"default_tail"` // lines shown by /output without a count
}

// ScheduleConfig holds scheduled-prompt settings.
type ScheduleConfig struct {
	SendsPerMinute int `json:"sends_per_minute"` // rate cap on schedule-triggered engine sends
	SendBurst      int `json:"send_burst"`
}

// CleanupConfig holds retention settings for the maintenance sweeper.
type CleanupConfig struct {
	IntervalMinutes int `json:"interval_minutes"`
	RetentionDays   int `json:"retention_days"`
}

// Config is the loaded codeloom configuration.
type Config struct {
	DataDir  string         `json:"data_dir"`
	Engine   EngineConfig   `json:"engine"`
	History  HistoryConfig  `json:"history"`
	Jobs     JobsConfig     `json:"jobs"`
	Schedule ScheduleConfig `json:"schedule"`
	Cleanup  CleanupConfig  `json:"cleanup"`
	Debug    bool           `json:"debug"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Engine: EngineConfig{
			Command: "claude",
		},
		History: HistoryConfig{
			Window:            6,
			AssistantTruncate: 500,
		},
		Jobs: JobsConfig{
			DefaultTail: 50,
		},
		Schedule: ScheduleConfig{
			SendsPerMinute: 2,
			SendBurst:      3,
		},
		Cleanup: CleanupConfig{
			IntervalMinutes: 30,
			RetentionDays:   14,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".codeloom")
	}
	return filepath.Join(home, ".config", "codeloom")
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file yields defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.DataDir, "codeloom.jsonc")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := json.Unmarshal(StripJSONComments(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults backfills zero values so a sparse config file still works.
func (c *Config) applyDefaults() {
	d := Default()
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Engine.Command == "" {
		c.Engine.Command = d.Engine.Command
	}
	if c.History.Window <= 0 {
		c.History.Window = d.History.Window
	}
	if c.History.AssistantTruncate <= 0 {
		c.History.AssistantTruncate = d.History.AssistantTruncate
	}
	if c.Jobs.DefaultTail <= 0 {
		c.Jobs.DefaultTail = d.Jobs.DefaultTail
	}
	if c.Schedule.SendsPerMinute <= 0 {
		c.Schedule.SendsPerMinute = d.Schedule.SendsPerMinute
	}
	if c.Schedule.SendBurst <= 0 {
		c.Schedule.SendBurst = d.Schedule.SendBurst
	}
	if c.Cleanup.IntervalMinutes <= 0 {
		c.Cleanup.IntervalMinutes = d.Cleanup.IntervalMinutes
	}
	if c.Cleanup.RetentionDays <= 0 {
		c.Cleanup.RetentionDays = d.Cleanup.RetentionDays
	}
}

// JobsDir returns the directory holding the job index and output logs.
func (c *Config) JobsDir() string {
	return filepath.Join(c.DataDir, "processes")
}

// SessionsDir returns the directory holding conversation session files.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.DataDir, "sessions")
}

// ProfilesDir returns the directory holding profile files.
func (c *Config) ProfilesDir() string {
	return filepath.Join(c.DataDir, "profiles")
}

// LogDir returns the directory for codeloom's own log files.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// CleanupInterval returns the sweep interval as a duration.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Cleanup.IntervalMinutes) * time.Minute
}

// CleanupRetention returns the retention window as a duration.
func (c *Config) CleanupRetention() time.Duration {
	return time.Duration(c.Cleanup.RetentionDays) * 24 * time.Hour
}
