// Package config loads and validates tasknerd's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tasknerd/internal/matcher"
)

// Config holds all tasknerd configuration.
type Config struct {
	// Task and conversation database
	Database DatabaseConfig `yaml:"database"`

	// Turn processing
	Conversation ConversationConfig `yaml:"conversation"`

	// Fuzzy matcher thresholds
	Matcher matcher.Options `yaml:"matcher"`

	// Due date interpretation
	Dates DatesConfig `yaml:"dates"`

	// Optional generative disambiguation
	Generative GenerativeConfig `yaml:"generative"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path          string `yaml:"path"`
	BusyTimeout   string `yaml:"busy_timeout"`
	RetryAttempts int    `yaml:"retry_attempts"`
	RetryBackoff  string `yaml:"retry_backoff"`
}

// ConversationConfig bounds the work done per turn.
type ConversationConfig struct {
	// ToolTimeout bounds each task store call.
	ToolTimeout string `yaml:"tool_timeout"`
	// LockTimeout bounds the wait for a busy conversation.
	LockTimeout  string `yaml:"lock_timeout"`
	DefaultOwner string `yaml:"default_owner"`
}

// DatesConfig configures the date parser.
type DatesConfig struct {
	// Timezone is an IANA name; empty or "Local" uses the host zone.
	Timezone       string `yaml:"timezone"`
	MaxFutureYears int    `yaml:"max_future_years"`
	// DefaultDueTime is HH:MM applied when only a day is given.
	DefaultDueTime string `yaml:"default_due_time"`
}

// GenerativeConfig configures the suggester consulted for unclassifiable
// messages.
type GenerativeConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Provider      string  `yaml:"provider"`
	APIKey        string  `yaml:"api_key,omitempty"`
	Model         string  `yaml:"model"`
	Timeout       string  `yaml:"timeout"`
	MinConfidence float64 `yaml:"min_confidence"`

	// RecordTraces stores every suggester call in the task database.
	RecordTraces       bool `yaml:"record_traces"`
	TraceRetentionDays int  `yaml:"trace_retention_days"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:          filepath.Join(".tasknerd", "tasks.db"),
			BusyTimeout:   "5s",
			RetryAttempts: 3,
			RetryBackoff:  "100ms",
		},

		Conversation: ConversationConfig{
			ToolTimeout:  "5s",
			LockTimeout:  "10s",
			DefaultOwner: defaultOwner(),
		},

		Matcher: matcher.DefaultOptions(),

		Dates: DatesConfig{
			Timezone:       "Local",
			MaxFutureYears: 10,
			DefaultDueTime: "23:59",
		},

		Generative: GenerativeConfig{
			Enabled:            false,
			Provider:           "gemini",
			Model:              "gemini-2.5-flash",
			Timeout:            "10s",
			MinConfidence:      0.5,
			RecordTraces:       true,
			TraceRetentionDays: 30,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultOwner() string {
	for _, k := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return "me"
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file. The API key is never written.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := *c
	out.Generative.APIKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("TASKNERD_DB"); path != "" {
		c.Database.Path = path
	}
	if level := os.Getenv("TASKNERD_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	// GEMINI_API_KEY wins over GOOGLE_API_KEY, matching the genai client.
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.Generative.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Generative.APIKey = key
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetToolTimeout returns the per-call task store timeout.
func (c *Config) GetToolTimeout() time.Duration {
	return parseDuration(c.Conversation.ToolTimeout, 5*time.Second)
}

// GetLockTimeout returns how long a turn waits for its conversation.
func (c *Config) GetLockTimeout() time.Duration {
	return parseDuration(c.Conversation.LockTimeout, 10*time.Second)
}

// GetBusyTimeout returns SQLite's busy handler timeout.
func (c *Config) GetBusyTimeout() time.Duration {
	return parseDuration(c.Database.BusyTimeout, 5*time.Second)
}

// GetRetryBackoff returns the first busy-retry delay.
func (c *Config) GetRetryBackoff() time.Duration {
	return parseDuration(c.Database.RetryBackoff, 100*time.Millisecond)
}

// GetGenerativeTimeout returns the suggester deadline.
func (c *Config) GetGenerativeTimeout() time.Duration {
	return parseDuration(c.Generative.Timeout, 10*time.Second)
}

// Location resolves Dates.Timezone.
func (c *Config) Location() (*time.Location, error) {
	switch tz := strings.TrimSpace(c.Dates.Timezone); tz {
	case "", "Local", "local":
		return time.Local, nil
	default:
		return time.LoadLocation(tz)
	}
}

// DueTime parses Dates.DefaultDueTime.
func (c *Config) DueTime() (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(c.Dates.DefaultDueTime))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid default_due_time %q (want HH:MM)", c.Dates.DefaultDueTime)
	}
	return t.Hour(), t.Minute(), nil
}

// SuggesterEnabled reports whether the generative suggester can be built.
func (c *Config) SuggesterEnabled() bool {
	return c.Generative.Enabled && c.Generative.APIKey != ""
}

// ValidProviders lists the supported generative providers.
var ValidProviders = []string{"gemini"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Database.RetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("database.retry_attempts must not be negative, got %d", c.Database.RetryAttempts))
	}
	for name, v := range map[string]string{
		"database.busy_timeout":     c.Database.BusyTimeout,
		"database.retry_backoff":    c.Database.RetryBackoff,
		"conversation.tool_timeout": c.Conversation.ToolTimeout,
		"conversation.lock_timeout": c.Conversation.LockTimeout,
		"generative.timeout":        c.Generative.Timeout,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", name, v))
		}
	}

	m := c.Matcher
	if m.SingleThreshold <= 0 || m.SingleThreshold > 1 {
		errs = append(errs, fmt.Errorf("matcher.single_threshold must be in (0,1], got %v", m.SingleThreshold))
	}
	if m.MultiThreshold <= 0 || m.MultiThreshold > m.SingleThreshold {
		errs = append(errs, fmt.Errorf("matcher.multi_threshold must be in (0,single_threshold], got %v", m.MultiThreshold))
	}
	if m.MaxCandidates < 1 {
		errs = append(errs, fmt.Errorf("matcher.max_candidates must be positive, got %d", m.MaxCandidates))
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("dates.timezone: %w", err))
	}
	if c.Dates.MaxFutureYears < 1 {
		errs = append(errs, fmt.Errorf("dates.max_future_years must be positive, got %d", c.Dates.MaxFutureYears))
	}
	if _, _, err := c.DueTime(); err != nil {
		errs = append(errs, fmt.Errorf("dates: %w", err))
	}

	if c.Generative.Enabled {
		valid := false
		for _, p := range ValidProviders {
			if c.Generative.Provider == p {
				valid = true
				break
			}
		}
		if !valid {
			errs = append(errs, fmt.Errorf("invalid generative provider: %s (valid: %v)", c.Generative.Provider, ValidProviders))
		}
		if c.Generative.APIKey == "" {
			errs = append(errs, errors.New("generative.enabled requires an API key (set GEMINI_API_KEY or GOOGLE_API_KEY)"))
		}
	}
	if c.Generative.MinConfidence < 0 || c.Generative.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("generative.min_confidence must be in [0,1], got %v", c.Generative.MinConfidence))
	}
	if c.Generative.TraceRetentionDays < 0 {
		errs = append(errs, fmt.Errorf("generative.trace_retention_days must not be negative, got %d", c.Generative.TraceRetentionDays))
	}

	if !validLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("invalid logging.level: %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}
