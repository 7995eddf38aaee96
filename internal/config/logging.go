package config

import (
	"strings"

	"tasknerd/internal/logging"
)

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`                // debug, info, warn, error
	Format     string          `yaml:"format"`               // json, text
	Dir        string          `yaml:"dir,omitempty"`        // empty = stderr
	Categories map[string]bool `yaml:"categories,omitempty"` // per-category toggles
}

func validLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Categories not listed are enabled.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	enabled, exists := c.Categories[category]
	return !exists || enabled
}

// Options converts the section into logging.Initialize options.
func (c *LoggingConfig) Options() logging.Options {
	return logging.Options{
		Level:      c.Level,
		Dir:        c.Dir,
		JSON:       strings.EqualFold(c.Format, "json"),
		Categories: c.Categories,
	}
}
