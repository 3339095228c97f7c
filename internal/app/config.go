package app

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	StackPaths []string // hcl files or directories

	LogFormat string
	LogLevel  string
}

var (
	logFormats = []string{"text", "json"}

	logLevels = []string{"debug", "info", "warn", "error"}
)

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.StackPaths) == 0 {
		cfg.StackPaths = []string{"."}
	}
	for _, p := range cfg.StackPaths {
		if strings.TrimSpace(p) == "" {
			return nil, errors.New("stack path cannot be empty")
		}
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if !oneOf(cfg.LogFormat, logFormats) {
		return nil, fmt.Errorf("invalid log-format %q: must be one of %s", cfg.LogFormat, strings.Join(logFormats, ", "))
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if !oneOf(cfg.LogLevel, logLevels) {
		return nil, fmt.Errorf("invalid log-level %q: must be one of %s", cfg.LogLevel, strings.Join(logLevels, ", "))
	}

	return &cfg, nil
}

func oneOf(s string, options []string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}
