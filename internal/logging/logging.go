// Package logging builds the zap logger shared by the CLI and the MCP
// server. Output always goes to stderr so the stdio transport keeps stdout.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = "info"

// New returns a logger at level. development switches to the console
// encoder with caller and stack information.
func New(level string, development bool) (*zap.Logger, error) {
	if strings.TrimSpace(level) == "" {
		level = DefaultLevel
	}
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build: %w", err)
	}
	return l, nil
}

// Must is New for callers that cannot continue without a logger.
func Must(level string, development bool) *zap.Logger {
	l, err := New(level, development)
	if err != nil {
		panic(err)
	}
	return l
}
