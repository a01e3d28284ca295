package ui

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned for an unusable Config.
var ErrInvalidConfig = errors.New("ui: invalid configuration")

// Config holds UI package configuration.
type Config struct {
	// BasePath is the URL prefix where the UI is mounted.
	// For example, if mounted at "/admin/", set BasePath to "/admin".
	// All navigation links will be prefixed with this path.
	// Defaults to empty string (root mount).
	BasePath string

	// Logger for structured logging.
	// If nil, the admin's logger is used.
	Logger Logger
}

// Logger interface for structured logging.
// Compatible with tableadmin.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DefaultConfig returns a new Config with default values.
func DefaultConfig() *Config {
	return &Config{}
}

// applyDefaults fills in default values for zero-valued fields.
func (c *Config) applyDefaults() {
	c.BasePath = strings.TrimSuffix(c.BasePath, "/")
}

// validate checks the configuration for errors.
func (c *Config) validate() error {
	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("%w: base path %q must start with /", ErrInvalidConfig, c.BasePath)
	}
	if strings.ContainsAny(c.BasePath, "?#") {
		return fmt.Errorf("%w: base path %q must be a plain path", ErrInvalidConfig, c.BasePath)
	}
	return nil
}
