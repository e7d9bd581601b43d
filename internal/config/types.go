// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// RuntimeNative spawns fallback scripts with the configured host shell.
	RuntimeNative RuntimeMode = "native"
	// RuntimeVirtual interprets fallback scripts with the embedded mvdan/sh interpreter.
	RuntimeVirtual RuntimeMode = "virtual"

	// LogLevelDebug logs capability resolution and execution details.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo logs lifecycle events.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs only warnings and errors.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs only errors.
	LogLevelError LogLevel = "error"

	// LogFormatText is the human-readable charm log format.
	LogFormatText LogFormat = "text"
	// LogFormatJSON writes one JSON object per log line.
	LogFormatJSON LogFormat = "json"
	// LogFormatLogfmt writes key=value pairs.
	LogFormatLogfmt LogFormat = "logfmt"

	// DefaultToolsDir is where fallback scripts live when tools_dir is unset.
	DefaultToolsDir = ".ptc/tools"
	// DefaultShell runs fallback scripts in the native runtime.
	DefaultShell = "bash"
	// DefaultServeAddress is the listen address of `ptc serve`.
	DefaultServeAddress = "localhost:2222"
	// DefaultMaxScriptBytes caps the script a serve session may submit.
	DefaultMaxScriptBytes = 1 << 20
)

var (
	// ErrInvalidRuntimeMode is returned when a RuntimeMode value is not recognized.
	ErrInvalidRuntimeMode = errors.New("invalid runtime mode")
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat is returned when a LogFormat value is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// RuntimeMode selects how process-backed capabilities are executed.
	RuntimeMode string

	// InvalidRuntimeModeError is returned when a RuntimeMode value is not recognized.
	// It wraps ErrInvalidRuntimeMode for errors.Is() compatibility.
	InvalidRuntimeModeError struct {
		Value RuntimeMode
	}

	// LogLevel is the minimum level written by the logger.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// LogFormat selects the log line encoding.
	LogFormat string

	// InvalidLogFormatError is returned when a LogFormat value is not recognized.
	InvalidLogFormatError struct {
		Value LogFormat
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig and collects the field-level errors.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// ToolsDir is the root of process-backed fallback scripts.
		ToolsDir string `json:"tools_dir" mapstructure:"tools_dir" toml:"tools_dir"`
		// Process configures fallback script execution.
		Process ProcessConfig `json:"process" mapstructure:"process" toml:"process"`
		// Log configures diagnostics written to stderr.
		Log LogConfig `json:"log" mapstructure:"log" toml:"log"`
		// Serve configures the SSH host driver.
		Serve ServeConfig `json:"serve" mapstructure:"serve" toml:"serve"`
	}

	// ProcessConfig configures how fallback scripts run.
	ProcessConfig struct {
		Runtime RuntimeMode `json:"runtime" mapstructure:"runtime" toml:"runtime"`
		// Shell is the interpreter used by the native runtime.
		Shell string `json:"shell" mapstructure:"shell" toml:"shell"`
	}

	// LogConfig configures the logger.
	LogConfig struct {
		Level  LogLevel  `json:"level" mapstructure:"level" toml:"level"`
		Format LogFormat `json:"format" mapstructure:"format" toml:"format"`
	}

	// ServeConfig configures `ptc serve`.
	ServeConfig struct {
		Address string `json:"address" mapstructure:"address" toml:"address"`
		// HostKeyPath is the SSH host key; generated on first start when missing.
		// Empty means <config dir>/ssh_host_ed25519.
		HostKeyPath string `json:"host_key_path" mapstructure:"host_key_path" toml:"host_key_path"`
		// MaxScriptBytes is the largest script a session may send.
		MaxScriptBytes int64 `json:"max_script_bytes" mapstructure:"max_script_bytes" toml:"max_script_bytes"`
	}
)

// IsValid returns whether the Config has valid fields.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if strings.TrimSpace(c.ToolsDir) == "" {
		errs = append(errs, errors.New("tools_dir must not be empty"))
	}
	if valid, fieldErrs := c.Process.Runtime.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Log.Level.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Log.Format.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if c.Serve.MaxScriptBytes <= 0 {
		errs = append(errs, fmt.Errorf("serve.max_script_bytes must be positive, got %d", c.Serve.MaxScriptBytes))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// Error implements the error interface for InvalidRuntimeModeError.
func (e *InvalidRuntimeModeError) Error() string {
	return fmt.Sprintf("invalid runtime mode %q (valid: native, virtual)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidRuntimeModeError) Unwrap() error { return ErrInvalidRuntimeMode }

// String returns the string representation of the RuntimeMode.
func (m RuntimeMode) String() string { return string(m) }

// IsValid returns whether the RuntimeMode is one of the defined modes.
func (m RuntimeMode) IsValid() (bool, []error) {
	switch m {
	case RuntimeNative, RuntimeVirtual:
		return true, nil
	default:
		return false, []error{&InvalidRuntimeModeError{Value: m}}
	}
}

// Error implements the error interface for InvalidLogLevelError.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// IsValid returns whether the LogLevel is one of the defined levels.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// Error implements the error interface for InvalidLogFormatError.
func (e *InvalidLogFormatError) Error() string {
	return fmt.Sprintf("invalid log format %q (valid: text, json, logfmt)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidLogFormatError) Unwrap() error { return ErrInvalidLogFormat }

// String returns the string representation of the LogFormat.
func (f LogFormat) String() string { return string(f) }

// IsValid returns whether the LogFormat is one of the defined formats.
func (f LogFormat) IsValid() (bool, []error) {
	switch f {
	case LogFormatText, LogFormatJSON, LogFormatLogfmt:
		return true, nil
	default:
		return false, []error{&InvalidLogFormatError{Value: f}}
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ToolsDir: DefaultToolsDir,
		Process: ProcessConfig{
			Runtime: RuntimeNative,
			Shell:   DefaultShell,
		},
		Log: LogConfig{
			Level:  LogLevelWarn,
			Format: LogFormatText,
		},
		Serve: ServeConfig{
			Address:        DefaultServeAddress,
			MaxScriptBytes: DefaultMaxScriptBytes,
		},
	}
}
