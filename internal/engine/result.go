// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/ptcrun/ptc/internal/progress"
)

const (
	// StatusSuccess marks a run whose script completed normally.
	StatusSuccess Status = "success"
	// StatusError marks a run that ended with a fault.
	StatusError Status = "error"
)

// Error types the engine assigns itself. Faults raised by script code keep
// the name of the thrown error (TypeError, CapabilityError, ...).
const (
	TypeNoInput     = "NoInputError"
	TypeSyntax      = "SyntaxError"
	TypeInterrupted = "InterruptedError"
	TypeUnsettled   = "UnsettledError"
	TypeGeneric     = "Error"
)

// NoInputMessage is the error message reported for empty script input.
const NoInputMessage = "No script provided. Usage: ptc run <<'JS' ... JS"

type (
	// Status is the outcome of a run.
	Status string

	// ErrorInfo describes the fault that ended a run.
	ErrorInfo struct {
		Message string `json:"message"`
		Stack   string `json:"stack,omitempty"`
		Type    string `json:"type"`
	}

	// Result is produced exactly once per run, whatever the outcome.
	Result struct {
		// ExecutionID identifies the run in logs. It is not serialized.
		ExecutionID string `json:"-"`

		Status Status `json:"status"`
		// Output is the JSON form of the script's return value. It is null
		// when the script returned nothing or the run failed.
		Output       json.RawMessage  `json:"output"`
		Error        *ErrorInfo       `json:"error,omitempty"`
		ProgressLogs []progress.Event `json:"progressLogs"`
		// ExecutionTime is the elapsed wall time in milliseconds.
		ExecutionTime float64 `json:"executionTime"`
	}
)

// NewErrorResult returns a failed result for a fault detected before any
// script ran.
func NewErrorResult(message, errType string) *Result {
	return &Result{
		Status:       StatusError,
		Error:        &ErrorInfo{Message: message, Type: errType},
		ProgressLogs: []progress.Event{},
	}
}

// NewNoInputResult returns the result reported when no script text was
// submitted.
func NewNoInputResult() *Result {
	return NewErrorResult(NoInputMessage, TypeNoInput)
}

// IsNoInput reports whether source has no script text at all.
func IsNoInput(source string) bool {
	return strings.TrimSpace(source) == ""
}

// Success reports whether the run completed without a fault.
func (r *Result) Success() bool {
	return r.Status == StatusSuccess
}

// ExitCode returns the process exit status a host should report: 0 on
// success, 1 on any failure.
func (r *Result) ExitCode() int {
	if r.Success() {
		return 0
	}
	return 1
}

// WriteJSON writes the result as a single JSON document followed by a
// newline, indented with two spaces unless compact is set.
func (r *Result) WriteJSON(w io.Writer, compact bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(r)
}
