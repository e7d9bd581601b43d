// SPDX-License-Identifier: MPL-2.0

package capability

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Fault kinds reported by CallError.Kind and surfaced to scripts.
const (
	FaultNotFound        FaultKind = "NotFound"
	FaultLoad            FaultKind = "LoadError"
	FaultProcess         FaultKind = "ProcessError"
	FaultInvalidKey      FaultKind = "InvalidKey"
	FaultCapabilityFault FaultKind = "CapabilityFault"
)

var (
	// ErrNotFound is the sentinel error wrapped by NotFoundError.
	ErrNotFound = errors.New("capability not found")
	// ErrLoad is the sentinel error wrapped by LoadError.
	ErrLoad = errors.New("capability load error")
	// ErrProcess is the sentinel error wrapped by ProcessError.
	ErrProcess = errors.New("capability process error")
	// ErrInvalidKey is the sentinel error wrapped by InvalidKeyError.
	ErrInvalidKey = errors.New("invalid capability key")
	// ErrCapabilityFault is the sentinel error wrapped by CallError.
	ErrCapabilityFault = errors.New("capability call failed")
)

type (
	// FaultKind classifies a capability fault.
	FaultKind string

	// NotFoundError is returned when neither a native implementation nor a
	// fallback script exists for a key. It names both locations searched.
	NotFoundError struct {
		Key             Key
		NativeLocation  string
		ProcessLocation string
	}

	// LoadError is returned when an implementation exists but cannot be bound.
	LoadError struct {
		Key      Key
		Location string
		Reason   string
		Cause    error
	}

	// ProcessError is returned when a process-backed binding exits non-zero.
	ProcessError struct {
		Key      Key
		Path     string
		ExitCode int
		Stderr   string
	}

	// InvalidKeyError is returned when a namespace or method is not a plain
	// identifier. No lookup is attempted for such keys.
	InvalidKeyError struct {
		Key    Key
		Reason string
	}

	// CallError wraps any fault raised while dispatching a capability call
	// with the namespace, method and input of that call.
	CallError struct {
		Namespace string
		Method    string
		Input     any
		Cause     error
	}
)

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("capability not found: %s (tried %s and %s)", e.Key, e.NativeLocation, e.ProcessLocation)
}

// Unwrap returns ErrNotFound for errors.Is compatibility.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Error implements the error interface.
func (e *LoadError) Error() string {
	msg := fmt.Sprintf("capability %s at %s cannot be loaded: %s", e.Key, e.Location, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns ErrLoad and the underlying cause, if any.
func (e *LoadError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrLoad, e.Cause}
	}
	return []error{ErrLoad}
}

// Error implements the error interface. The message is the process's error
// stream, or a generic status message when the process wrote nothing there.
func (e *ProcessError) Error() string {
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return msg
	}
	return fmt.Sprintf("process exited with code %d", e.ExitCode)
}

// Unwrap returns ErrProcess for errors.Is compatibility.
func (e *ProcessError) Unwrap() error { return ErrProcess }

// Error implements the error interface.
func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid capability key %s: %s", e.Key, e.Reason)
}

// Unwrap returns ErrInvalidKey for errors.Is compatibility.
func (e *InvalidKeyError) Unwrap() error { return ErrInvalidKey }

// Error implements the error interface.
func (e *CallError) Error() string {
	var cause string
	if e.Cause != nil {
		cause = e.Cause.Error()
	}
	return fmt.Sprintf("capability call failed: %s.%s(%s): %s", e.Namespace, e.Method, snapshot(e.Input), cause)
}

// Unwrap returns ErrCapabilityFault and the original cause.
func (e *CallError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrCapabilityFault, e.Cause}
	}
	return []error{ErrCapabilityFault}
}

// Kind classifies the wrapped cause.
func (e *CallError) Kind() FaultKind {
	return KindOf(e.Cause)
}

// KindOf classifies an arbitrary error into a FaultKind.
func KindOf(err error) FaultKind {
	switch {
	case errors.Is(err, ErrNotFound):
		return FaultNotFound
	case errors.Is(err, ErrLoad):
		return FaultLoad
	case errors.Is(err, ErrProcess):
		return FaultProcess
	case errors.Is(err, ErrInvalidKey):
		return FaultInvalidKey
	default:
		return FaultCapabilityFault
	}
}

// snapshot serializes a call input for error messages. Raw JSON is used
// verbatim; inputs that cannot be encoded fall back to their Go representation.
func snapshot(input any) string {
	if raw, ok := input.(json.RawMessage); ok {
		if len(raw) == 0 {
			return "null"
		}
		return string(raw)
	}
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return string(data)
}
