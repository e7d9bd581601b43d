// SPDX-License-Identifier: MPL-2.0

package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// DefaultShell runs fallback scripts when no shell is configured.
const DefaultShell = "bash"

// ScriptExt is the extension of process-backed fallback scripts.
const ScriptExt = ".sh"

type (
	// ProcessOutput is what a finished fallback process produced.
	ProcessOutput struct {
		Stdout   []byte
		Stderr   []byte
		ExitCode int
	}

	// Runner executes a fallback script with the given standard input.
	// A non-zero exit is reported through ProcessOutput.ExitCode; the error
	// return is reserved for failures to run the script at all.
	Runner interface {
		Run(ctx context.Context, path string, stdin []byte) (ProcessOutput, error)
	}

	// ShellRunner spawns "<shell> <path>" as an external process per call.
	ShellRunner struct {
		// Shell is the interpreter executable; DefaultShell when empty.
		Shell string
	}

	// VirtualRunner interprets the script in-process with mvdan/sh.
	// External commands invoked by the script still run as host processes.
	VirtualRunner struct {
		// Dir is the working directory; the current directory when empty.
		Dir string
	}

	processBinding struct {
		key    Key
		path   string
		runner Runner
	}
)

// Run implements Runner.
func (r ShellRunner) Run(ctx context.Context, path string, stdin []byte) (ProcessOutput, error) {
	shell := r.Shell
	if shell == "" {
		shell = DefaultShell
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, shell, path)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := ProcessOutput{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, fmt.Errorf("failed to run %s %s: %w", shell, path, err)
	}
	return out, nil
}

// Run implements Runner.
func (r VirtualRunner) Run(ctx context.Context, path string, stdin []byte) (ProcessOutput, error) {
	prog, err := parseScript(path)
	if err != nil {
		return ProcessOutput{}, err
	}

	var stdout, stderr bytes.Buffer
	opts := []interp.RunnerOption{
		interp.StdIO(bytes.NewReader(stdin), &stdout, &stderr),
		interp.Env(expand.ListEnviron(os.Environ()...)),
	}
	if r.Dir != "" {
		opts = append(opts, interp.Dir(r.Dir))
	}

	runner, err := interp.New(opts...)
	if err != nil {
		return ProcessOutput{}, fmt.Errorf("failed to create interpreter: %w", err)
	}

	out := ProcessOutput{}
	if err := runner.Run(ctx, prog); err != nil {
		var exitStatus interp.ExitStatus
		if !errors.As(err, &exitStatus) {
			return out, fmt.Errorf("script execution failed: %w", err)
		}
		out.ExitCode = int(exitStatus)
	}
	out.Stdout = stdout.Bytes()
	out.Stderr = stderr.Bytes()
	return out, nil
}

func (b *processBinding) Key() Key          { return b.key }
func (b *processBinding) Kind() BindingKind { return BindingProcess }
func (b *processBinding) Location() string  { return b.path }

// Invoke writes the JSON-encoded input to the script's stdin, waits for it
// to exit and returns its stdout. Raw JSON input is written as is, so object
// keys reach the script in the order the caller serialized them.
func (b *processBinding) Invoke(ctx context.Context, input any) (any, error) {
	payload, err := encodeInput(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input for %s: %w", b.key, err)
	}

	out, err := b.runner.Run(ctx, b.path, payload)
	if err != nil {
		return nil, err
	}
	if out.ExitCode != 0 {
		return nil, &ProcessError{
			Key:      b.key,
			Path:     b.path,
			ExitCode: out.ExitCode,
			Stderr:   string(out.Stderr),
		}
	}
	return decodeOutput(out.Stdout), nil
}

func encodeInput(input any) ([]byte, error) {
	if raw, ok := input.(json.RawMessage); ok {
		if len(raw) == 0 {
			return []byte("null"), nil
		}
		return raw, nil
	}
	return json.Marshal(input)
}

// decodeOutput returns stdout as raw JSON when it parses, falling back to
// the trimmed text. Raw JSON keeps the key order the script wrote.
func decodeOutput(stdout []byte) any {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	return string(trimmed)
}

// parseScript reads and parses a fallback script with bash syntax rules.
func parseScript(path string) (*syntax.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(bytes.NewReader(data), path)
	if err != nil {
		return nil, fmt.Errorf("script syntax error: %w", err)
	}
	return prog, nil
}
