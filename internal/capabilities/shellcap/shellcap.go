// SPDX-License-Identifier: MPL-2.0

// Package shellcap implements shell.exec, which runs a host command and
// always returns a structured outcome, including for non-zero exits,
// timeouts and commands that cannot be started.
package shellcap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/ptcrun/ptc/internal/capability"
)

// Namespace is the capability namespace of this package.
const Namespace = "shell"

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxOutput = 10 * 1024 * 1024
	truncatedMarker  = "\n[truncated]"

	// waitDelay bounds how long output is drained after a timeout kill, for
	// grandchildren that keep the pipes open.
	waitDelay = 500 * time.Millisecond
)

type (
	// ExecInput is the input of shell.exec. Command is executed directly,
	// not through a shell.
	ExecInput struct {
		Command string            `json:"command" validate:"required"`
		Args    []string          `json:"args,omitempty"`
		Cwd     string            `json:"cwd,omitempty"`
		Env     map[string]string `json:"env,omitempty"`
		// Timeout is in milliseconds.
		Timeout int `json:"timeout,omitempty" validate:"gte=0" jsonschema:"default=60000"`
		// MaxOutput caps each of stdout and stderr, in bytes.
		MaxOutput int `json:"maxOutput,omitempty" validate:"gte=0" jsonschema:"default=10485760"`
	}

	// ExecOutput is the output of shell.exec.
	ExecOutput struct {
		Success bool   `json:"success"`
		Code    int    `json:"code"`
		Stdout  string `json:"stdout"`
		Stderr  string `json:"stderr"`
		// Output is stdout followed by stderr on a new line, when present.
		Output string `json:"output"`
		// ExecutionTime is in milliseconds.
		ExecutionTime int64  `json:"executionTime"`
		Error         string `json:"error,omitempty"`
	}
)

// Register adds shell.exec to catalog.
func Register(catalog *capability.Catalog) {
	catalog.Register(capability.Descriptor{
		Key:     capability.NewKey(Namespace, "exec"),
		Summary: "Run a command and capture its output and exit code",
		Input:   ExecInput{},
		Impl:    capability.Typed(Exec),
	})
}

// Exec runs the command and waits for it, killing it when the timeout
// elapses. Environment entries are added to the host environment.
func Exec(ctx context.Context, in ExecInput) (ExecOutput, error) {
	start := time.Now()

	limit := defaultTimeout
	if in.Timeout > 0 {
		limit = time.Duration(in.Timeout) * time.Millisecond
	}
	maxOutput := in.MaxOutput
	if maxOutput == 0 {
		maxOutput = defaultMaxOutput
	}

	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	stdout := newCappedBuffer(maxOutput)
	stderr := newCappedBuffer(maxOutput)

	cmd := exec.CommandContext(ctx, in.Command, in.Args...)
	cmd.Dir = in.Cwd
	cmd.WaitDelay = waitDelay
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if len(in.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range in.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	err := cmd.Run()
	out := ExecOutput{
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		ExecutionTime: time.Since(start).Milliseconds(),
	}
	out.Output = out.Stdout
	if out.Stderr != "" {
		out.Output += "\n" + out.Stderr
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		out.Success = true
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		out.Code = -1
		out.Error = fmt.Sprintf("command timed out after %s", limit)
	case errors.As(err, &exitErr):
		out.Code = exitErr.ExitCode()
	default:
		out.Code = -1
		out.Error = err.Error()
	}
	return out, nil
}
