// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"

	"github.com/ptcrun/ptc/internal/engine"
	"github.com/ptcrun/ptc/internal/progress"
)

const (
	commandRun          = "run"
	commandCapabilities = "capabilities"

	exitUsage = 2
)

var errScriptTooLarge = errors.New("script too large")

// sessionMiddleware dispatches a session on its command: none or "run"
// executes the script read from stdin, "capabilities" lists what scripts
// can call.
func (s *Server) sessionMiddleware() wish.Middleware {
	return func(ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			_ = sess.Exit(s.handleSession(sess))
		}
	}
}

func (s *Server) handleSession(sess ssh.Session) int {
	logger := s.logger.With("user", sess.User(), "remote", sess.RemoteAddr().String())

	ctx, cancel := context.WithCancel(sess.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	switch cmd := sess.Command(); {
	case len(cmd) == 0, len(cmd) == 1 && cmd[0] == commandRun:
		return s.runScript(ctx, sess, logger)
	case len(cmd) == 1 && cmd[0] == commandCapabilities:
		return s.listCapabilities(sess, logger)
	default:
		_, _ = fmt.Fprintf(sess.Stderr(), "unsupported command %q (valid: %s, %s)\n",
			strings.Join(cmd, " "), commandRun, commandCapabilities)
		return exitUsage
	}
}

func (s *Server) runScript(ctx context.Context, sess ssh.Session, logger *log.Logger) int {
	source, err := readScript(sess, s.cfg.MaxScriptBytes)

	var result *engine.Result
	switch {
	case errors.Is(err, errScriptTooLarge):
		result = engine.NewErrorResult(fmt.Sprintf("script exceeds %d bytes", s.cfg.MaxScriptBytes), engine.TypeGeneric)
	case err != nil:
		result = engine.NewErrorResult("failed to read script: "+err.Error(), engine.TypeGeneric)
	case engine.IsNoInput(source):
		result = engine.NewNoInputResult()
	default:
		eng, err := s.cfg.NewEngine(progress.NewJSONLinesSink(sess.Stderr()))
		if err != nil {
			result = engine.NewErrorResult("failed to create engine: "+err.Error(), engine.TypeGeneric)
			break
		}
		result = eng.Execute(ctx, source)
	}

	if err := result.WriteJSON(sess, false); err != nil {
		logger.Warn("failed to write result", "error", err)
	}
	logger.Info("session finished",
		"execution_id", result.ExecutionID,
		"status", result.Status,
		"elapsed", result.ExecutionTime,
	)
	return result.ExitCode()
}

func (s *Server) listCapabilities(sess ssh.Session, logger *log.Logger) int {
	eng, err := s.cfg.NewEngine(progress.Discard)
	if err != nil {
		_, _ = fmt.Fprintf(sess.Stderr(), "failed to create engine: %v\n", err)
		return 1
	}
	keys, err := eng.Registry().Available()
	if err != nil {
		_, _ = fmt.Fprintf(sess.Stderr(), "failed to list capabilities: %v\n", err)
		return 1
	}

	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.String())
	}
	enc := json.NewEncoder(sess)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string][]string{"capabilities": names}); err != nil {
		logger.Warn("failed to write capabilities", "error", err)
		return 1
	}
	return 0
}

// readScript reads stdin until EOF, failing once more than limit bytes arrive.
func readScript(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", errScriptTooLarge
	}
	return string(data), nil
}
