// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ptcrun/ptc/internal/engine"
	"github.com/ptcrun/ptc/internal/issue"
	"github.com/ptcrun/ptc/internal/progress"
)

const stdinArg = "-"

type runOptions struct {
	toolsDir string
	timeout  time.Duration
	compact  bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [file|-]",
		Short: "Run a script and print its result as JSON",
		Long: `Run a script and print its result as JSON.

The script is read from the given file, or from stdin when no file or "-"
is given. The result document is written to stdout. Progress events are
written to stderr as one JSON object per line, each with "type":"progress".

The exit status is 0 when the script completed and 1 otherwise.`,
		Example: `  ptc run task.js
  ptc run --timeout 30s <<'JS'
  const st = await capabilities.git.status({});
  progress("checked status", {clean: st.isClean});
  return st.modified;
  JS`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd, root, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.toolsDir, "tools-dir", "", "directory of fallback capability scripts (overrides tools_dir)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "interrupt the script after this duration (0 means no limit)")
	cmd.Flags().BoolVar(&opts.compact, "compact", false, "print the result on a single line")

	return cmd
}

func runScript(cmd *cobra.Command, root *rootOptions, opts *runOptions, args []string) error {
	stderr := cmd.ErrOrStderr()

	cfg, logger, err := configure(cmd, root)
	if err != nil {
		renderIssue(stderr, issue.ConfigLoadFailedId)
		return failRun(cmd, root, opts, err)
	}

	source, err := readSource(cmd.InOrStdin(), args)
	if err != nil {
		err = issue.NewErrorContext().
			WithOperation("read script").
			WithResource(sourceName(args)).
			WithSuggestion("Check that the file exists and is readable").
			WithSuggestion("Use '-' to read the script from stdin").
			WithIssue(issue.ScriptNotReadableId).
			Wrap(err).
			Build()
		if root.verbose {
			renderIssueOf(stderr, err)
		}
		return failRun(cmd, root, opts, err)
	}

	var result *engine.Result
	if engine.IsNoInput(source) {
		if root.verbose {
			renderIssue(stderr, issue.NoInputId)
		}
		result = engine.NewNoInputResult()
	} else {
		factory := newEngineFactory(cfg, opts.toolsDir, logger)
		if !factory.shellAvailable() {
			logger.Warn("shell for fallback scripts not found", "shell", cfg.Process.Shell)
			if root.verbose {
				renderIssue(stderr, issue.ShellNotFoundId)
			}
		}
		eng, err := factory.New(progress.NewJSONLinesSink(stderr))
		if err != nil {
			return fmt.Errorf("failed to create engine: %w", err)
		}

		ctx := cmd.Context()
		if opts.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.timeout)
			defer cancel()
		}
		result = eng.Execute(ctx, source)
	}

	if err := result.WriteJSON(cmd.OutOrStdout(), opts.compact); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	if !result.Success() {
		return &ExitError{Code: result.ExitCode()}
	}
	return nil
}

// failRun reports a failure that happened before any script ran. The
// error goes to stderr and stdout still receives a result document, so a
// caller parsing stdout always gets exactly one.
func failRun(cmd *cobra.Command, root *rootOptions, opts *runOptions, err error) error {
	reportError(cmd.ErrOrStderr(), err, root.verbose)
	result := engine.NewErrorResult(err.Error(), engine.TypeGeneric)
	if werr := result.WriteJSON(cmd.OutOrStdout(), opts.compact); werr != nil {
		return fmt.Errorf("failed to write result: %w", werr)
	}
	return &ExitError{Code: result.ExitCode()}
}

func sourceName(args []string) string {
	if len(args) == 0 || args[0] == stdinArg {
		return "stdin"
	}
	return args[0]
}

// readSource reads the script from the file named in args, or from stdin.
func readSource(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == stdinArg {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(args[0])
	return string(data), err
}
