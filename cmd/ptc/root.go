// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for ptc.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ptcrun/ptc/internal/config"
	"github.com/ptcrun/ptc/internal/issue"
	"github.com/ptcrun/ptc/internal/logging"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	verbose bool
	cfgFile string
}

// NewRootCommand builds the ptc command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "ptc",
		Short: "Run scripts that orchestrate capabilities",
		Long: TitleStyle.Render("ptc") + SubtitleStyle.Render(" - programmatic capability calling") + `

ptc runs a JavaScript snippet that calls capabilities (fs, git, http,
search, shell and your own scripts) and prints one JSON result.

The script body runs inside an async function with two globals:
  capabilities.<namespace>.<method>(input)  returns a promise
  progress(step, data)                      records a progress event

Capabilities without a built-in implementation are looked up as
executables at <tools_dir>/<namespace>/<method>.sh, which receive the
input as JSON on stdin and answer on stdout.

` + SubtitleStyle.Render("Examples:") + `
  ptc run task.js                 Run a script file
  ptc run <<'JS' ... JS           Run a script from stdin
  ptc capabilities                List what scripts can call
  ptc serve                       Accept scripts over SSH
  ptc config show                 Show the effective configuration`,
	}

	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging and detailed errors")
	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/ptc/config.cue)")

	rootCmd.AddCommand(
		newRunCommand(opts),
		newCapabilitiesCommand(opts),
		newConfigCommand(opts),
		newServeCommand(opts),
		newVersionCommand(),
	)

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	// Pass version via fang.WithVersion() since fang overrides rootCmd.Version
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(handleError),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// handleError prints command errors with fang's styling. An ExitError
// without a cause is silent: the command has already written its result.
func handleError(w io.Writer, styles fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}
	fang.DefaultErrorHandler(w, styles, err)
}

// loadConfig loads the configuration and builds the logger every command
// writes its diagnostics to. A failure is reported on stderr and returned
// as a silent ExitError.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, *log.Logger, error) {
	cfg, logger, err := configure(cmd, opts)
	if err != nil {
		stderr := cmd.ErrOrStderr()
		renderIssue(stderr, issue.ConfigLoadFailedId)
		reportError(stderr, err, opts.verbose)
		return nil, nil, &ExitError{Code: 1}
	}
	return cfg, logger, nil
}

// configure loads the configuration and builds the logger without
// reporting failures. Logs always go to stderr; stdout is reserved for
// command output.
func configure(cmd *cobra.Command, opts *rootOptions) (*config.Config, *log.Logger, error) {
	cfg, path, err := config.NewProvider().Load(cmd.Context(), config.LoadOptions{ConfigFilePath: opts.cfgFile})
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Log.Level
	if opts.verbose {
		level = config.LogLevelDebug
	}
	logger, err := logging.New(cmd.ErrOrStderr(), string(level), string(cfg.Log.Format))
	if err != nil {
		return nil, nil, err
	}
	if path != "" {
		logger.Debug("configuration loaded", "path", path)
	} else {
		logger.Debug("no configuration file, using defaults")
	}
	return cfg, logger, nil
}

// reportError writes err to w the way the CLI displays failures.
func reportError(w io.Writer, err error, verbose bool) {
	fmt.Fprintln(w, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))
}

// renderIssue writes the catalog entry for id. Rendering failures are
// ignored; the caller still reports the underlying error.
func renderIssue(w io.Writer, id issue.Id) {
	rendered, err := issue.Get(id).Render("")
	if err != nil {
		return
	}
	fmt.Fprint(w, rendered)
}

// renderIssueOf writes the catalog entry attached to err, if any.
func renderIssueOf(w io.Writer, err error) {
	i, ok := issue.IssueOf(err)
	if !ok {
		return
	}
	if rendered, rerr := i.Render(""); rerr == nil {
		fmt.Fprint(w, rendered)
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
