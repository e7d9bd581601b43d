// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ptcrun/ptc/internal/config"
	"github.com/ptcrun/ptc/internal/engine"
	"github.com/ptcrun/ptc/internal/issue"
	"github.com/ptcrun/ptc/internal/progress"
	"github.com/ptcrun/ptc/internal/sshserver"
)

const hostKeyFileName = "ssh_host_ed25519"

type serveOptions struct {
	address  string
	hostKey  string
	token    string
	toolsDir string
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept scripts over SSH",
		Long: `Accept scripts over SSH.

Each SSH session sends a script on stdin and receives the result document
on stdout, progress lines on stderr and the run's exit status. Sessions
authenticate with a password equal to the server token; a random token is
generated and printed when --token is not set.

The session command may be empty or "run" to execute a script, or
"capabilities" to list what scripts can call.`,
		Example: `  ptc serve --address localhost:2222
  ssh -p 2222 ptc@localhost < task.js`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.address, "address", "", "host:port to listen on (overrides serve.address)")
	cmd.Flags().StringVar(&opts.hostKey, "host-key", "", "SSH host key path, generated when missing (overrides serve.host_key_path)")
	cmd.Flags().StringVar(&opts.token, "token", "", "password clients must present (random when empty)")
	cmd.Flags().StringVar(&opts.toolsDir, "tools-dir", "", "directory of fallback capability scripts (overrides tools_dir)")

	return cmd
}

func serve(cmd *cobra.Command, root *rootOptions, opts *serveOptions) error {
	cfg, logger, err := loadConfig(cmd, root)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	stderr := cmd.ErrOrStderr()

	address := cfg.Serve.Address
	if opts.address != "" {
		address = opts.address
	}
	hostKey, err := hostKeyPath(cfg, opts.hostKey)
	if err != nil {
		return err
	}

	factory := newEngineFactory(cfg, opts.toolsDir, logger)
	srv, err := sshserver.New(sshserver.Config{
		Address:        address,
		HostKeyPath:    hostKey,
		Token:          opts.token,
		MaxScriptBytes: cfg.Serve.MaxScriptBytes,
		Logger:         logger,
		NewEngine: func(sink progress.Sink) (*engine.Engine, error) {
			return factory.New(progress.MultiSink(sink, progress.NewLogSink(logger)))
		},
	})
	if err != nil {
		return err
	}

	if err := srv.Start(ctx); err != nil {
		err = issue.NewErrorContext().
			WithOperation("start SSH server").
			WithResource(address).
			WithSuggestion("Choose a free address with --address").
			WithIssue(issue.ServeStartFailedId).
			Wrap(err).
			Build()
		renderIssueOf(stderr, err)
		return err
	}

	fmt.Fprintln(stderr, SuccessStyle.Render("Listening on ")+CmdStyle.Render(srv.Address()))
	fmt.Fprintln(stderr, SubtitleStyle.Render("Token: ")+srv.Token())
	fmt.Fprintln(stderr, VerboseStyle.Render(fmt.Sprintf("Connect with: ssh -p %d ptc@<host> < script.js", srv.Port())))

	select {
	case <-ctx.Done():
		logger.Info("shutting down", "reason", ctx.Err())
	case err, ok := <-srv.Err():
		if ok && err != nil {
			_ = srv.Stop()
			return fmt.Errorf("SSH server failed: %w", err)
		}
	}
	return srv.Stop()
}

// hostKeyPath returns the flag value, the configured path, or a key in
// the config directory, in that order.
func hostKeyPath(cfg *config.Config, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if cfg.Serve.HostKeyPath != "" {
		return cfg.Serve.HostKeyPath, nil
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve host key path: %w", err)
	}
	return filepath.Join(dir, hostKeyFileName), nil
}
