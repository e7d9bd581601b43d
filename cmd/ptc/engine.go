// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"os/exec"

	"github.com/charmbracelet/log"

	"github.com/ptcrun/ptc/internal/capabilities/builtin"
	"github.com/ptcrun/ptc/internal/capability"
	"github.com/ptcrun/ptc/internal/config"
	"github.com/ptcrun/ptc/internal/engine"
	"github.com/ptcrun/ptc/internal/progress"
)

// engineFactory builds engines over the built-in catalog. Each call gets a
// fresh Registry, so resolutions never leak between independent runs.
type engineFactory struct {
	catalog  *capability.Catalog
	toolsDir string
	runner   capability.Runner
	logger   *log.Logger
}

// newEngineFactory resolves the tools directory and fallback runner from
// cfg. A non-empty toolsDir overrides the configured one.
func newEngineFactory(cfg *config.Config, toolsDir string, logger *log.Logger) *engineFactory {
	if toolsDir == "" {
		toolsDir = cfg.ToolsDir
	}
	return &engineFactory{
		catalog:  builtin.Catalog(),
		toolsDir: toolsDir,
		runner:   runnerFor(cfg.Process),
		logger:   logger,
	}
}

// runnerFor picks how fallback scripts run.
func runnerFor(p config.ProcessConfig) capability.Runner {
	if p.Runtime == config.RuntimeVirtual {
		return capability.VirtualRunner{}
	}
	return capability.ShellRunner{Shell: p.Shell}
}

// shellAvailable reports whether fallback scripts can be spawned. The
// virtual runtime needs no external shell.
func (f *engineFactory) shellAvailable() bool {
	sr, ok := f.runner.(capability.ShellRunner)
	if !ok {
		return true
	}
	shell := sr.Shell
	if shell == "" {
		shell = capability.DefaultShell
	}
	_, err := exec.LookPath(shell)
	return err == nil
}

func (f *engineFactory) registry() *capability.Registry {
	return capability.NewRegistry(
		capability.WithNative(f.catalog),
		capability.WithToolsDir(f.toolsDir),
		capability.WithRunner(f.runner),
		capability.WithLogger(f.logger),
	)
}

// New builds an engine whose progress events go to sink.
func (f *engineFactory) New(sink progress.Sink) (*engine.Engine, error) {
	return engine.New(f.registry(),
		engine.WithLogger(f.logger),
		engine.WithProgressSink(sink),
	), nil
}
