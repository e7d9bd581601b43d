// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/ptcrun/ptc/internal/issue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Parallel()

	cfg, path, err := NewProvider().Load(t.Context(), LoadOptions{ConfigDirPath: t.TempDir()})
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_CUEFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.cue"), `
tools_dir: "/opt/tools"
process: runtime: "virtual"
log: {
	level:  "debug"
	format: "json"
}
serve: max_script_bytes: 2048
`)

	cfg, path, err := NewProvider().Load(t.Context(), LoadOptions{ConfigDirPath: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.cue"), path)
	assert.Equal(t, "/opt/tools", cfg.ToolsDir)
	assert.Equal(t, RuntimeVirtual, cfg.Process.Runtime)
	assert.Equal(t, DefaultShell, cfg.Process.Shell)
	assert.Equal(t, LogLevelDebug, cfg.Log.Level)
	assert.Equal(t, LogFormatJSON, cfg.Log.Format)
	assert.Equal(t, int64(2048), cfg.Serve.MaxScriptBytes)
	assert.Equal(t, DefaultServeAddress, cfg.Serve.Address)
}

func TestLoad_TOMLFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.toml"), `
tools_dir = "tools"

[process]
shell = "sh"

[serve]
address = "0.0.0.0:2200"
`)

	cfg, path, err := NewProvider().Load(t.Context(), LoadOptions{ConfigDirPath: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml"), path)
	assert.Equal(t, "tools", cfg.ToolsDir)
	assert.Equal(t, "sh", cfg.Process.Shell)
	assert.Equal(t, RuntimeNative, cfg.Process.Runtime)
	assert.Equal(t, "0.0.0.0:2200", cfg.Serve.Address)
}

func TestLoad_CUEPreferredOverTOML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.cue"), `tools_dir: "from-cue"`)
	writeFile(t, filepath.Join(dir, "config.toml"), `tools_dir = "from-toml"`)

	cfg, _, err := NewProvider().Load(t.Context(), LoadOptions{ConfigDirPath: dir})
	require.NoError(t, err)
	assert.Equal(t, "from-cue", cfg.ToolsDir)
}

func TestLoad_SchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown runtime", "config.cue", `process: runtime: "container"`},
		{"unknown key", "config.cue", `colors: true`},
		{"negative max script bytes", "config.cue", `serve: max_script_bytes: -1`},
		{"cue syntax", "config.cue", `tools_dir: `},
		{"toml unknown level", "config.toml", "[log]\nlevel = \"loud\"\n"},
		{"toml syntax", "config.toml", "tools_dir = \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, tt.file), tt.content)

			_, _, err := NewProvider().Load(t.Context(), LoadOptions{ConfigDirPath: dir})
			require.Error(t, err)

			var ae *issue.ActionableError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, "load configuration", ae.Operation)
			assert.NotEmpty(t, ae.Suggestions)
		})
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "nope.cue")
	_, _, err := NewProvider().Load(t.Context(), LoadOptions{ConfigFilePath: missing})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_ExplicitTOMLFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ptc.toml")
	writeFile(t, path, "[log]\nformat = \"logfmt\"\n")

	cfg, loaded, err := NewProvider().Load(t.Context(), LoadOptions{ConfigFilePath: path})
	require.NoError(t, err)
	assert.Equal(t, path, loaded)
	assert.Equal(t, LogFormatLogfmt, cfg.Log.Format)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.cue"), `process: runtime: "native"`)
	t.Setenv("PTC_PROCESS_RUNTIME", "virtual")
	t.Setenv("PTC_SERVE_MAX_SCRIPT_BYTES", "4096")

	cfg, _, err := NewProvider().Load(t.Context(), LoadOptions{ConfigDirPath: dir})
	require.NoError(t, err)
	assert.Equal(t, RuntimeVirtual, cfg.Process.Runtime)
	assert.Equal(t, int64(4096), cfg.Serve.MaxScriptBytes)
}

func TestLoad_InvalidEnvironmentValue(t *testing.T) {
	t.Setenv("PTC_LOG_LEVEL", "chatty")

	_, _, err := NewProvider().Load(t.Context(), LoadOptions{ConfigDirPath: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), `invalid log level "chatty"`)
}

func TestLoad_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, _, err := NewProvider().Load(ctx, LoadOptions{ConfigDirPath: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "canceled")
}

func TestFilePath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path, exists, err := FilePath(LoadOptions{ConfigDirPath: dir})
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, filepath.Join(dir, "config.cue"), path)

	writeFile(t, filepath.Join(dir, "config.toml"), "")
	path, exists, err = FilePath(LoadOptions{ConfigDirPath: dir})
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, filepath.Join(dir, "config.toml"), path)
}

func TestConfigDir_Override(t *testing.T) {
	dir := t.TempDir()
	SetConfigDirOverride(dir)
	t.Cleanup(Reset)

	got, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestConfigDir_XDG(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("XDG lookup is not used on Windows")
	}
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	got, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(xdg, AppName), got)
}

func TestGenerateCUE_RoundTrips(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Process.Runtime = RuntimeVirtual
	cfg.Serve.HostKeyPath = "/keys/host"

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.cue"), GenerateCUE(cfg))

	loaded, _, err := NewProvider().Load(t.Context(), LoadOptions{ConfigDirPath: dir})
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestConfig_IsValid(t *testing.T) {
	t.Parallel()

	valid, errs := DefaultConfig().IsValid()
	assert.True(t, valid)
	assert.Empty(t, errs)

	cfg := DefaultConfig()
	cfg.ToolsDir = "  "
	cfg.Process.Runtime = "container"
	cfg.Serve.MaxScriptBytes = 0
	valid, errs = cfg.IsValid()
	require.False(t, valid)
	require.Len(t, errs, 1)

	var invalid *InvalidConfigError
	require.ErrorAs(t, errs[0], &invalid)
	assert.Len(t, invalid.FieldErrors, 3)
	assert.ErrorIs(t, errs[0], ErrInvalidConfig)
	assert.ErrorIs(t, invalid.FieldErrors[1], ErrInvalidRuntimeMode)
}
