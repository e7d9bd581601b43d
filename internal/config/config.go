// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/ptcrun/ptc/internal/issue"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "ptc"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the primary config file extension.
	ConfigFileExt = "cue"
	// TOMLFileExt is the alternative config file extension.
	TOMLFileExt = "toml"
	// EnvPrefix prefixes environment overrides, e.g. PTC_PROCESS_RUNTIME.
	EnvPrefix = "PTC"

	// maxConfigFileSize guards against pathological config files.
	maxConfigFileSize = 1 << 20
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the ptc configuration directory: %APPDATA%\ptc on Windows,
// $XDG_CONFIG_HOME/ptc elsewhere (defaulting to ~/.config/ptc).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string
	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// FilePath returns the config file Load would read for opts and whether it
// exists. When no file exists the default CUE location is returned.
func FilePath(opts LoadOptions) (string, bool, error) {
	if opts.ConfigFilePath != "" {
		return opts.ConfigFilePath, fileExists(opts.ConfigFilePath), nil
	}

	cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
	if err != nil {
		return "", false, err
	}
	cuePath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
	if fileExists(cuePath) {
		return cuePath, true, nil
	}
	tomlPath := filepath.Join(cfgDir, ConfigFileName+"."+TOMLFileExt)
	if fileExists(tomlPath) {
		return tomlPath, true, nil
	}
	return cuePath, false, nil
}

// loadWithOptions performs option-driven config loading. Precedence, lowest
// first: defaults, config file, PTC_* environment variables.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("tools_dir", defaults.ToolsDir)
	v.SetDefault("process.runtime", defaults.Process.Runtime)
	v.SetDefault("process.shell", defaults.Process.Shell)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("serve.address", defaults.Serve.Address)
	v.SetDefault("serve.host_key_path", defaults.Serve.HostKeyPath)
	v.SetDefault("serve.max_script_bytes", defaults.Serve.MaxScriptBytes)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, exists, err := FilePath(opts)
	if err != nil {
		return nil, "", err
	}

	resolvedPath := ""
	switch {
	case exists:
		if err := loadFileIntoViper(v, path); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE or TOML syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("Use 'ptc config show' to see the effective configuration").
				Wrap(err).
				Build()
		}
		resolvedPath = path
	case opts.ConfigFilePath != "":
		return nil, "", issue.NewErrorContext().
			WithOperation("load configuration").
			WithResource(opts.ConfigFilePath).
			WithSuggestion("Verify the file path is correct").
			WithSuggestion("Check that the file exists and is readable").
			Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
			Build()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if valid, errs := cfg.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Check PTC_* environment variables for typos").
			WithSuggestion("Run 'ptc config show' to inspect the merged values").
			Wrap(errs[0]).
			Build()
	}

	return &cfg, resolvedPath, nil
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

func loadFileIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return fmt.Errorf("config file %s is too large (%d bytes, max %d)", path, len(data), maxConfigFileSize)
	}

	var configMap map[string]any
	if strings.EqualFold(filepath.Ext(path), "."+TOMLFileExt) {
		configMap, err = decodeTOML(data)
	} else {
		configMap, err = decodeCUE(data, path)
	}
	if err != nil {
		return err
	}

	// Merge into Viper (preserves defaults, allows env overrides)
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// decodeCUE validates data against the #Config schema and decodes it.
// Concrete(false) because every config field is optional.
func decodeCUE(data []byte, path string) (map[string]any, error) {
	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return nil, fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return nil, formatCUEError(userValue.Err())
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return nil, formatCUEError(err)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return nil, formatCUEError(err)
	}
	return configMap, nil
}

// decodeTOML decodes data and checks it against the same schema as CUE files,
// so both formats reject unknown keys and bad values alike.
func decodeTOML(data []byte) (map[string]any, error) {
	var configMap map[string]any
	if err := toml.Unmarshal(data, &configMap); err != nil {
		return nil, fmt.Errorf("invalid TOML: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(configSchema).LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(ctx.Encode(configMap))
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return nil, formatCUEError(err)
	}
	return configMap, nil
}

func formatCUEError(err error) error {
	return fmt.Errorf("%s", strings.TrimSpace(cueerrors.Details(err, nil)))
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// GenerateCUE renders cfg as a config.cue document.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// ptc configuration file\n\n")
	fmt.Fprintf(&sb, "tools_dir: %q\n", cfg.ToolsDir)

	sb.WriteString("\nprocess: {\n")
	fmt.Fprintf(&sb, "\truntime: %q\n", cfg.Process.Runtime)
	fmt.Fprintf(&sb, "\tshell:   %q\n", cfg.Process.Shell)
	sb.WriteString("}\n")

	sb.WriteString("\nlog: {\n")
	fmt.Fprintf(&sb, "\tlevel:  %q\n", cfg.Log.Level)
	fmt.Fprintf(&sb, "\tformat: %q\n", cfg.Log.Format)
	sb.WriteString("}\n")

	sb.WriteString("\nserve: {\n")
	fmt.Fprintf(&sb, "\taddress:          %q\n", cfg.Serve.Address)
	if cfg.Serve.HostKeyPath != "" {
		fmt.Fprintf(&sb, "\thost_key_path:    %q\n", cfg.Serve.HostKeyPath)
	}
	fmt.Fprintf(&sb, "\tmax_script_bytes: %d\n", cfg.Serve.MaxScriptBytes)
	sb.WriteString("}\n")

	return sb.String()
}
