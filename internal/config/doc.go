// SPDX-License-Identifier: MPL-2.0

// Package config handles ptc configuration using Viper with CUE as the primary file format.
//
// Configuration is loaded from $XDG_CONFIG_HOME/ptc (defaulting to ~/.config/ptc), first
// config.cue and then config.toml. CUE files are validated against the embedded
// config_schema.cue before being merged; every key can be overridden with a PTC_* environment
// variable (PTC_TOOLS_DIR, PTC_PROCESS_RUNTIME, PTC_LOG_LEVEL, ...).
package config
