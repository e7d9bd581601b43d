// SPDX-License-Identifier: MPL-2.0

// Package sshserver provides the SSH host driver behind `ptc serve`, built on Wish.
//
// Each session sends a script on stdin and receives the run's Result as JSON on stdout,
// with progress events streamed to stderr as JSON lines. The session's exit status is the
// Result's exit code. Sessions authenticate with a shared token passed as the SSH password,
// and every session gets its own engine and capability registry.
package sshserver
