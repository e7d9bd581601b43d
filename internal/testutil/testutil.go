// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Stopper is an interface for types that have a Stop method returning an error.
// This is commonly used for server types.
type Stopper interface {
	Stop() error
}

// WriteFile writes content to path, creating parent directories.
// The test fails immediately if either step fails.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// WriteTool writes a fallback capability script at
// <toolsDir>/<namespace>/<method>.sh and returns its path.
func WriteTool(t testing.TB, toolsDir, namespace, method, body string) string {
	t.Helper()
	path := filepath.Join(toolsDir, namespace, method+".sh")
	WriteFile(t, path, body)
	return path
}

// MustStop stops the given Stopper (typically a server).
// Unlike a failed setup step, this logs errors but doesn't fail the test,
// as shutdown errors during cleanup are typically non-fatal.
func MustStop(t testing.TB, s Stopper) {
	t.Helper()
	if err := s.Stop(); err != nil {
		t.Logf("warning: stop returned error: %v", err)
	}
}
