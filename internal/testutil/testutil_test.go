// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type stopperFunc func() error

func (f stopperFunc) Stop() error { return f() }

func TestWriteFile_CreatesParents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a", "b", "c.txt")
	WriteFile(t, path, "hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q, want %q", data, "hello")
	}
}

func TestWriteTool(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := WriteTool(t, dir, "notes", "add", "cat\n")

	if want := filepath.Join(dir, "notes", "add.sh"); path != want {
		t.Errorf("WriteTool() = %q, want %q", path, want)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("script not written: %v", err)
	}
}

func TestMustStop(t *testing.T) {
	t.Parallel()

	stopped := false
	MustStop(t, stopperFunc(func() error {
		stopped = true
		return nil
	}))
	if !stopped {
		t.Error("MustStop did not call Stop")
	}

	// Errors are logged, not fatal.
	MustStop(t, stopperFunc(func() error { return errors.New("already stopped") }))
}
