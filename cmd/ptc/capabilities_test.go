// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptcrun/ptc/internal/capability"
	"github.com/ptcrun/ptc/internal/issue"
	"github.com/ptcrun/ptc/internal/testutil"
)

func TestCapabilities_ListsNativeAndFallback(t *testing.T) {
	toolsDir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(toolsDir, "notes", "add.sh"), "cat\n")

	stdout, _, err := executeCommand(t, "", "capabilities", "--tools-dir", toolsDir)
	require.NoError(t, err)
	for _, want := range []string{"fs.read", "git.status", "http.fetch", "search.grep", "shell.exec", "notes.add"} {
		assert.Contains(t, stdout, want)
	}
	assert.Contains(t, stdout, filepath.Join(toolsDir, "notes", "add.sh"))
}

func TestCapabilities_Filter(t *testing.T) {
	stdout, _, err := executeCommand(t, "", "capabilities", "git")
	require.NoError(t, err)
	assert.Contains(t, stdout, "git.commit")
	assert.NotContains(t, stdout, "fs.read")
}

func TestCapabilities_Schema(t *testing.T) {
	stdout, _, err := executeCommand(t, "", "capabilities", "--schema", "fs.read")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &schema))
	assert.Equal(t, "fs.read", schema["title"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "path")
}

func TestCapabilities_AllSchemas(t *testing.T) {
	stdout, _, err := executeCommand(t, "", "capabilities", "--schema")
	require.NoError(t, err)

	var schemas map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &schemas))
	assert.Contains(t, schemas, "shell.exec")
	assert.Contains(t, schemas, "git.log")
}

func TestCapabilities_SchemaUnknownKey(t *testing.T) {
	_, _, err := executeCommand(t, "", "capabilities", "--schema", "nope.missing")
	require.Error(t, err)

	var ae *issue.ActionableError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "describe capability", ae.Operation)
	assert.Equal(t, issue.CapabilityNotFoundId, ae.Issue)
	assert.ErrorIs(t, err, capability.ErrNotFound)

	_, _, err = executeCommand(t, "", "capabilities", "--schema", "../etc")
	require.ErrorAs(t, err, &ae)
	assert.ErrorIs(t, err, capability.ErrInvalidKey)
}

func TestFilterKeys(t *testing.T) {
	t.Parallel()

	keys := []capability.Key{
		capability.NewKey("fs", "read"),
		capability.NewKey("fs", "write"),
		capability.NewKey("git", "log"),
	}
	assert.Equal(t, keys, filterKeys(keys, ""))
	assert.Equal(t, keys[:2], filterKeys(keys, "fs"))
	assert.Equal(t, keys[2:], filterKeys(keys, "git.log"))
	assert.Empty(t, filterKeys(keys, "http"))
}
