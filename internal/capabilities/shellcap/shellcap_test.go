// SPDX-License-Identifier: MPL-2.0

package shellcap

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExec(t *testing.T) {
	requireSh(t)
	t.Parallel()

	tests := []struct {
		name string
		in   ExecInput
		want ExecOutput
	}{
		{
			name: "success",
			in:   ExecInput{Command: "sh", Args: []string{"-c", "echo out; echo err >&2"}},
			want: ExecOutput{Success: true, Stdout: "out\n", Stderr: "err\n", Output: "out\n\nerr\n"},
		},
		{
			name: "non-zero exit is not a fault",
			in:   ExecInput{Command: "sh", Args: []string{"-c", "exit 3"}},
			want: ExecOutput{Code: 3},
		},
		{
			name: "environment and working directory",
			in:   ExecInput{Command: "sh", Args: []string{"-c", `printf '%s' "$GREETING"; pwd >&2`}, Env: map[string]string{"GREETING": "hi"}, Cwd: "/"},
			want: ExecOutput{Success: true, Stdout: "hi", Stderr: "/\n", Output: "hi\n/\n"},
		},
		{
			name: "output is capped",
			in:   ExecInput{Command: "sh", Args: []string{"-c", "printf 'abcdefghij'"}, MaxOutput: 4},
			want: ExecOutput{Success: true, Stdout: "abcd" + truncatedMarker, Output: "abcd" + truncatedMarker},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := Exec(context.Background(), tt.in)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, out.ExecutionTime, int64(0))
			out.ExecutionTime = 0
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestExec_Timeout(t *testing.T) {
	requireSh(t)
	t.Parallel()

	out, err := Exec(context.Background(), ExecInput{Command: "sh", Args: []string{"-c", "sleep 5"}, Timeout: 50})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, -1, out.Code)
	assert.Contains(t, out.Error, "timed out")
}

func TestExec_SpawnFailure(t *testing.T) {
	t.Parallel()

	out, err := Exec(context.Background(), ExecInput{Command: "definitely-not-a-real-command-ptc"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, -1, out.Code)
	assert.True(t, strings.Contains(out.Error, "executable file not found"), out.Error)
}

func TestCappedBuffer(t *testing.T) {
	t.Parallel()

	b := newCappedBuffer(5)
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = b.Write([]byte("defg"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcde"+truncatedMarker, b.String())
}
