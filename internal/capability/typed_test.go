// SPDX-License-Identifier: MPL-2.0

package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readInput struct {
	Path   string `json:"path" validate:"required"`
	Offset int    `json:"offset,omitempty" validate:"gte=0"`
}

func TestTyped(t *testing.T) {
	t.Parallel()

	c := Typed(func(_ context.Context, in readInput) (map[string]any, error) {
		return map[string]any{"path": in.Path, "offset": in.Offset}, nil
	})

	tests := []struct {
		name    string
		input   any
		want    map[string]any
		wantErr string
	}{
		{
			name:  "decodes JSON-like map",
			input: map[string]any{"path": "a.txt", "offset": float64(3)},
			want:  map[string]any{"path": "a.txt", "offset": 3},
		},
		{
			name:  "weakly typed numbers",
			input: map[string]any{"path": "a.txt", "offset": "12"},
			want:  map[string]any{"path": "a.txt", "offset": 12},
		},
		{
			name:  "already typed",
			input: readInput{Path: "b.txt"},
			want:  map[string]any{"path": "b.txt", "offset": 0},
		},
		{
			name:    "missing required field",
			input:   map[string]any{"offset": 1},
			wantErr: "path failed required",
		},
		{
			name:    "rule with parameter",
			input:   map[string]any{"path": "a", "offset": -1},
			wantErr: "offset failed gte=0",
		},
		{
			name:    "nil input still validated",
			input:   nil,
			wantErr: "path failed required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := c(context.Background(), tt.input)
			if tt.wantErr != "" {
				require.ErrorIs(t, err, ErrInvalidInput)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestDecodeInput_NonStruct(t *testing.T) {
	t.Parallel()

	got, err := DecodeInput[[]string]([]any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	n, err := DecodeInput[int](float64(4))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestKey(t *testing.T) {
	t.Parallel()

	k, err := ParseKey("fs.read")
	require.NoError(t, err)
	assert.Equal(t, NewKey("fs", "read"), k)
	assert.Equal(t, "fs.read", k.String())

	for _, bad := range []string{"fs", "fs.", ".read", "a.b/c", "1fs.read"} {
		_, err := ParseKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}
