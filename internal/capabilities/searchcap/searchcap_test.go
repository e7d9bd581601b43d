// SPDX-License-Identifier: MPL-2.0

package searchcap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func TestGrep(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"a.go":          "package a\nfunc Foo() {}\n// foo foo\n",
		"b.txt":         "Foo in text\n",
		"sub/c.go":      "func foo() {}\n",
		"bin.dat":       "Foo\x00binary",
		".git/config":   "Foo\n",
		"sub/deep/d.go": "x := Foo(1.5)\n",
	})
	no := false

	tests := []struct {
		name string
		in   GrepInput
		want []Match
	}{
		{
			name: "regex across tree",
			in:   GrepInput{Pattern: `Foo\(`},
			want: []Match{
				{File: "a.go", Line: 2, Content: "func Foo() {}", Column: 6},
				{File: "sub/deep/d.go", Line: 1, Content: "x := Foo(1.5)", Column: 6},
			},
		},
		{
			name: "ignore case with include",
			in:   GrepInput{Pattern: "foo", IgnoreCase: true, Include: "*.go"},
			want: []Match{
				{File: "a.go", Line: 2, Content: "func Foo() {}", Column: 6},
				{File: "a.go", Line: 3, Content: "// foo foo", Column: 4},
				{File: "a.go", Line: 3, Content: "// foo foo", Column: 8},
				{File: "sub/c.go", Line: 1, Content: "func foo() {}", Column: 6},
				{File: "sub/deep/d.go", Line: 1, Content: "x := Foo(1.5)", Column: 6},
			},
		},
		{
			name: "literal pattern",
			in:   GrepInput{Pattern: "1.5)", Regex: &no},
			want: []Match{{File: "sub/deep/d.go", Line: 1, Content: "x := Foo(1.5)", Column: 10}},
		},
		{
			name: "non recursive with exclude",
			in:   GrepInput{Pattern: "Foo", Recursive: &no, Exclude: "*.txt"},
			want: []Match{{File: "a.go", Line: 2, Content: "func Foo() {}", Column: 6}},
		},
		{
			name: "max results",
			in:   GrepInput{Pattern: "foo", IgnoreCase: true, Include: "a.go", MaxResults: 2},
			want: []Match{
				{File: "a.go", Line: 2, Content: "func Foo() {}", Column: 6},
				{File: "a.go", Line: 3, Content: "// foo foo", Column: 4},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			in := tt.in
			in.Path = root
			out, err := Grep(context.Background(), in)
			require.NoError(t, err)
			require.True(t, out.Success, out.Error)

			for i := range tt.want {
				tt.want[i].File = filepath.Join(root, filepath.FromSlash(tt.want[i].File))
			}
			assert.Equal(t, tt.want, out.Matches)
			assert.Equal(t, len(tt.want), out.Count)
		})
	}
}

func TestGrep_SingleFileAndErrors(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{"x.txt": "alpha\nbeta\n"})
	file := filepath.Join(root, "x.txt")

	out, err := Grep(context.Background(), GrepInput{Pattern: "beta", Path: file})
	require.NoError(t, err)
	assert.Equal(t, []Match{{File: file, Line: 2, Content: "beta", Column: 1}}, out.Matches)

	out, err = Grep(context.Background(), GrepInput{Pattern: "(", Path: root})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.Error)
	assert.NotNil(t, out.Matches)

	out, err = Grep(context.Background(), GrepInput{Pattern: "x", Path: filepath.Join(root, "missing")})
	require.NoError(t, err)
	assert.False(t, out.Success)
}

func TestFind(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"a.go":          "package a\n",
		"big.log":       string(make([]byte, 2048)),
		"sub/b.go":      "package b\n",
		"sub/deep/c.go": "package c\n",
	})
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, "a.go"), old, old))

	paths := func(out FindOutput) []string {
		var ps []string
		for _, f := range out.Files {
			rel, err := filepath.Rel(root, f.Path)
			require.NoError(t, err)
			ps = append(ps, filepath.ToSlash(rel))
		}
		return ps
	}
	intp := func(v int) *int { return &v }
	int64p := func(v int64) *int64 { return &v }

	tests := []struct {
		name string
		in   FindInput
		want []string
	}{
		{name: "everything", in: FindInput{}, want: []string{"a.go", "big.log", "sub", "sub/b.go", "sub/deep", "sub/deep/c.go"}},
		{name: "files by glob", in: FindInput{Name: "*.go", Type: "f"}, want: []string{"a.go", "sub/b.go", "sub/deep/c.go"}},
		{name: "directories", in: FindInput{Type: "d"}, want: []string{"sub", "sub/deep"}},
		{name: "regex", in: FindInput{Pattern: `^[ab]\.`}, want: []string{"a.go", "sub/b.go"}},
		{name: "max depth", in: FindInput{Name: "*.go", MaxDepth: intp(1)}, want: []string{"a.go", "sub/b.go"}},
		{name: "min size", in: FindInput{Type: "f", MinSize: int64p(1024)}, want: []string{"big.log"}},
		{name: "modified before", in: FindInput{Type: "f", ModifiedBefore: int64p(time.Now().Add(-time.Hour).UnixMilli())}, want: []string{"a.go"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			in := tt.in
			in.Path = root
			out, err := Find(context.Background(), in)
			require.NoError(t, err)
			require.True(t, out.Success, out.Error)
			assert.Equal(t, tt.want, paths(out))
			assert.Equal(t, len(tt.want), out.Count)
		})
	}

	out, err := Find(context.Background(), FindInput{Path: filepath.Join(root, "missing")})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.NotNil(t, out.Files)
}
