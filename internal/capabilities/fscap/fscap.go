// SPDX-License-Identifier: MPL-2.0

// Package fscap implements the fs.* capabilities: read, write, glob, mkdir
// and delete on the host filesystem.
//
// Like the other built-ins, operations that can fail for ordinary reasons
// (permissions, a path of the wrong type) report success:false with an error
// message instead of faulting. Bad input and glob pattern errors fault.
package fscap

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ptcrun/ptc/internal/capability"
)

// Namespace is the capability namespace of this package.
const Namespace = "fs"

const (
	encodingUTF8   = "utf8"
	encodingBase64 = "base64"
)

type (
	// ReadInput is the input of fs.read.
	ReadInput struct {
		Path     string `json:"path" validate:"required" jsonschema:"description=Path to the file to read"`
		Encoding string `json:"encoding,omitempty" validate:"omitempty,oneof=utf8 base64" jsonschema:"enum=utf8,enum=base64,default=utf8"`
	}

	// ReadOutput is the output of fs.read.
	ReadOutput struct {
		Content string `json:"content"`
		Size    int64  `json:"size"`
		Exists  bool   `json:"exists"`
		// Modified is the modification time in Unix milliseconds.
		Modified *int64 `json:"modified,omitempty"`
	}

	// WriteInput is the input of fs.write.
	WriteInput struct {
		Path     string `json:"path" validate:"required"`
		Content  string `json:"content"`
		Encoding string `json:"encoding,omitempty" validate:"omitempty,oneof=utf8 base64" jsonschema:"enum=utf8,enum=base64,default=utf8"`
		Append   bool   `json:"append,omitempty"`
	}

	// WriteOutput is the output of fs.write.
	WriteOutput struct {
		Success bool   `json:"success"`
		Path    string `json:"path"`
		Size    int    `json:"size"`
		Error   string `json:"error,omitempty"`
	}

	// GlobInput is the input of fs.glob.
	GlobInput struct {
		Pattern  string `json:"pattern" validate:"required" jsonschema:"description=Glob pattern such as **/*.go"`
		Root     string `json:"root,omitempty"`
		Dot      bool   `json:"dot,omitempty"`
		MaxDepth int    `json:"maxDepth,omitempty" validate:"gte=0"`
	}

	// GlobOutput is the output of fs.glob.
	GlobOutput struct {
		Files []string `json:"files"`
		Count int      `json:"count"`
		Root  string   `json:"root"`
	}

	// MkdirInput is the input of fs.mkdir.
	MkdirInput struct {
		Path      string `json:"path" validate:"required"`
		Recursive *bool  `json:"recursive,omitempty" jsonschema:"default=true"`
	}

	// DeleteInput is the input of fs.delete.
	DeleteInput struct {
		Path      string `json:"path" validate:"required"`
		Recursive bool   `json:"recursive,omitempty"`
	}

	// PathOutput is the output of fs.mkdir and fs.delete.
	PathOutput struct {
		Success bool   `json:"success"`
		Path    string `json:"path"`
		Existed bool   `json:"existed"`
		Error   string `json:"error,omitempty"`
	}
)

// Register adds the fs.* capabilities to catalog.
func Register(catalog *capability.Catalog) {
	catalog.Register(capability.Descriptor{
		Key:     capability.NewKey(Namespace, "read"),
		Summary: "Read a file as UTF-8 text or base64",
		Input:   ReadInput{},
		Impl:    capability.Typed(Read),
	})
	catalog.Register(capability.Descriptor{
		Key:     capability.NewKey(Namespace, "write"),
		Summary: "Write or append to a file, creating parent directories",
		Input:   WriteInput{},
		Impl:    capability.Typed(Write),
	})
	catalog.Register(capability.Descriptor{
		Key:     capability.NewKey(Namespace, "glob"),
		Summary: "List files matching a glob pattern",
		Input:   GlobInput{},
		Impl:    capability.Typed(Glob),
	})
	catalog.Register(capability.Descriptor{
		Key:     capability.NewKey(Namespace, "mkdir"),
		Summary: "Create a directory",
		Input:   MkdirInput{},
		Impl:    capability.Typed(Mkdir),
	})
	catalog.Register(capability.Descriptor{
		Key:     capability.NewKey(Namespace, "delete"),
		Summary: "Delete a file or directory",
		Input:   DeleteInput{},
		Impl:    capability.Typed(Delete),
	})
}

// Read returns the content of a regular file. A missing path, or a path that
// is not a regular file, is reported with Exists false.
func Read(_ context.Context, in ReadInput) (ReadOutput, error) {
	info, err := os.Stat(in.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return ReadOutput{}, nil
	}
	if err != nil {
		return ReadOutput{}, fmt.Errorf("failed to stat %s: %w", in.Path, err)
	}
	if !info.Mode().IsRegular() {
		return ReadOutput{}, nil
	}

	data, err := os.ReadFile(in.Path)
	if err != nil {
		return ReadOutput{}, fmt.Errorf("failed to read %s: %w", in.Path, err)
	}

	content := string(data)
	if in.Encoding == encodingBase64 {
		content = base64.StdEncoding.EncodeToString(data)
	}
	modified := info.ModTime().UnixMilli()
	return ReadOutput{
		Content:  content,
		Size:     int64(len(data)),
		Exists:   true,
		Modified: &modified,
	}, nil
}

// Write writes content to a file, creating missing parent directories.
func Write(_ context.Context, in WriteInput) (WriteOutput, error) {
	out := WriteOutput{Path: in.Path}

	data := []byte(in.Content)
	if in.Encoding == encodingBase64 {
		decoded, err := base64.StdEncoding.DecodeString(in.Content)
		if err != nil {
			out.Error = fmt.Sprintf("invalid base64 content: %v", err)
			return out, nil
		}
		data = decoded
	}

	if err := os.MkdirAll(filepath.Dir(in.Path), 0o755); err != nil {
		out.Error = err.Error()
		return out, nil
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if in.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(in.Path, flags, 0o644)
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}
	n, err := f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}

	out.Success = true
	out.Size = n
	return out, nil
}

// Glob lists regular files under root matching pattern, as sorted paths
// relative to root. Dotfiles are skipped unless Dot is set; MaxDepth, when
// positive, limits the number of path segments.
func Glob(_ context.Context, in GlobInput) (GlobOutput, error) {
	root := in.Root
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return GlobOutput{}, fmt.Errorf("glob failed: %w", err)
	}

	matches, err := doublestar.Glob(os.DirFS(absRoot), filepath.ToSlash(in.Pattern),
		doublestar.WithFilesOnly(), doublestar.WithNoFollow())
	if err != nil {
		return GlobOutput{}, fmt.Errorf("glob failed: %w", err)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		segments := strings.Split(m, "/")
		if in.MaxDepth > 0 && len(segments) > in.MaxDepth {
			continue
		}
		if !in.Dot && slices.ContainsFunc(segments, isHidden) {
			continue
		}
		files = append(files, filepath.FromSlash(m))
	}
	slices.Sort(files)

	return GlobOutput{Files: files, Count: len(files), Root: absRoot}, nil
}

// Mkdir creates a directory, with parents unless Recursive is explicitly false.
func Mkdir(_ context.Context, in MkdirInput) (PathOutput, error) {
	out := PathOutput{Path: in.Path}

	info, err := os.Stat(in.Path)
	if err == nil {
		if !info.IsDir() {
			out.Error = "path exists but is not a directory: " + in.Path
			return out, nil
		}
		out.Success = true
		out.Existed = true
		return out, nil
	}

	if in.Recursive == nil || *in.Recursive {
		err = os.MkdirAll(in.Path, 0o755)
	} else {
		err = os.Mkdir(in.Path, 0o755)
	}
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}
	out.Success = true
	return out, nil
}

// Delete removes a file or directory. Deleting a missing path succeeds with
// Existed false; a non-empty directory requires Recursive.
func Delete(_ context.Context, in DeleteInput) (PathOutput, error) {
	out := PathOutput{Path: in.Path}

	if _, err := os.Lstat(in.Path); errors.Is(err, fs.ErrNotExist) {
		out.Success = true
		return out, nil
	}
	out.Existed = true

	var err error
	if in.Recursive {
		err = os.RemoveAll(in.Path)
	} else {
		err = os.Remove(in.Path)
	}
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}
	out.Success = true
	return out, nil
}

func isHidden(segment string) bool {
	return strings.HasPrefix(segment, ".") && segment != "." && segment != ".."
}
