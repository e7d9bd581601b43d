// SPDX-License-Identifier: MPL-2.0

package searchcap

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

type (
	// FindInput is the input of search.find. All filters are optional and
	// combine with AND.
	FindInput struct {
		Path string `json:"path,omitempty"`
		// Name is a glob matched against the entry name.
		Name string `json:"name,omitempty"`
		// Pattern is a regular expression matched against the entry name.
		Pattern string `json:"pattern,omitempty"`
		Type    string `json:"type,omitempty" validate:"omitempty,oneof=f d" jsonschema:"enum=f,enum=d"`
		// MaxDepth limits recursion; entries directly under Path are depth 0.
		MaxDepth *int   `json:"maxDepth,omitempty" validate:"omitempty,gte=0"`
		MinSize  *int64 `json:"minSize,omitempty"`
		MaxSize  *int64 `json:"maxSize,omitempty"`
		// ModifiedAfter and ModifiedBefore are Unix milliseconds.
		ModifiedAfter  *int64 `json:"modifiedAfter,omitempty"`
		ModifiedBefore *int64 `json:"modifiedBefore,omitempty"`
	}

	// FileInfo describes one found entry.
	FileInfo struct {
		Path        string `json:"path"`
		Name        string `json:"name"`
		Size        int64  `json:"size"`
		IsDirectory bool   `json:"isDirectory"`
		Modified    int64  `json:"modified"`
	}

	// FindOutput is the output of search.find.
	FindOutput struct {
		Success bool       `json:"success"`
		Files   []FileInfo `json:"files"`
		Count   int        `json:"count"`
		Error   string     `json:"error,omitempty"`
	}
)

// Find walks Path and returns the entries passing every filter, sorted by
// path. Filters do not stop the walk from descending into directories.
func Find(ctx context.Context, in FindInput) (FindOutput, error) {
	out := FindOutput{Files: []FileInfo{}}

	root := in.Path
	if root == "" {
		root = "."
	}
	if in.Name != "" && !doublestar.ValidatePattern(in.Name) {
		out.Error = "invalid glob pattern: " + in.Name
		return out, nil
	}
	var re *regexp.Regexp
	if in.Pattern != "" {
		var err error
		if re, err = regexp.Compile(in.Pattern); err != nil {
			out.Error = err.Error()
			return out, nil
		}
	}
	if _, err := os.Stat(root); err != nil {
		out.Error = err.Error()
		return out, nil
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == root {
			return nil
		}

		rel, _ := filepath.Rel(root, path)
		depth := strings.Count(filepath.ToSlash(rel), "/")
		if in.MaxDepth != nil && depth > *in.MaxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !matches(in, re, d) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !withinLimits(in, info) {
			return nil
		}
		out.Files = append(out.Files, FileInfo{
			Path:        path,
			Name:        d.Name(),
			Size:        info.Size(),
			IsDirectory: d.IsDir(),
			Modified:    info.ModTime().UnixMilli(),
		})
		return nil
	})
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}

	slices.SortFunc(out.Files, func(a, b FileInfo) int { return strings.Compare(a.Path, b.Path) })
	out.Success = true
	out.Count = len(out.Files)
	return out, nil
}

func matches(in FindInput, re *regexp.Regexp, d fs.DirEntry) bool {
	switch in.Type {
	case "f":
		if d.IsDir() {
			return false
		}
	case "d":
		if !d.IsDir() {
			return false
		}
	}
	if in.Name != "" {
		if ok, _ := doublestar.Match(in.Name, d.Name()); !ok {
			return false
		}
	}
	return re == nil || re.MatchString(d.Name())
}

func withinLimits(in FindInput, info fs.FileInfo) bool {
	size, modified := info.Size(), info.ModTime().UnixMilli()
	switch {
	case in.MinSize != nil && size < *in.MinSize,
		in.MaxSize != nil && size > *in.MaxSize,
		in.ModifiedAfter != nil && modified < *in.ModifiedAfter,
		in.ModifiedBefore != nil && modified > *in.ModifiedBefore:
		return false
	}
	return true
}
