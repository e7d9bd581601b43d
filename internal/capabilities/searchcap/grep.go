// SPDX-License-Identifier: MPL-2.0

package searchcap

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	defaultMaxResults = 100
	// binarySniffLen is how much of a file is checked for NUL bytes.
	binarySniffLen = 8000
)

var errEnoughMatches = errors.New("max results reached")

type (
	// GrepInput is the input of search.grep.
	GrepInput struct {
		Pattern string `json:"pattern" validate:"required"`
		Path    string `json:"path,omitempty"`
		// Recursive defaults to true.
		Recursive  *bool `json:"recursive,omitempty"`
		IgnoreCase bool  `json:"ignoreCase,omitempty"`
		// Regex defaults to true; false searches for the literal pattern.
		Regex      *bool `json:"regex,omitempty"`
		MaxResults int   `json:"maxResults,omitempty" validate:"gte=0" jsonschema:"default=100"`
		// Include and Exclude are glob patterns matched against file names.
		Include string `json:"include,omitempty"`
		Exclude string `json:"exclude,omitempty"`
	}

	// Match is one matching line.
	Match struct {
		File    string `json:"file"`
		Line    int    `json:"line"`
		Content string `json:"content"`
		Column  int    `json:"column,omitempty"`
	}

	// GrepOutput is the output of search.grep.
	GrepOutput struct {
		Success bool    `json:"success"`
		Matches []Match `json:"matches"`
		Count   int     `json:"count"`
		Error   string  `json:"error,omitempty"`
	}
)

// Grep searches a file, or the files under a directory, line by line. Every
// occurrence on a line is a separate match. Binary files, unreadable files
// and .git directories are skipped.
func Grep(ctx context.Context, in GrepInput) (GrepOutput, error) {
	out := GrepOutput{Matches: []Match{}}

	re, err := compilePattern(in.Pattern, in.IgnoreCase, in.Regex == nil || *in.Regex)
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}
	for _, g := range []string{in.Include, in.Exclude} {
		if g != "" && !doublestar.ValidatePattern(g) {
			out.Error = "invalid glob pattern: " + g
			return out, nil
		}
	}

	root := in.Path
	if root == "" {
		root = "."
	}
	maxResults := in.MaxResults
	if maxResults == 0 {
		maxResults = defaultMaxResults
	}
	recursive := in.Recursive == nil || *in.Recursive

	g := &grepper{re: re, include: in.Include, exclude: in.Exclude, max: maxResults}

	info, err := os.Stat(root)
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}
	if !info.IsDir() {
		g.searchFile(root)
	} else {
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() {
				if path != root && (!recursive || d.Name() == ".git") {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !g.wants(d.Name()) {
				return nil
			}
			return g.searchFile(path)
		})
		if err != nil && !errors.Is(err, errEnoughMatches) {
			out.Error = err.Error()
			return out, nil
		}
	}

	out.Success = true
	out.Matches = g.matches
	out.Count = len(g.matches)
	return out, nil
}

func compilePattern(pattern string, ignoreCase, isRegex bool) (*regexp.Regexp, error) {
	if !isRegex {
		pattern = regexp.QuoteMeta(pattern)
	}
	if ignoreCase {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

type grepper struct {
	re               *regexp.Regexp
	include, exclude string
	max              int
	matches          []Match
}

func (g *grepper) wants(name string) bool {
	if g.include != "" {
		if ok, _ := doublestar.Match(g.include, name); !ok {
			return false
		}
	}
	if g.exclude != "" {
		if ok, _ := doublestar.Match(g.exclude, name); ok {
			return false
		}
	}
	return true
}

// searchFile appends the matches in path. It returns errEnoughMatches once
// the limit is reached; read failures skip the file.
func (g *grepper) searchFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	if bytes.IndexByte(data[:min(len(data), binarySniffLen)], 0) >= 0 {
		return nil
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := sc.Text()
		for _, loc := range g.re.FindAllStringIndex(line, -1) {
			g.matches = append(g.matches, Match{
				File:    path,
				Line:    lineNo,
				Content: strings.TrimSpace(line),
				Column:  loc[0] + 1,
			})
			if len(g.matches) >= g.max {
				return errEnoughMatches
			}
		}
	}
	return nil
}
