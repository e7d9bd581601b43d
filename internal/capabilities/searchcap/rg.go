// SPDX-License-Identifier: MPL-2.0

package searchcap

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const rgCommand = "rg"

type (
	// RgInput is the input of search.rg.
	RgInput struct {
		Pattern string `json:"pattern" validate:"required"`
		Path    string `json:"path,omitempty"`
		// Glob is passed to ripgrep's --glob.
		Glob         string `json:"glob,omitempty"`
		IgnoreCase   bool   `json:"ignoreCase,omitempty"`
		FixedStrings bool   `json:"fixedStrings,omitempty"`
		// MaxResults caps matching lines per file and matches overall.
		MaxResults int `json:"maxResults,omitempty" validate:"gte=0" jsonschema:"default=100"`
		// LineNumbers defaults to true; false reports every line as 0.
		LineNumbers *bool `json:"lineNumbers,omitempty"`
		// Type is a ripgrep file type such as "go" or "md".
		Type string `json:"type,omitempty"`
	}

	// rgEvent is one line of `rg --json` output. Only match events are used.
	rgEvent struct {
		Type string `json:"type"`
		Data struct {
			Path       rgText `json:"path"`
			Lines      rgText `json:"lines"`
			LineNumber int    `json:"line_number"`
			Submatches []struct {
				Start int `json:"start"`
			} `json:"submatches"`
		} `json:"data"`
	}

	rgText struct {
		Text string `json:"text"`
	}
)

// Rg searches with the host's ripgrep. A missing rg binary, or any exit
// other than 0 (matches) and 1 (no matches), is reported as success false.
func Rg(ctx context.Context, in RgInput) (GrepOutput, error) {
	return runRg(ctx, rgCommand, in), nil
}

func runRg(ctx context.Context, bin string, in RgInput) GrepOutput {
	out := GrepOutput{Matches: []Match{}}

	path := in.Path
	if path == "" {
		path = "."
	}
	maxResults := in.MaxResults
	if maxResults == 0 {
		maxResults = defaultMaxResults
	}

	args := []string{"--json", "--line-number", "--column"}
	if in.IgnoreCase {
		args = append(args, "--ignore-case")
	}
	if in.FixedStrings {
		args = append(args, "--fixed-strings")
	}
	if in.Glob != "" {
		args = append(args, "--glob", in.Glob)
	}
	if in.Type != "" {
		args = append(args, "--type", in.Type)
	}
	args = append(args, "--max-count", strconv.Itoa(maxResults), "--", in.Pattern, path)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		switch {
		case !errors.As(err, &exitErr):
			out.Error = "failed to execute ripgrep: " + err.Error()
			return out
		case exitErr.ExitCode() != 1:
			out.Error = strings.TrimSpace(stderr.String())
			if out.Error == "" {
				out.Error = fmt.Sprintf("ripgrep exited with code %d", exitErr.ExitCode())
			}
			return out
		}
	}

	lineNumbers := in.LineNumbers == nil || *in.LineNumbers
	sc := bufio.NewScanner(&stdout)
	sc.Buffer(make([]byte, 0, 64*1024), stdout.Len()+1)
	for sc.Scan() && len(out.Matches) < maxResults {
		var ev rgEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil || ev.Type != "match" {
			continue
		}
		file := ev.Data.Path.Text
		if file == "" {
			file = path
		}
		line := ev.Data.LineNumber
		if !lineNumbers {
			line = 0
		}
		content := strings.TrimSpace(ev.Data.Lines.Text)
		for _, sm := range ev.Data.Submatches {
			out.Matches = append(out.Matches, Match{File: file, Line: line, Content: content, Column: sm.Start + 1})
			if len(out.Matches) >= maxResults {
				break
			}
		}
	}

	out.Success = true
	out.Count = len(out.Matches)
	return out
}
