// SPDX-License-Identifier: MPL-2.0

package gitcap

import (
	"context"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5"
)

type (
	// StatusInput is the input of git.status.
	StatusInput struct {
		Path string `json:"path,omitempty" jsonschema:"description=Repository path; defaults to the current directory"`
	}

	// Rename is a staged rename.
	Rename struct {
		Old string `json:"old"`
		New string `json:"new"`
	}

	// StatusOutput is the output of git.status.
	StatusOutput struct {
		IsRepo    bool     `json:"isRepo"`
		Branch    string   `json:"branch"`
		IsClean   bool     `json:"isClean"`
		Modified  []string `json:"modified"`
		Untracked []string `json:"untracked"`
		Staged    []string `json:"staged"`
		Deleted   []string `json:"deleted"`
		Renamed   []Rename `json:"renamed"`
		Error     string   `json:"error,omitempty"`
	}
)

// Status classifies every changed path. The staging code decides staged and
// renamed; the worktree code decides modified and deleted.
func Status(_ context.Context, in StatusInput) (StatusOutput, error) {
	out := StatusOutput{
		IsClean:   true,
		Modified:  []string{},
		Untracked: []string{},
		Staged:    []string{},
		Deleted:   []string{},
		Renamed:   []Rename{},
	}

	repo, err := open(in.Path)
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}
	out.IsRepo = true
	out.Branch = currentBranch(repo)

	wt, err := repo.Worktree()
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}
	status, err := wt.Status()
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}

	for path, fs := range status {
		if fs.Staging == git.Untracked || fs.Worktree == git.Untracked {
			out.Untracked = append(out.Untracked, path)
			continue
		}
		switch fs.Staging {
		case git.Modified, git.Added, git.Deleted, git.Copied:
			out.Staged = append(out.Staged, path)
		case git.Renamed:
			out.Renamed = append(out.Renamed, Rename{Old: fs.Extra, New: path})
		}
		switch fs.Worktree {
		case git.Modified:
			out.Modified = append(out.Modified, path)
		case git.Deleted:
			out.Deleted = append(out.Deleted, path)
		}
	}

	slices.Sort(out.Modified)
	slices.Sort(out.Untracked)
	slices.Sort(out.Staged)
	slices.Sort(out.Deleted)
	slices.SortFunc(out.Renamed, func(a, b Rename) int { return strings.Compare(a.New, b.New) })

	out.IsClean = len(out.Modified)+len(out.Untracked)+len(out.Staged)+len(out.Deleted)+len(out.Renamed) == 0
	return out, nil
}
