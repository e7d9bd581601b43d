// SPDX-License-Identifier: MPL-2.0

package gitcap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// WorkingTree as DiffInput.From compares the index with the working tree.
const WorkingTree = "WORKING"

// gitDateLayout matches git's %ai format.
const gitDateLayout = "2006-01-02 15:04:05 -0700"

var diffHeader = regexp.MustCompile(`(?m)^diff --git `)

type (
	// DiffInput is the input of git.diff.
	DiffInput struct {
		Path string `json:"path,omitempty"`
		// From defaults to HEAD. Without To the diff is taken against the
		// working tree.
		From string `json:"from,omitempty"`
		To   string `json:"to,omitempty"`
		File string `json:"file,omitempty"`
	}

	// DiffOutput is the output of git.diff.
	DiffOutput struct {
		Success      bool   `json:"success"`
		Diff         string `json:"diff"`
		HasChanges   bool   `json:"hasChanges"`
		FilesChanged int    `json:"filesChanged"`
		Error        string `json:"error,omitempty"`
	}

	// CommitInput is the input of git.commit.
	CommitInput struct {
		Path    string `json:"path,omitempty"`
		Message string `json:"message" validate:"required"`
		// All stages every change, including untracked files.
		All   bool     `json:"all,omitempty"`
		Files []string `json:"files,omitempty"`
	}

	// CommitOutput is the output of git.commit.
	CommitOutput struct {
		Success bool   `json:"success"`
		Hash    string `json:"hash,omitempty"`
		Error   string `json:"error,omitempty"`
	}

	// LogInput is the input of git.log.
	LogInput struct {
		Path  string `json:"path,omitempty"`
		Limit int    `json:"limit,omitempty" validate:"gte=0" jsonschema:"default=10"`
		File  string `json:"file,omitempty"`
		// Stat lists the files touched by each commit.
		Stat bool `json:"stat,omitempty"`
	}

	// LogEntry is one commit in a git.log result.
	LogEntry struct {
		Hash      string   `json:"hash"`
		ShortHash string   `json:"shortHash"`
		Author    string   `json:"author"`
		Email     string   `json:"email"`
		Date      string   `json:"date"`
		Message   string   `json:"message"`
		Files     []string `json:"files,omitempty"`
	}

	// LogOutput is the output of git.log.
	LogOutput struct {
		Success bool       `json:"success"`
		Commits []LogEntry `json:"commits"`
		Total   int        `json:"total,omitempty"`
		Error   string     `json:"error,omitempty"`
	}
)

// Diff produces a unified diff. Commit-to-commit diffs are computed with
// go-git; diffs involving the working tree are delegated to the git CLI.
func Diff(ctx context.Context, in DiffInput) (DiffOutput, error) {
	from := in.From
	if from == "" {
		from = "HEAD"
	}

	var (
		text string
		err  error
	)
	if in.To != "" {
		text, err = commitDiff(in.Path, from, in.To, in.File)
	} else {
		text, err = worktreeDiff(ctx, in.Path, from, in.File)
	}
	if err != nil {
		return DiffOutput{Error: err.Error()}, nil
	}

	out := DiffOutput{Success: true, Diff: text}
	if strings.TrimSpace(text) != "" {
		out.HasChanges = true
		out.FilesChanged = len(diffHeader.FindAllStringIndex(text, -1))
	}
	return out, nil
}

func commitDiff(path, from, to, file string) (string, error) {
	repo, err := open(path)
	if err != nil {
		return "", err
	}
	fromCommit, err := resolveCommit(repo, from)
	if err != nil {
		return "", err
	}
	toCommit, err := resolveCommit(repo, to)
	if err != nil {
		return "", err
	}
	fromTree, err := fromCommit.Tree()
	if err != nil {
		return "", err
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return "", err
	}

	changes, err := object.DiffTree(fromTree, toTree)
	if err != nil {
		return "", err
	}
	if file != "" {
		filtered := changes[:0]
		for _, c := range changes {
			if c.From.Name == file || c.To.Name == file {
				filtered = append(filtered, c)
			}
		}
		changes = filtered
	}
	if len(changes) == 0 {
		return "", nil
	}

	patch, err := changes.Patch()
	if err != nil {
		return "", err
	}
	return patch.String(), nil
}

func worktreeDiff(ctx context.Context, path, from, file string) (string, error) {
	if path == "" {
		path = "."
	}
	args := []string{"-C", path, "diff"}
	if from != WorkingTree {
		args = append(args, from)
	}
	if file != "" {
		args = append(args, "--", file)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", errors.New(msg)
		}
		return "", err
	}
	return stdout.String(), nil
}

// Commit stages the requested paths and records a commit. The author comes
// from the repository or user git configuration.
func Commit(_ context.Context, in CommitInput) (CommitOutput, error) {
	repo, err := open(in.Path)
	if err != nil {
		return CommitOutput{Error: err.Error()}, nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return CommitOutput{Error: err.Error()}, nil
	}

	switch {
	case in.All:
		if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
			return CommitOutput{Error: "failed to stage files: " + err.Error()}, nil
		}
	case len(in.Files) > 0:
		for _, f := range in.Files {
			if _, err := wt.Add(f); err != nil {
				return CommitOutput{Error: "failed to stage files: " + err.Error()}, nil
			}
		}
	}

	hash, err := wt.Commit(in.Message, &git.CommitOptions{})
	if err != nil {
		return CommitOutput{Error: err.Error()}, nil
	}
	return CommitOutput{Success: true, Hash: hash.String()}, nil
}

// Log walks history from HEAD, newest first.
func Log(_ context.Context, in LogInput) (LogOutput, error) {
	out := LogOutput{Commits: []LogEntry{}}

	limit := in.Limit
	if limit == 0 {
		limit = 10
	}

	repo, err := open(in.Path)
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}

	opts := &git.LogOptions{}
	if in.File != "" {
		opts.FileName = &in.File
	}
	iter, err := repo.Log(opts)
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}
	defer iter.Close()

	for len(out.Commits) < limit {
		c, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			out.Error = err.Error()
			return out, nil
		}

		hash := c.Hash.String()
		subject, _, _ := strings.Cut(c.Message, "\n")
		entry := LogEntry{
			Hash:      hash,
			ShortHash: hash[:7],
			Author:    c.Author.Name,
			Email:     c.Author.Email,
			Date:      c.Author.When.Format(gitDateLayout),
			Message:   subject,
		}
		if in.Stat {
			stats, err := c.Stats()
			if err != nil {
				out.Error = err.Error()
				return out, nil
			}
			entry.Files = make([]string, len(stats))
			for i, s := range stats {
				entry.Files[i] = s.Name
			}
		}
		out.Commits = append(out.Commits, entry)
	}

	out.Success = true
	out.Total = len(out.Commits)
	return out, nil
}
