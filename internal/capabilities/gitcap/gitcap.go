// SPDX-License-Identifier: MPL-2.0

// Package gitcap implements the git.* capabilities on top of go-git.
// Every operation reports failures as success:false (or isRepo:false) with
// an error message; only malformed input faults.
package gitcap

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/ptcrun/ptc/internal/capability"
)

// Namespace is the capability namespace of this package.
const Namespace = "git"

// errNotRepository is reported when the path is not inside a repository.
var errNotRepository = errors.New("not a git repository")

// Register adds the git.* capabilities to catalog.
func Register(catalog *capability.Catalog) {
	catalog.Register(capability.Descriptor{
		Key:     capability.NewKey(Namespace, "status"),
		Summary: "Summarize the working tree and index",
		Input:   StatusInput{},
		Impl:    capability.Typed(Status),
	})
	catalog.Register(capability.Descriptor{
		Key:     capability.NewKey(Namespace, "diff"),
		Summary: "Show a unified diff between commits or against the working tree",
		Input:   DiffInput{},
		Impl:    capability.Typed(Diff),
	})
	catalog.Register(capability.Descriptor{
		Key:     capability.NewKey(Namespace, "commit"),
		Summary: "Stage files and record a commit",
		Input:   CommitInput{},
		Impl:    capability.Typed(Commit),
	})
	catalog.Register(capability.Descriptor{
		Key:     capability.NewKey(Namespace, "log"),
		Summary: "List recent commits",
		Input:   LogInput{},
		Impl:    capability.Typed(Log),
	})
	catalog.Register(capability.Descriptor{
		Key:     capability.NewKey(Namespace, "branch"),
		Summary: "List, create, switch or delete branches",
		Input:   BranchInput{},
		Impl:    capability.Typed(Branch),
	})
}

// open opens the repository containing path, searching parent directories.
func open(path string) (*git.Repository, error) {
	if path == "" {
		path = "."
	}
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, errNotRepository
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", path, err)
	}
	return repo, nil
}

// currentBranch returns the short name of the branch HEAD points to, or
// "HEAD" when it is detached. It works on repositories without commits.
func currentBranch(repo *git.Repository) string {
	ref, err := repo.Reference(plumbing.HEAD, false)
	if err != nil || ref.Type() != plumbing.SymbolicReference {
		return "HEAD"
	}
	return ref.Target().Short()
}

// resolveCommit resolves a revision such as HEAD, a branch or a hash.
func resolveCommit(repo *git.Repository, rev string) (*object.Commit, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("unknown revision %q: %w", rev, err)
	}
	return repo.CommitObject(*hash)
}
