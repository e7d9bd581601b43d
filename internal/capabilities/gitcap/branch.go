// SPDX-License-Identifier: MPL-2.0

package gitcap

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

type (
	// BranchInput is the input of git.branch. At most one of Create, Switch
	// and Delete is acted on, in that order; with none set the branches are
	// listed.
	BranchInput struct {
		Path   string `json:"path,omitempty"`
		List   bool   `json:"list,omitempty"`
		Create string `json:"create,omitempty"`
		// From is the revision a created branch starts at; HEAD by default.
		From   string `json:"from,omitempty"`
		Switch string `json:"switch,omitempty"`
		Delete string `json:"delete,omitempty"`
		// Force deletes a branch that is not merged into HEAD.
		Force bool `json:"force,omitempty"`
	}

	// BranchInfo describes one local branch.
	BranchInfo struct {
		Name    string `json:"name"`
		Current bool   `json:"current"`
		Remote  string `json:"remote,omitempty"`
	}

	// BranchOutput is the output of git.branch.
	BranchOutput struct {
		Success  bool         `json:"success"`
		Current  string       `json:"current,omitempty"`
		Branches []BranchInfo `json:"branches,omitempty"`
		Error    string       `json:"error,omitempty"`
	}
)

// Branch manages local branches.
func Branch(_ context.Context, in BranchInput) (BranchOutput, error) {
	repo, err := open(in.Path)
	if err != nil {
		return BranchOutput{Error: err.Error()}, nil
	}

	switch {
	case in.Create != "":
		if err := createBranch(repo, in.Create, in.From); err != nil {
			return BranchOutput{Error: "failed to create branch: " + err.Error()}, nil
		}
		return BranchOutput{Success: true, Current: in.Create}, nil
	case in.Switch != "":
		if err := switchBranch(repo, in.Switch); err != nil {
			return BranchOutput{Error: "failed to switch branch: " + err.Error()}, nil
		}
		return BranchOutput{Success: true, Current: in.Switch}, nil
	case in.Delete != "":
		if err := deleteBranch(repo, in.Delete, in.Force); err != nil {
			return BranchOutput{Error: "failed to delete branch: " + err.Error()}, nil
		}
		return BranchOutput{Success: true, Current: currentBranch(repo)}, nil
	}

	branches, err := listBranches(repo)
	if err != nil {
		return BranchOutput{Branches: []BranchInfo{}, Error: err.Error()}, nil
	}
	return BranchOutput{Success: true, Current: currentBranch(repo), Branches: branches}, nil
}

func createBranch(repo *git.Repository, name, from string) error {
	if from == "" {
		from = "HEAD"
	}
	start, err := resolveCommit(repo, from)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	return wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Hash:   start.Hash,
		Create: true,
	})
}

func switchBranch(repo *git.Repository, name string) error {
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	return wt.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(name)})
}

func deleteBranch(repo *git.Repository, name string, force bool) error {
	refName := plumbing.NewBranchReferenceName(name)
	ref, err := repo.Reference(refName, true)
	if err != nil {
		return fmt.Errorf("branch %q not found", name)
	}
	if currentBranch(repo) == name {
		return fmt.Errorf("cannot delete branch %q checked out", name)
	}

	if !force {
		head, err := resolveCommit(repo, "HEAD")
		if err != nil {
			return err
		}
		tip, err := repo.CommitObject(ref.Hash())
		if err != nil {
			return err
		}
		merged, err := tip.IsAncestor(head)
		if err != nil {
			return err
		}
		if !merged && tip.Hash != head.Hash {
			return fmt.Errorf("branch %q is not fully merged", name)
		}
	}

	if err := repo.Storer.RemoveReference(refName); err != nil {
		return err
	}
	if err := repo.DeleteBranch(name); err != nil && !errors.Is(err, git.ErrBranchNotFound) {
		return err
	}
	return nil
}

func listBranches(repo *git.Repository) ([]BranchInfo, error) {
	cfg, err := repo.Config()
	if err != nil {
		return nil, err
	}
	current := currentBranch(repo)

	iter, err := repo.Branches()
	if err != nil {
		return nil, err
	}
	branches := []BranchInfo{}
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		info := BranchInfo{Name: name, Current: name == current}
		if b, ok := cfg.Branches[name]; ok && b.Remote != "" {
			info.Remote = b.Remote + "/" + b.Merge.Short()
		}
		branches = append(branches, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(branches, func(a, b BranchInfo) int { return strings.Compare(a.Name, b.Name) })
	return branches, nil
}
