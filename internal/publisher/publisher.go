// Package publisher commits the synchronized API files and pushes them when
// anything actually changed.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.home.luguber.info/inful/cachesync/internal/config"
	syncerrors "git.home.luguber.info/inful/cachesync/internal/errors"
	"git.home.luguber.info/inful/cachesync/internal/logfields"
)

// Status is the terminal state of a publish attempt.
type Status string

const (
	// StatusPublished means a non-empty commit was created and pushed.
	StatusPublished Status = "published"
	// StatusSkippedNoChange means an empty audit commit was created and no
	// push was attempted.
	StatusSkippedNoChange Status = "skipped_no_change"
	// StatusPushFailed means a non-empty commit exists locally but the push
	// failed. This never fails the run; the next scheduled run retries.
	StatusPushFailed Status = "push_failed"
)

// Result describes the outcome of a publish.
type Result struct {
	Status      Status
	CommitHash  string
	StagedFiles []string
	PushErr     error
}

// Publisher stages, commits and pushes the working tree.
type Publisher struct {
	repoPath string
	branch   string
	remote   string
	name     string
	email    string
	message  string
}

// New creates a publisher from the repository configuration.
func New(cfg config.RepoConfig) *Publisher {
	return &Publisher{
		repoPath: cfg.Path,
		branch:   cfg.Branch,
		remote:   cfg.Remote,
		name:     cfg.Committer.Name,
		email:    cfg.Committer.Email,
		message:  cfg.CommitMessage,
	}
}

// Publish runs the ordered sub-steps: checkout, stage everything, commit
// unconditionally (empty commits record that a sync ran), then push only
// when the staged set was non-empty. Checkout, stage and commit failures are
// fatal; push failures are captured in the result and logged only.
func (p *Publisher) Publish(ctx context.Context) (*Result, error) {
	repo, err := git.PlainOpen(p.repoPath)
	if err != nil {
		return nil, syncerrors.WrapFatal(err, syncerrors.CategoryGit, "failed to open repository").
			WithStage("publish").
			WithContext("path", p.repoPath)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, syncerrors.WrapFatal(err, syncerrors.CategoryGit, "failed to get worktree").WithStage("publish")
	}

	// The synchronizer leaves unstaged modifications in the worktree, and a
	// plain checkout refuses those with ErrUnstagedChanges. Skip the checkout
	// when HEAD is already on the target branch; otherwise switch with Keep
	// so the freshly written API files survive the branch change.
	target := plumbing.NewBranchReferenceName(p.branch)
	head, headErr := repo.Head()
	if headErr != nil || head.Name() != target {
		if err := wt.Checkout(&git.CheckoutOptions{Branch: target, Keep: true}); err != nil {
			return nil, syncerrors.WrapFatal(err, syncerrors.CategoryGit, "failed to checkout branch").
				WithStage("publish").
				WithContext("branch", p.branch)
		}
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, syncerrors.WrapFatal(err, syncerrors.CategoryGit, "failed to stage changes").WithStage("publish")
	}

	status, err := wt.Status()
	if err != nil {
		return nil, syncerrors.WrapFatal(err, syncerrors.CategoryGit, "failed to read staged status").WithStage("publish")
	}
	staged := stagedFiles(status)

	// recordLocal: the commit happens on every run so branch history keeps
	// an audit trail of syncs that found nothing to publish.
	hash, err := wt.Commit(p.message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  p.name,
			Email: p.email,
			When:  time.Now(),
		},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return nil, syncerrors.WrapFatal(err, syncerrors.CategoryGit, "failed to create commit").WithStage("publish")
	}

	result := &Result{CommitHash: hash.String(), StagedFiles: staged}

	if len(staged) == 0 {
		slog.Info("No changes to publish, recorded empty sync commit",
			logfields.Commit(result.CommitHash),
			logfields.Branch(p.branch))
		result.Status = StatusSkippedNoChange
		return result, nil
	}

	slog.Info("Committed API file changes",
		logfields.Commit(result.CommitHash),
		slog.Int("files", len(staged)))

	// publishRemote: only worth the traffic when content changed. A failed
	// push leaves a locally valid commit; the next run retries naturally.
	refspec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", p.branch, p.branch))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: p.remote,
		RefSpecs:   []gitconfig.RefSpec{refspec},
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		slog.Warn("Push failed, keeping local commit",
			logfields.Remote(p.remote),
			logfields.Branch(p.branch),
			logfields.Error(err))
		result.Status = StatusPushFailed
		result.PushErr = err
		return result, nil
	}

	slog.Info("Pushed API file changes",
		logfields.Remote(p.remote),
		logfields.Branch(p.branch),
		logfields.Commit(result.CommitHash))
	result.Status = StatusPublished
	return result, nil
}

// stagedFiles lists paths with staged changes, sorted for stable logs.
func stagedFiles(status git.Status) []string {
	var files []string
	for path, entry := range status {
		if entry.Staging != git.Unmodified && entry.Staging != git.Untracked {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files
}
