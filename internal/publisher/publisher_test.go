package publisher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/cachesync/internal/config"
	syncerrors "git.home.luguber.info/inful/cachesync/internal/errors"
)

func repoConfig(path string) config.RepoConfig {
	return config.RepoConfig{
		Path:          path,
		Branch:        "main",
		Remote:        "origin",
		Committer:     config.Identity{Name: "cachesync-bot", Email: "cachesync-bot@noreply.localhost"},
		CommitMessage: "Update cached API files",
	}
}

// initRepo creates a repository on main with one initial commit.
func initRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "api.json"), []byte(`{"builds": []}`), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("api.json")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@localhost", When: time.Now()},
	})
	require.NoError(t, err)
	return dir, repo
}

// addBareOrigin wires a bare repository as the origin remote and returns its path.
func addBareOrigin(t *testing.T, repo *git.Repository) string {
	t.Helper()
	bareDir := t.TempDir()
	_, err := git.PlainInit(bareDir, true)
	require.NoError(t, err)
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{bareDir},
	})
	require.NoError(t, err)
	return bareDir
}

func headCommit(t *testing.T, repo *git.Repository) *object.Commit {
	t.Helper()
	ref, err := repo.Head()
	require.NoError(t, err)
	commit, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	return commit
}

func TestPublishNoChangesCreatesEmptyCommitWithoutPush(t *testing.T) {
	dir, repo := initRepo(t)
	// No origin remote: an attempted push would surface as push_failed.
	before := headCommit(t, repo)

	res, err := New(repoConfig(dir)).Publish(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusSkippedNoChange, res.Status)
	require.Empty(t, res.StagedFiles)
	require.Nil(t, res.PushErr)

	// The empty audit commit exists and carries the same tree as its parent.
	after := headCommit(t, repo)
	require.NotEqual(t, before.Hash, after.Hash)
	require.Equal(t, before.TreeHash, after.TreeHash)
	require.Equal(t, "Update cached API files", after.Message)
	require.Equal(t, "cachesync-bot", after.Author.Name)
}

func TestPublishChangeCommitsAndPushes(t *testing.T) {
	dir, repo := initRepo(t)
	bareDir := addBareOrigin(t, repo)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "api.json"), []byte(`{"builds": ["4.2.0"]}`), 0o644))

	res, err := New(repoConfig(dir)).Publish(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusPublished, res.Status)
	require.Equal(t, []string{"api.json"}, res.StagedFiles)

	// The remote branch points at the new commit.
	bare, err := git.PlainOpen(bareDir)
	require.NoError(t, err)
	ref, err := bare.Reference(plumbing.NewBranchReferenceName("main"), true)
	require.NoError(t, err)
	require.Equal(t, res.CommitHash, ref.Hash().String())
}

func TestPublishStagesNewAndDeletedFiles(t *testing.T) {
	dir, repo := initRepo(t)
	addBareOrigin(t, repo)

	require.NoError(t, os.Remove(filepath.Join(dir, "api.json")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "api_v2.json"), []byte(`{}`), 0o644))

	res, err := New(repoConfig(dir)).Publish(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusPublished, res.Status)
	require.Equal(t, []string{"api.json", "api_v2.json"}, res.StagedFiles)
}

func TestPublishPushFailureDoesNotFailRun(t *testing.T) {
	dir, repo := initRepo(t)
	// Origin points at a path that does not exist, so the push must fail.
	_, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{filepath.Join(t.TempDir(), "missing")},
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "api.json"), []byte(`{"builds": ["4.2.1"]}`), 0o644))

	res, err := New(repoConfig(dir)).Publish(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusPushFailed, res.Status)
	require.Error(t, res.PushErr)

	// The commit still exists locally.
	head := headCommit(t, repo)
	require.Equal(t, res.CommitHash, head.Hash.String())
}

func TestPublishFromOtherBranchKeepsWorktreeChanges(t *testing.T) {
	dir, repo := initRepo(t)
	addBareOrigin(t, repo)

	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName("work"),
		Create: true,
	}))

	// A dirty worktree must survive the switch back to the target branch.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "api.json"), []byte(`{"builds": ["4.3.0"]}`), 0o644))

	res, err := New(repoConfig(dir)).Publish(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusPublished, res.Status)
	require.Equal(t, []string{"api.json"}, res.StagedFiles)

	head, err := repo.Head()
	require.NoError(t, err)
	require.Equal(t, plumbing.NewBranchReferenceName("main"), head.Name())
	require.Equal(t, res.CommitHash, head.Hash().String())
}

func TestPublishCheckoutFailureIsFatal(t *testing.T) {
	dir, _ := initRepo(t)
	cfg := repoConfig(dir)
	cfg.Branch = "does-not-exist"

	_, err := New(cfg).Publish(context.Background())
	require.Error(t, err)
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryGit))
	require.True(t, syncerrors.IsFatal(err))
}

func TestPublishOpenFailureIsFatal(t *testing.T) {
	_, err := New(repoConfig(t.TempDir())).Publish(context.Background())
	require.Error(t, err)
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryGit))
}

func TestPublishConsecutiveEmptyRunsEachCommit(t *testing.T) {
	dir, repo := initRepo(t)
	p := New(repoConfig(dir))

	res1, err := p.Publish(context.Background())
	require.NoError(t, err)
	res2, err := p.Publish(context.Background())
	require.NoError(t, err)

	require.Equal(t, StatusSkippedNoChange, res1.Status)
	require.Equal(t, StatusSkippedNoChange, res2.Status)
	require.NotEqual(t, res1.CommitHash, res2.CommitHash)

	head := headCommit(t, repo)
	require.Equal(t, res2.CommitHash, head.Hash.String())
}
