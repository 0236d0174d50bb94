package vcs

import (
	"context"
	"os"
	"strconv"
	"sync"

	"github.com/skaphos/mirrorkeeper/internal/gitx"
	"github.com/skaphos/mirrorkeeper/internal/model"
)

// Adapter defines the git operations the sync engine relies on. The engine
// is fast-forward-only: there is deliberately no Push, PullRebase, or stash
// method here, since the engine never mutates a repo's history or working
// tree beyond advancing a ref that the remote already contains.
type Adapter interface {
	Name() string
	IsRepo(ctx context.Context, dir string) (bool, error)
	IsBare(ctx context.Context, dir string) (bool, error)
	Remotes(ctx context.Context, dir string) ([]model.Remote, error)
	Head(ctx context.Context, dir string) (model.Head, error)
	WorktreeStatus(ctx context.Context, dir string) (*model.Worktree, error)
	TrackingStatus(ctx context.Context, dir string) (model.Tracking, error)
	HasSubmodules(ctx context.Context, dir string) (bool, error)
	Fetch(ctx context.Context, dir string) error
	NormalizeURL(rawURL string) string
	PrimaryRemote(remoteNames []string) string

	// Clone clones url into final via a staging directory, atomically
	// renaming staging into place only on success.
	Clone(ctx context.Context, url, final, branch string) error
	// SetRemoteURL rewrites (or adds) a remote's URL.
	SetRemoteURL(ctx context.Context, dir, remote, url string) error
	// RemoteDefaultBranch resolves the remote's advertised default branch
	// from the local refs/remotes/<remote>/HEAD symbolic ref.
	RemoteDefaultBranch(ctx context.Context, dir, remote string) (string, error)
	// FastForwardRef advances localRef to remoteRef's commit without
	// touching the worktree, failing if that would not be a fast-forward.
	FastForwardRef(ctx context.Context, dir, localRef, remoteRef string) error
	// FastForwardCheckedOutBranch advances the currently checked out branch
	// to remoteRef, updating the worktree. Callers must ensure it is clean.
	FastForwardCheckedOutBranch(ctx context.Context, dir, remoteRef string) error
	// CreateTrackingBranch creates localBranch at remoteRef tracking remote.
	CreateTrackingBranch(ctx context.Context, dir, localBranch, remoteRef, remote string) error
}

// GitAdapter implements Adapter using the git CLI via gitx.
type GitAdapter struct {
	Runner gitx.Runner
}

func NewGitAdapter(runner gitx.Runner) *GitAdapter {
	if runner == nil {
		runner = &gitx.GitRunner{}
	}
	return &GitAdapter{Runner: runner}
}

func (g *GitAdapter) Name() string { return "git" }

func (g *GitAdapter) IsRepo(ctx context.Context, dir string) (bool, error) {
	return gitx.IsRepo(ctx, g.Runner, dir)
}

func (g *GitAdapter) IsBare(ctx context.Context, dir string) (bool, error) {
	return gitx.IsBare(ctx, g.Runner, dir)
}

func (g *GitAdapter) Remotes(ctx context.Context, dir string) ([]model.Remote, error) {
	return gitx.Remotes(ctx, g.Runner, dir)
}

func (g *GitAdapter) Head(ctx context.Context, dir string) (model.Head, error) {
	return gitx.Head(ctx, g.Runner, dir)
}

func (g *GitAdapter) WorktreeStatus(ctx context.Context, dir string) (*model.Worktree, error) {
	return gitx.WorktreeStatus(ctx, g.Runner, dir)
}

func (g *GitAdapter) TrackingStatus(ctx context.Context, dir string) (model.Tracking, error) {
	return gitx.TrackingStatus(ctx, g.Runner, dir)
}

func (g *GitAdapter) HasSubmodules(ctx context.Context, dir string) (bool, error) {
	return gitx.HasSubmodules(ctx, g.Runner, dir)
}

func (g *GitAdapter) Fetch(ctx context.Context, dir string) error {
	return gitx.Fetch(ctx, g.Runner, dir)
}

func (g *GitAdapter) NormalizeURL(rawURL string) string {
	return gitx.NormalizeURL(rawURL)
}

func (g *GitAdapter) PrimaryRemote(remoteNames []string) string {
	return gitx.PrimaryRemote(remoteNames)
}

func (g *GitAdapter) Clone(ctx context.Context, url, final, branch string) error {
	return gitx.CloneStaging(ctx, g.Runner, url, final, branch, stagingSuffix())
}

func (g *GitAdapter) SetRemoteURL(ctx context.Context, dir, remote, url string) error {
	return gitx.SetRemoteURL(ctx, g.Runner, dir, remote, url)
}

func (g *GitAdapter) RemoteDefaultBranch(ctx context.Context, dir, remote string) (string, error) {
	return gitx.RemoteDefaultBranch(ctx, g.Runner, dir, remote)
}

func (g *GitAdapter) FastForwardRef(ctx context.Context, dir, localRef, remoteRef string) error {
	return gitx.FastForwardRef(ctx, g.Runner, dir, localRef, remoteRef)
}

func (g *GitAdapter) FastForwardCheckedOutBranch(ctx context.Context, dir, remoteRef string) error {
	return gitx.FastForwardCheckedOutBranch(ctx, g.Runner, dir, remoteRef)
}

func (g *GitAdapter) CreateTrackingBranch(ctx context.Context, dir, localBranch, remoteRef, remote string) error {
	return gitx.CreateTrackingBranch(ctx, g.Runner, dir, localBranch, remoteRef, remote)
}

// stagingSuffix derives a short, process-unique suffix for staging
// directories from the current pid and a monotonically increasing counter,
// avoiding Clone-time collisions between concurrent workers.
func stagingSuffix() string {
	cloneCounterMu.Lock()
	cloneCounter++
	n := cloneCounter
	cloneCounterMu.Unlock()
	return strconv.Itoa(os.Getpid()) + "-" + strconv.FormatInt(n, 10)
}

var (
	cloneCounterMu sync.Mutex
	cloneCounter   int64
)
