package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/skaphos/mirrorkeeper/internal/model"
	"github.com/skaphos/mirrorkeeper/internal/pathmap"
)

// reconcileRepo drives a single repo through the worker state machine: it
// inspects the local mirror directory (if any), classifies its state, and
// performs the one fast-forward-only action that state calls for. It never
// pushes, rebases, merges, resets, or stashes.
func (e *Engine) reconcileRepo(ctx context.Context, target model.Target, repo model.RemoteRepo, dryRun, includeArchived, verify bool, now func() time.Time) model.RepoOutcome {
	path := pathmap.RepoPath(target, repo)
	outcome := model.RepoOutcome{TargetID: target.ID, RepoID: repo.RepoID, Path: path, At: now()}

	if (repo.Archived || repo.Disabled) && !includeArchived {
		outcome.State = model.StateArchivedOrDisabled
		return outcome
	}

	exists := true
	if _, err := osStat(path); err != nil {
		if !os.IsNotExist(err) {
			outcome.State = model.StateFailed
			outcome.Error = err.Error()
			return outcome
		}
		exists = false
	}

	if !exists && e.cache != nil {
		if prevPath, ok := e.cache.PreviousPath(target.ID, repo.RepoID); ok && prevPath != path {
			if _, err := osStat(prevPath); err == nil {
				if dryRun {
					outcome.Renamed = true
					outcome.State = model.StatePresentClean
					return outcome
				}
				if err := pathmap.Move(prevPath, path); err != nil {
					outcome.State = model.StateFailed
					outcome.Error = fmt.Sprintf("rename: %v", err)
					return outcome
				}
				exists = true
				outcome.Renamed = true
			}
		}
	}

	if !exists {
		if dryRun {
			outcome.State = model.StateCloned
			return outcome
		}
		branch := repo.DefaultBranch
		if err := e.adapter.Clone(ctx, repo.CloneURL, path, branch); err != nil {
			outcome.State = model.StateFailed
			outcome.Error = err.Error()
			return outcome
		}
		outcome.State = model.StateCloned
		return e.verifyOutcome(ctx, outcome, verify)
	}

	isRepo, err := e.adapter.IsRepo(ctx, path)
	if err != nil {
		outcome.State = model.StateFailed
		outcome.Error = err.Error()
		return outcome
	}
	if !isRepo {
		outcome.State = model.StateFailed
		outcome.Error = "mirror path is occupied by a non-repository directory"
		return outcome
	}

	remotes, err := e.adapter.Remotes(ctx, path)
	if err != nil {
		outcome.State = model.StateFailed
		outcome.Error = err.Error()
		return outcome
	}
	originURL := ""
	if name := e.adapter.PrimaryRemote(remoteNames(remotes)); name != "" {
		for _, r := range remotes {
			if r.Name == name {
				originURL = r.URL
			}
		}
	}

	if originURL != "" && e.adapter.NormalizeURL(originURL) != e.adapter.NormalizeURL(repo.CloneURL) {
		if dryRun {
			outcome.State = model.StateOriginMismatch
			return outcome
		}
		if err := e.adapter.SetRemoteURL(ctx, path, "origin", repo.CloneURL); err != nil {
			outcome.State = model.StateFailed
			outcome.Error = err.Error()
			return outcome
		}
	}

	wt, err := e.adapter.WorktreeStatus(ctx, path)
	if err != nil {
		outcome.State = model.StateFailed
		outcome.Error = err.Error()
		return outcome
	}
	if wt != nil && wt.Dirty {
		outcome.State = model.StatePresentDirty
		return outcome
	}

	if dryRun {
		outcome.State = model.StatePresentClean
		return outcome
	}

	if err := e.adapter.Fetch(ctx, path); err != nil {
		outcome.State = model.StateFailed
		outcome.Error = err.Error()
		return outcome
	}

	branch := repo.DefaultBranch
	if branch == "" {
		branch, err = e.adapter.RemoteDefaultBranch(ctx, path, "origin")
		if err != nil || branch == "" {
			outcome.State = model.StateMissingDefault
			return outcome
		}
	}
	remoteRef := "refs/remotes/origin/" + branch

	bare, err := e.adapter.IsBare(ctx, path)
	if err != nil {
		outcome.State = model.StateFailed
		outcome.Error = err.Error()
		return outcome
	}

	head, err := e.adapter.Head(ctx, path)
	if err != nil {
		outcome.State = model.StateFailed
		outcome.Error = err.Error()
		return outcome
	}

	localRef := "refs/heads/" + branch
	onTargetBranch := !bare && !head.Detached && head.Branch == branch

	// TrackingStatus only reports ahead/behind for the checked-out branch, so
	// off-branch and bare updates are always reported as fast_forwarded even
	// when the ref was already current.
	alreadyUpToDate := false
	if onTargetBranch {
		if tracking, err := e.adapter.TrackingStatus(ctx, path); err == nil {
			alreadyUpToDate = tracking.Behind != nil && *tracking.Behind == 0
		}
	}

	var ffErr error
	if onTargetBranch {
		ffErr = e.adapter.FastForwardCheckedOutBranch(ctx, path, remoteRef)
	} else {
		ffErr = e.adapter.FastForwardRef(ctx, path, localRef, remoteRef)
	}

	if ffErr != nil {
		if isDivergedErr(ffErr) {
			outcome.State = model.StateDiverged
			return outcome
		}
		outcome.State = model.StateFailed
		outcome.Error = ffErr.Error()
		return outcome
	}

	if alreadyUpToDate {
		outcome.State = model.StateUpToDate
		return e.verifyOutcome(ctx, outcome, verify)
	}
	outcome.State = model.StateFastForwarded
	return e.verifyOutcome(ctx, outcome, verify)
}

// verifyOutcome re-checks tracking status after a reported success, guarding
// against a git command that exits 0 without actually landing the ref (for
// example, a race with a concurrent writer to the same mirror directory).
func (e *Engine) verifyOutcome(ctx context.Context, outcome model.RepoOutcome, verify bool) model.RepoOutcome {
	if !verify {
		return outcome
	}
	head, err := e.adapter.Head(ctx, outcome.Path)
	if err != nil {
		outcome.State = model.StateFailed
		outcome.Error = "verify: " + err.Error()
		return outcome
	}
	if head.Detached {
		return outcome
	}
	tracking, err := e.adapter.TrackingStatus(ctx, outcome.Path)
	if err != nil {
		outcome.State = model.StateFailed
		outcome.Error = "verify: " + err.Error()
		return outcome
	}
	if tracking.Behind != nil && *tracking.Behind != 0 {
		outcome.State = model.StateFailed
		outcome.Error = fmt.Sprintf("verify: local ref still %d commit(s) behind after sync", *tracking.Behind)
	}
	return outcome
}

func isDivergedErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsFold(msg, "not an ancestor of") || containsFold(msg, "not possible to fast-forward")
}

func containsFold(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexFold(haystack, needle) >= 0
}

func indexFold(haystack, needle string) int {
	hl, nl := len(haystack), len(needle)
	for i := 0; i+nl <= hl; i++ {
		if equalFold(haystack[i:i+nl], needle) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func remoteNames(remotes []model.Remote) []string {
	out := make([]string, len(remotes))
	for i, r := range remotes {
		out[i] = r.Name
	}
	return out
}

func osStat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func matchGlob(pattern, name string) (bool, error) {
	return doublestar.Match(pattern, name)
}
