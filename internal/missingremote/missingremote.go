// Package missingremote implements the policy applied when a repo that was
// previously part of a target's inventory no longer appears in the
// provider's listing: archive it, remove it outright, or leave it alone.
package missingremote

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/skaphos/mirrorkeeper/internal/model"
	"github.com/skaphos/mirrorkeeper/internal/pathmap"
)

// Policy selects the action taken for a repo whose remote has disappeared.
type Policy string

const (
	PolicyArchive Policy = "archive"
	PolicyRemove  Policy = "remove"
	PolicySkip    Policy = "skip"
)

// Confirm is injected by the caller to gate destructive actions on operator
// confirmation; the core never reads stdin directly. Returning false treats
// the action as declined and downgrades it to a skip.
type Confirm func(ctx context.Context, prompt string) (bool, error)

// AlwaysConfirm is a Confirm that accepts every prompt, for non-interactive
// runs that have already opted in via a flag such as --yes.
func AlwaysConfirm(context.Context, string) (bool, error) { return true, nil }

// NeverConfirm is a Confirm that declines every prompt, downgrading every
// archive/remove action to a skip; useful for dry-run plans.
func NeverConfirm(context.Context, string) (bool, error) { return false, nil }

// Apply resolves the action for a single missing repo and, if confirmed,
// performs it. dirty reports whether the local worktree has uncommitted
// changes; a dirty repo is always downgraded to skip regardless of policy,
// since archiving or removing it would discard work that was never pushed.
func Apply(ctx context.Context, policy Policy, target model.Target, repo model.RemoteRepo, localPath string, dirty bool, confirm Confirm, now time.Time) (model.RepoState, error) {
	if dirty {
		return model.StatePresentDirty, nil
	}
	if confirm == nil {
		confirm = NeverConfirm
	}

	switch policy {
	case PolicyRemove:
		ok, err := confirm(ctx, fmt.Sprintf("remove local mirror for missing remote %s at %s?", repo.Name, localPath))
		if err != nil {
			return model.StateFailed, err
		}
		if !ok {
			return model.StateArchivedOrDisabled, nil
		}
		if err := os.RemoveAll(localPath); err != nil {
			return model.StateFailed, fmt.Errorf("missingremote: remove %s: %w", localPath, err)
		}
		return model.StateArchivedOrDisabled, nil

	case PolicyArchive:
		ok, err := confirm(ctx, fmt.Sprintf("archive local mirror for missing remote %s at %s?", repo.Name, localPath))
		if err != nil {
			return model.StateFailed, err
		}
		if !ok {
			return model.StateArchivedOrDisabled, nil
		}
		dest := resolveArchivePath(target, repo, now)
		if err := pathmap.Move(localPath, dest); err != nil {
			return model.StateFailed, fmt.Errorf("missingremote: archive %s: %w", localPath, err)
		}
		return model.StateArchivedOrDisabled, nil

	case PolicySkip, "":
		return model.StateArchivedOrDisabled, nil

	default:
		return model.StateFailed, fmt.Errorf("missingremote: unknown policy %q", policy)
	}
}

// resolveArchivePath computes an archive destination, appending a numeric
// suffix if an earlier run already archived a repo with the same name at
// the same timestamp resolution (a same-second collision, in practice only
// possible in tests or back-to-back CLI invocations).
func resolveArchivePath(target model.Target, repo model.RemoteRepo, now time.Time) string {
	ts := now.UTC().Format("20060102T150405Z")
	dest := pathmap.ArchivePath(target, repo, ts, "")
	for suffix := 1; pathExists(dest); suffix++ {
		dest = pathmap.ArchivePath(target, repo, ts, fmt.Sprintf("%d", suffix))
		if suffix > 1000 {
			break
		}
	}
	return dest
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
