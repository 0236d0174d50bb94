package gitx

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Clone clones url into the staging directory, checking out branch when one
// is given. The caller is responsible for renaming staging into place
// (or removing it on failure) so a half-cloned directory never becomes the
// final mirror path.
func Clone(ctx context.Context, r Runner, url, staging, branch string) error {
	args := []string{"clone", "--origin", "origin"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, url, staging)
	if _, err := r.Run(ctx, "", args...); err != nil {
		return fmt.Errorf("git clone: %w", err)
	}
	return nil
}

// CloneStaging clones url into a sibling "<final>.staging-<suffix>" directory
// under the parent of final, and on success atomically renames it to final.
// On any failure the staging directory is removed.
func CloneStaging(ctx context.Context, r Runner, url, final, branch, stagingSuffix string) error {
	parent := final
	if idx := strings.LastIndexByte(final, os.PathSeparator); idx >= 0 {
		parent = final[:idx]
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("mkdir parent: %w", err)
	}
	staging := final + ".staging-" + stagingSuffix
	_ = os.RemoveAll(staging)
	if err := Clone(ctx, r, url, staging, branch); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}
	if err := os.Rename(staging, final); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("rename staging into place: %w", err)
	}
	return nil
}

// SetRemoteURL rewrites the URL of an existing remote, adding it first if
// the remote does not yet exist.
func SetRemoteURL(ctx context.Context, r Runner, dir, remote, url string) error {
	if _, err := r.Run(ctx, dir, "remote", "set-url", remote, url); err != nil {
		if _, addErr := r.Run(ctx, dir, "remote", "add", remote, url); addErr != nil {
			return fmt.Errorf("git remote set-url/add %s: %w", remote, err)
		}
	}
	return nil
}

// IsAncestor reports whether ancestor is an ancestor of (or equal to)
// descendant, using merge-base --is-ancestor. It never merges or rebases.
func IsAncestor(ctx context.Context, r Runner, dir, ancestor, descendant string) (bool, error) {
	_, err := r.Run(ctx, dir, "merge-base", "--is-ancestor", ancestor, descendant)
	return err == nil, nil
}

// DefaultBranchRemoteRef builds the remote-tracking ref name for a branch on
// the given remote, e.g. ("origin", "main") -> "refs/remotes/origin/main".
func DefaultBranchRemoteRef(remote, branch string) string {
	return "refs/remotes/" + remote + "/" + branch
}

// RevParse resolves a ref to its commit hash. Returns "" if the ref does not
// resolve (for example, the branch does not exist locally or remotely yet).
func RevParse(ctx context.Context, r Runner, dir, ref string) (string, error) {
	out, err := r.Run(ctx, dir, "rev-parse", "--verify", "--quiet", ref)
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(out), nil
}

// FastForwardRef moves localRef to the commit pointed to by remoteRef using
// update-ref, after verifying localRef is an ancestor of remoteRef. This
// updates the ref without touching the worktree, so it is safe to apply to a
// branch that is not currently checked out.
func FastForwardRef(ctx context.Context, r Runner, dir, localRef, remoteRef string) error {
	localHash, err := RevParse(ctx, r, dir, localRef)
	if err != nil {
		return err
	}
	remoteHash, err := RevParse(ctx, r, dir, remoteRef)
	if err != nil {
		return err
	}
	if remoteHash == "" {
		return fmt.Errorf("fast-forward: remote ref %s does not resolve", remoteRef)
	}
	if localHash == remoteHash {
		return nil
	}
	if localHash != "" {
		ok, err := IsAncestor(ctx, r, dir, localHash, remoteHash)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("fast-forward: %s is not an ancestor of %s", localRef, remoteRef)
		}
	}
	if _, err := r.Run(ctx, dir, "update-ref", localRef, remoteHash); err != nil {
		return fmt.Errorf("git update-ref %s: %w", localRef, err)
	}
	return nil
}

// FastForwardCheckedOutBranch fast-forwards the branch currently checked out
// in a non-bare worktree using "merge --ff-only", which also updates the
// working tree. Callers must have already verified the worktree is clean.
func FastForwardCheckedOutBranch(ctx context.Context, r Runner, dir, remoteRef string) error {
	if _, err := r.Run(ctx, dir, "merge", "--ff-only", remoteRef); err != nil {
		return fmt.Errorf("git merge --ff-only: %w", err)
	}
	return nil
}

// CreateTrackingBranch creates localBranch pointed at remoteRef and sets it
// to track remote/localBranch, without checking it out.
func CreateTrackingBranch(ctx context.Context, r Runner, dir, localBranch, remoteRef, remote string) error {
	if _, err := r.Run(ctx, dir, "branch", "--track", localBranch, remoteRef); err != nil {
		return fmt.Errorf("git branch --track %s: %w", localBranch, err)
	}
	return nil
}

// RemoteDefaultBranch resolves the remote's advertised HEAD branch name
// (e.g. "main") from the local refs/remotes/<remote>/HEAD symbolic ref
// written by clone, without contacting the network. It returns "" when that
// ref is not set.
func RemoteDefaultBranch(ctx context.Context, r Runner, dir, remote string) (string, error) {
	out, err := r.Run(ctx, dir, "symbolic-ref", "--quiet", "--short", "refs/remotes/"+remote+"/HEAD")
	if err != nil {
		return "", nil
	}
	out = strings.TrimSpace(out)
	prefix := remote + "/"
	if strings.HasPrefix(out, prefix) {
		return strings.TrimPrefix(out, prefix), nil
	}
	return out, nil
}
