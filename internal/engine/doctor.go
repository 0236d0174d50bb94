package engine

import (
	"context"

	"github.com/skaphos/mirrorkeeper/internal/discovery"
)

// OrphanMirror is a git repository found on disk under a target's root that
// no cache record or current provider listing can account for: either a
// manually cloned repo, one left behind by a renamed/deleted cache entry, or
// a mirror whose remote no longer matches any repo mirrorkeeper tracks.
type OrphanMirror struct {
	Path      string
	RemoteURL string
	TargetID  string
}

// Doctor scans every configured target's root for git repositories that
// mirrorkeeper's cache does not know about, adapting the teacher's
// filesystem-discovery walk into an orphan report rather than a push-state
// status report.
func (e *Engine) Doctor(ctx context.Context) ([]OrphanMirror, error) {
	if e.cfg == nil {
		return nil, nil
	}
	knownPaths := map[string]string{}
	if e.cache != nil {
		for _, target := range e.cfg.Targets {
			repos, _ := e.cache.TargetInventory(target.ID, 0)
			for _, repo := range repos {
				if rec, ok := e.cache.RepoRecord(target.ID, repo.RepoID); ok && rec.Path != "" {
					knownPaths[rec.Path] = target.ID
				}
			}
		}
	}

	roots := make([]string, 0, len(e.cfg.Targets))
	rootToTarget := map[string]string{}
	for _, target := range e.cfg.Targets {
		if target.Root == "" {
			continue
		}
		roots = append(roots, target.Root)
		rootToTarget[target.Root] = target.ID
	}

	results, err := discovery.Scan(ctx, discovery.Options{
		Roots:   roots,
		Adapter: e.adapter,
	})
	if err != nil {
		return nil, err
	}

	var orphans []OrphanMirror
	for _, r := range results {
		if _, ok := knownPaths[r.Path]; ok {
			continue
		}
		orphans = append(orphans, OrphanMirror{
			Path:      r.Path,
			RemoteURL: r.RemoteURL,
			TargetID:  targetForPath(rootToTarget, r.Path),
		})
	}
	return orphans, nil
}

func targetForPath(rootToTarget map[string]string, path string) string {
	best := ""
	for root := range rootToTarget {
		if len(root) > len(best) && hasPathPrefix(path, root) {
			best = root
		}
	}
	if best == "" {
		return ""
	}
	return rootToTarget[best]
}

func hasPathPrefix(path, root string) bool {
	if path == root {
		return true
	}
	if len(path) <= len(root) {
		return false
	}
	return path[:len(root)] == root && (path[len(root)] == '/' || path[len(root)] == '\\')
}
