// SPDX-License-Identifier: MIT

// Package sortutil provides deterministic ordering helpers for CLI table
// output, so repeated runs render rows in the same order.
package sortutil

import (
	"sort"

	"github.com/skaphos/mirrorkeeper/internal/model"
)

// LessRepoIDPath provides deterministic ordering by repository identity
// first, then by path for multi-checkout scenarios.
func LessRepoIDPath(repoIDI, pathI, repoIDJ, pathJ string) bool {
	if repoIDI == repoIDJ {
		return pathI < pathJ
	}
	return repoIDI < repoIDJ
}

// SortRepoOutcomes orders a sync run's outcomes by target, then repo ID,
// then path, for stable CLI rendering.
func SortRepoOutcomes(outcomes []model.RepoOutcome) {
	sort.SliceStable(outcomes, func(i, j int) bool {
		if outcomes[i].TargetID != outcomes[j].TargetID {
			return outcomes[i].TargetID < outcomes[j].TargetID
		}
		return LessRepoIDPath(outcomes[i].RepoID, outcomes[i].Path, outcomes[j].RepoID, outcomes[j].Path)
	})
}

// SortRemoteRepos orders a target's provider listing by name, for stable
// rendering of plan/dry-run output.
func SortRemoteRepos(repos []model.RemoteRepo) {
	sort.SliceStable(repos, func(i, j int) bool {
		return repos[i].Name < repos[j].Name
	})
}

// SortTargetsByID orders configured targets by ID, for stable rendering of
// `target list` output regardless of config file ordering.
func SortTargetsByID(targets []model.Target) {
	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].ID < targets[j].ID
	})
}
