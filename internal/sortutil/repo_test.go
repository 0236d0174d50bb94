// SPDX-License-Identifier: MIT
package sortutil_test

import (
	"testing"

	"github.com/skaphos/mirrorkeeper/internal/model"
	"github.com/skaphos/mirrorkeeper/internal/sortutil"
)

func TestSortRepoOutcomesByTargetThenRepoID(t *testing.T) {
	outcomes := []model.RepoOutcome{
		{TargetID: "b", RepoID: "2"},
		{TargetID: "a", RepoID: "2"},
		{TargetID: "a", RepoID: "1"},
	}
	sortutil.SortRepoOutcomes(outcomes)
	if outcomes[0].TargetID != "a" || outcomes[0].RepoID != "1" {
		t.Fatalf("unexpected first element: %+v", outcomes[0])
	}
	if outcomes[2].TargetID != "b" {
		t.Fatalf("unexpected last element: %+v", outcomes[2])
	}
}

func TestSortRemoteReposByName(t *testing.T) {
	repos := []model.RemoteRepo{{Name: "zeta"}, {Name: "alpha"}}
	sortutil.SortRemoteRepos(repos)
	if repos[0].Name != "alpha" {
		t.Fatalf("expected alpha first, got %+v", repos)
	}
}
