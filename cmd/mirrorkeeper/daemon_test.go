// SPDX-License-Identifier: MIT
package mirrorkeeper

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/skaphos/mirrorkeeper/internal/cache"
	"github.com/skaphos/mirrorkeeper/internal/model"
	"github.com/skaphos/mirrorkeeper/internal/scheduler"
)

func TestDueFilterSkipsRepoInBackoffWindow(t *testing.T) {
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.json"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	now := time.Now()
	store.RecordFailure("t1", "r1", now)

	filter := dueFilter(store, "t1", now, scheduler.TodayBucket(now))
	if filter(model.RemoteRepo{RepoID: "r1"}) {
		t.Fatal("expected a repo still inside its backoff window to be skipped")
	}
}

func TestDueFilterRunsRepoOnceBackoffExpires(t *testing.T) {
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.json"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	now := time.Now()
	store.RecordFailure("t1", "r1", now)
	later := now.Add(7 * 24 * time.Hour)

	filter := dueFilter(store, "t1", later, scheduler.TodayBucket(later))
	if !filter(model.RemoteRepo{RepoID: "r1"}) {
		t.Fatal("expected a long-overdue repo past its backoff window to run")
	}
}
