// Package scheduler spreads repository sync work across a rolling seven-day
// window so that a large mirror fleet does not hit every remote on every
// run. Each repo is assigned a stable day-of-week bucket derived from its
// repo_id; a run only has to do "today's" bucket plus anything overdue.
package scheduler

import (
	"time"

	"github.com/cespare/xxhash/v2"
)

// BucketCount is the number of rolling buckets repos are spread across.
const BucketCount = 7

// bucketSeed salts the hash so bucket assignment is stable across process
// restarts and operating systems, but not trivially guessable from repo_id
// alone (not a security boundary, just avoids accidental correlation with
// unrelated hash uses of the same string).
const bucketSeed = "mirrorkeeper-scheduler-v1:"

// Bucket returns the stable bucket, in [0, BucketCount), for a repo_id.
func Bucket(repoID string) int {
	sum := xxhash.Sum64String(bucketSeed + repoID)
	return int(sum % uint64(BucketCount))
}

// TodayBucket returns the bucket due "today" for the given time, using the
// day of the epoch so the cycle is stable regardless of which weekday the
// scheduler first ran on.
func TodayBucket(now time.Time) int {
	days := now.UTC().Unix() / int64(24*time.Hour/time.Second)
	return int(((days % BucketCount) + BucketCount) % BucketCount)
}

// Due reports whether a repo assigned to repoBucket should run given today's
// bucket and how many consecutive days it's been since its last successful
// run. A daysSinceLastRun of BucketCount or more (a full cycle without
// syncing) forces a run, so a cold start or an extended outage doesn't
// permanently skip slow-moving repos.
func Due(repoBucket, todayBucket int, daysSinceLastRun int) bool {
	if daysSinceLastRun >= BucketCount {
		return true
	}
	return repoBucket == todayBucket
}
