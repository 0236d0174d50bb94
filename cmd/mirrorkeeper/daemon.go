// SPDX-License-Identifier: MIT
package mirrorkeeper

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skaphos/mirrorkeeper/internal/cache"
	"github.com/skaphos/mirrorkeeper/internal/engine"
	"github.com/skaphos/mirrorkeeper/internal/errtax"
	"github.com/skaphos/mirrorkeeper/internal/missingremote"
	"github.com/skaphos/mirrorkeeper/internal/model"
	"github.com/skaphos/mirrorkeeper/internal/scheduler"
)

var (
	flagDaemonInterval      time.Duration
	flagDaemonRunOnce       bool
	flagDaemonMissingRemote string
	flagDaemonJobs          int
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run sync on a fixed interval, spreading repos across a rolling window",
	Long: "daemon wakes up every --interval and syncs each target's \"due\" repos: " +
		"each repo is assigned a stable day-of-week bucket, today's bucket runs " +
		"every tick, and any repo overdue by a full cycle runs regardless of its bucket.",
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().DurationVar(&flagDaemonInterval, "interval", time.Hour, "how often to wake up and sync due repos")
	daemonCmd.Flags().BoolVar(&flagDaemonRunOnce, "run-once", false, "run a single tick and exit instead of looping")
	daemonCmd.Flags().StringVar(&flagDaemonMissingRemote, "missing-remote", "", "override every target's missing-remote policy (archive|remove|skip)")
	daemonCmd.Flags().IntVar(&flagDaemonJobs, "jobs", 0, "override the configured per-run worker concurrency")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, cfgPath, err := resolveAndLoadConfig(cmd)
	if err != nil {
		return err
	}
	policy, err := parseMissingRemotePolicy(flagDaemonMissingRemote)
	if err != nil {
		return err
	}
	// The daemon never prompts: missing-remote policies are applied exactly
	// as configured, since there's no terminal to ask a human.
	eng, err := newEngineForCLI(cmd, cfg, cfgPath, missingremote.AlwaysConfirm)
	if err != nil {
		return err
	}

	guard, err := acquireLock(cfgPath)
	if err != nil {
		return err
	}
	defer func() { _ = guard.Release() }()

	if flagDaemonRunOnce {
		totals := runDaemonTick(cmd.Context(), cmd, eng, policy)
		if totals.Failed > 0 {
			return fmt.Errorf("%w: %d repo(s) failed to sync", errtax.ErrPartialFailure, totals.Failed)
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infof(cmd, "daemon starting: interval=%s, %d target(s)", flagDaemonInterval, len(cfg.Targets))
	runDaemonTick(ctx, cmd, eng, policy)

	ticker := time.NewTicker(flagDaemonInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			infof(cmd, "daemon stopping")
			return eng.Cache().Save()
		case <-ticker.C:
			runDaemonTick(ctx, cmd, eng, policy)
		}
	}
}

// runDaemonTick syncs each target separately, with a scheduler.Due repo
// filter per target, since a repo's "last synced" bookkeeping in the cache
// is keyed by (target id, repo id). It returns the accumulated counters
// across every target so --run-once can report a single exit code.
func runDaemonTick(ctx context.Context, cmd *cobra.Command, eng *engine.Engine, policyOverride missingremote.Policy) model.OutcomeCounters {
	now := time.Now()
	todayBucket := scheduler.TodayBucket(now)

	var totals model.OutcomeCounters
	for _, target := range eng.Config().Targets {
		opts := engine.SyncOptions{
			TargetIDs:             []string{target.ID},
			RepoFilter:            dueFilter(eng.Cache(), target.ID, now, todayBucket),
			Concurrency:           flagDaemonJobs,
			MissingPolicyOverride: policyOverride,
			OnResult: func(o model.RepoOutcome) {
				debugf(cmd, "%s/%s -> %s", o.TargetID, o.RepoID, o.State)
			},
		}
		result, err := eng.Sync(ctx, opts)
		if err != nil {
			infof(cmd, "daemon tick failed for target %s: %v", target.ID, err)
			continue
		}
		totals.UpToDate += result.Counters.UpToDate
		totals.Updated += result.Counters.Updated
		totals.Cloned += result.Counters.Cloned
		totals.SkippedDirty += result.Counters.SkippedDirty
		totals.SkippedDiverged += result.Counters.SkippedDiverged
		totals.Archived += result.Counters.Archived
		totals.Removed += result.Counters.Removed
		totals.Failed += result.Counters.Failed
	}
	if err := eng.Cache().Save(); err != nil {
		debugf(cmd, "cache save failed: %v", err)
	}
	infof(cmd, "tick bucket=%d up-to-date=%d fast-forwarded=%d cloned=%d failed=%d",
		todayBucket, totals.UpToDate, totals.Updated, totals.Cloned, totals.Failed)
	return totals
}

// dueFilter reports whether a repo belonging to targetID should run this
// tick: its scheduler bucket matches today, or it has gone overdue since its
// last recorded sync for that target — unless it is still within its
// post-failure backoff window, in which case it is skipped regardless.
func dueFilter(store *cache.Store, targetID string, now time.Time, todayBucket int) func(model.RemoteRepo) bool {
	return func(repo model.RemoteRepo) bool {
		rec, ok := store.RepoRecord(targetID, repo.RepoID)
		if ok && !rec.NextRetryAt.IsZero() && now.Before(rec.NextRetryAt) {
			return false
		}
		bucket := scheduler.Bucket(repo.RepoID)
		daysSinceLastRun := scheduler.BucketCount
		if ok && !rec.LastSyncAt.IsZero() {
			daysSinceLastRun = int(now.Sub(rec.LastSyncAt).Hours() / 24)
		}
		return scheduler.Due(bucket, todayBucket, daysSinceLastRun)
	}
}
