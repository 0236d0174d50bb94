// SPDX-License-Identifier: MIT
package mirrorkeeper

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skaphos/mirrorkeeper/internal/cache"
	"github.com/skaphos/mirrorkeeper/internal/cliio"
	"github.com/skaphos/mirrorkeeper/internal/config"
	"github.com/skaphos/mirrorkeeper/internal/engine"
	"github.com/skaphos/mirrorkeeper/internal/errtax"
	"github.com/skaphos/mirrorkeeper/internal/missingremote"
	"github.com/skaphos/mirrorkeeper/internal/model"
	"github.com/skaphos/mirrorkeeper/internal/sortutil"
)

var (
	flagSyncNonInteractive  bool
	flagSyncMissingRemote   string
	flagSyncRefresh         bool
	flagSyncForceRefreshAll bool
	flagSyncVerify          bool
	flagSyncIncludeArchived bool
	flagSyncJobs            int
	flagSyncTargetID        string
	flagSyncProvider        string
	flagSyncScope           []string
	flagSyncStatus          bool
	flagSyncAuditRepo       bool
	flagSyncDryRun          bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile local mirrors against their configured targets",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&flagSyncNonInteractive, "non-interactive", false, "never prompt; apply the missing-remote policy without asking")
	syncCmd.Flags().StringVar(&flagSyncMissingRemote, "missing-remote", "", "override this run's missing-remote policy (archive|remove|skip)")
	syncCmd.Flags().BoolVar(&flagSyncRefresh, "refresh", false, "bypass the cached provider inventory for the selected targets")
	syncCmd.Flags().BoolVar(&flagSyncForceRefreshAll, "force-refresh-all", false, "bypass the cached provider inventory for every configured target")
	syncCmd.Flags().BoolVar(&flagSyncVerify, "verify", false, "re-check tracking status after each clone/fast-forward")
	syncCmd.Flags().BoolVar(&flagSyncIncludeArchived, "include-archived", false, "reconcile repos the provider reports as archived or disabled")
	syncCmd.Flags().IntVar(&flagSyncJobs, "jobs", 0, "override the configured per-run worker concurrency")
	syncCmd.Flags().StringVar(&flagSyncTargetID, "target-id", "", "restrict the run to a single target id")
	syncCmd.Flags().StringVar(&flagSyncProvider, "provider", "", "select targets by provider kind (paired with --scope)")
	syncCmd.Flags().StringSliceVar(&flagSyncScope, "scope", nil, "select targets by scope path segments (paired with --provider)")
	syncCmd.Flags().BoolVar(&flagSyncStatus, "status", false, "print the last completed sync run's summary and exit without syncing")
	syncCmd.Flags().BoolVar(&flagSyncAuditRepo, "audit-repo", false, "append one JSON record per repo outcome to the per-config audit log")
	syncCmd.Flags().BoolVar(&flagSyncDryRun, "dry-run", false, "compute and print the plan without touching disk")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, cfgPath, err := resolveAndLoadConfig(cmd)
	if err != nil {
		return err
	}

	if flagSyncStatus {
		return runSyncStatus(cmd, cfgPath)
	}

	targetIDs, err := resolveSyncSelector(cfg, flagSyncTargetID, flagSyncProvider, flagSyncScope)
	if err != nil {
		return err
	}
	policy, err := parseMissingRemotePolicy(flagSyncMissingRemote)
	if err != nil {
		return err
	}

	confirm := missingremote.NeverConfirm
	if flagSyncNonInteractive {
		confirm = missingremote.AlwaysConfirm
	} else if flagYes {
		confirm = missingremote.AlwaysConfirm
	} else {
		confirm = promptingConfirm(cmd)
	}

	var audit engine.AuditSink
	var auditSink *engine.FileAuditSink
	if flagSyncAuditRepo {
		auditSink, err = engine.NewFileAuditSink(auditLogPathFor(cfgPath))
		if err != nil {
			return err
		}
		audit = auditSink
		defer func() { _ = auditSink.Close() }()
	}

	eng, err := newEngineForCLIWithAudit(cmd, cfg, cfgPath, confirm, audit)
	if err != nil {
		return err
	}

	guard, err := acquireLock(cfgPath)
	if err != nil {
		return err
	}
	defer func() { _ = guard.Release() }()

	defer func() {
		if err := eng.Cache().Save(); err != nil {
			debugf(cmd, "cache save failed: %v", err)
		}
	}()

	startedAt := time.Now()
	opts := engine.SyncOptions{
		TargetIDs:             targetIDs,
		DryRun:                flagSyncDryRun,
		Concurrency:           flagSyncJobs,
		ForceRefreshInventory: flagSyncRefresh || flagSyncForceRefreshAll,
		IncludeArchived:       flagSyncIncludeArchived,
		MissingPolicyOverride: policy,
		Verify:                flagSyncVerify,
		OnStart: func(target model.Target, repo model.RemoteRepo) {
			debugf(cmd, "syncing %s/%s", target.ID, repo.Name)
		},
	}
	if flagSyncForceRefreshAll {
		opts.TargetIDs = nil
	}

	result, syncErr := eng.Sync(cmd.Context(), opts)
	status := cacheRunStatusFrom(startedAt, targetIDs, result, syncErr)
	eng.Cache().SetLastRun(status)
	if syncErr != nil {
		return fmt.Errorf("sync: %w", syncErr)
	}

	sortutil.SortRepoOutcomes(result.Outcomes)
	rows := make([][]string, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		rows = append(rows, []string{o.TargetID, o.RepoID, string(o.State), o.Path, o.Error})
	}
	if err := writeRowsTable(cmd, []string{"TARGET", "REPO", "STATE", "PATH", "DETAIL"}, rows); err != nil {
		return err
	}

	c := result.Counters
	infof(cmd, "up-to-date=%d fast-forwarded=%d cloned=%d dirty=%d diverged=%d archived=%d removed=%d failed=%d (%s)",
		c.UpToDate, c.Updated, c.Cloned, c.SkippedDirty, c.SkippedDiverged, c.Archived, c.Removed, c.Failed,
		result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))

	if c.Failed > 0 {
		return fmt.Errorf("%w: %d repo(s) failed to sync", errtax.ErrPartialFailure, c.Failed)
	}
	return nil
}

func runSyncStatus(cmd *cobra.Command, cfgPath string) error {
	store, err := cache.Open(cachePathFor(cfgPath))
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	status, ok := store.LastRun()
	if !ok {
		infof(cmd, "no sync has run yet for this config")
		return nil
	}
	c := status.Counters
	fmt.Fprintf(cmd.OutOrStdout(), "last run: %s -> %s (targets: %s)\n",
		status.StartedAt.Format(time.RFC3339), status.FinishedAt.Format(time.RFC3339), strings.Join(status.TargetIDs, ","))
	fmt.Fprintf(cmd.OutOrStdout(), "up-to-date=%d fast-forwarded=%d cloned=%d dirty=%d diverged=%d archived=%d removed=%d failed=%d\n",
		c.UpToDate, c.Updated, c.Cloned, c.SkippedDirty, c.SkippedDiverged, c.Archived, c.Removed, c.Failed)
	if status.Error != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", status.Error)
	}
	return nil
}

// promptingConfirm asks the operator interactively before a missing-remote
// policy archives or removes a mirror, unless --yes or --non-interactive was
// passed.
func promptingConfirm(cmd *cobra.Command) missingremote.Confirm {
	return func(_ context.Context, prompt string) (bool, error) {
		return cliio.PromptYesNo(cmd.ErrOrStderr(), cmd.InOrStdin(), prompt+" [y/N]: ")
	}
}

func parseMissingRemotePolicy(raw string) (missingremote.Policy, error) {
	switch missingremote.Policy(raw) {
	case "":
		return "", nil
	case missingremote.PolicyArchive, missingremote.PolicyRemove, missingremote.PolicySkip:
		return missingremote.Policy(raw), nil
	default:
		return "", fmt.Errorf("%w: --missing-remote must be one of archive|remove|skip, got %q", errtax.ErrInvalidArgument, raw)
	}
}

// resolveSyncSelector implements the `--target-id ID | --provider P --scope
// …` selector pair: at most one of the two forms may be used, and either may
// be omitted entirely (selecting every configured target).
func resolveSyncSelector(cfg *config.Config, targetID, providerKind string, scope []string) ([]string, error) {
	usesProviderScope := providerKind != "" || len(scope) > 0
	if targetID != "" && usesProviderScope {
		return nil, fmt.Errorf("%w: --target-id cannot be combined with --provider/--scope", errtax.ErrInvalidArgument)
	}
	if targetID != "" {
		return []string{targetID}, nil
	}
	if !usesProviderScope {
		return nil, nil
	}
	if providerKind == "" || len(scope) == 0 {
		return nil, fmt.Errorf("%w: --provider and --scope must be given together", errtax.ErrInvalidArgument)
	}
	wantScope := strings.Join(scope, "/")
	var ids []string
	for _, t := range cfg.Targets {
		if string(t.ProviderKind) == providerKind && t.ScopePath() == wantScope {
			ids = append(ids, t.ID)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no target matches provider %q scope %q", errtax.ErrInvalidArgument, providerKind, wantScope)
	}
	sort.Strings(ids)
	return ids, nil
}

// auditLogPathFor sits the per-repo audit log next to the config and cache
// files, one JSON line per outcome, appended across runs.
func auditLogPathFor(cfgPath string) string {
	return filepath.Join(filepath.Dir(cfgPath), ".mirrorkeeper-audit.jsonl")
}

// cacheRunStatusFrom builds the RunStatus persisted for `sync --status` from
// a completed (or failed) run.
func cacheRunStatusFrom(startedAt time.Time, targetIDs []string, result *engine.SyncResult, syncErr error) cache.RunStatus {
	status := cache.RunStatus{StartedAt: startedAt, FinishedAt: time.Now(), TargetIDs: targetIDs}
	if result != nil {
		status.Counters = result.Counters
		status.FinishedAt = result.FinishedAt
	}
	if syncErr != nil {
		status.Error = syncErr.Error()
	}
	return status
}
