// Package engine orchestrates the core sync engine operations: enumerating
// remote inventory through provider adapters, reconciling it against local
// mirror directories through the git adapter, and applying the
// missing-remote policy for repos that have disappeared upstream.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skaphos/mirrorkeeper/internal/cache"
	"github.com/skaphos/mirrorkeeper/internal/config"
	"github.com/skaphos/mirrorkeeper/internal/keyring"
	"github.com/skaphos/mirrorkeeper/internal/missingremote"
	"github.com/skaphos/mirrorkeeper/internal/model"
	"github.com/skaphos/mirrorkeeper/internal/pathmap"
	"github.com/skaphos/mirrorkeeper/internal/provider"
	"github.com/skaphos/mirrorkeeper/internal/vcs"
)

// SyncResultCallback is invoked once per repo outcome as it completes,
// letting the CLI render progress without waiting for the whole run.
type SyncResultCallback func(model.RepoOutcome)

// SyncStartCallback is invoked just before a repo's reconciliation begins.
type SyncStartCallback func(target model.Target, repo model.RemoteRepo)

// Engine is the core sync orchestrator.
type Engine struct {
	cfg       *config.Config
	cache     *cache.Store
	adapter   vcs.Adapter
	providers map[model.ProviderKind]provider.Adapter
	creds     keyring.CredentialStore
	confirm   missingremote.Confirm
	audit     AuditSink

	mu sync.Mutex
}

// New constructs an Engine. adapter, creds, and audit fall back to sane
// defaults (a real git CLI adapter, env-backed credentials, a no-op audit
// sink) when nil.
func New(cfg *config.Config, cacheStore *cache.Store, adapter vcs.Adapter, providers map[model.ProviderKind]provider.Adapter, creds keyring.CredentialStore, confirm missingremote.Confirm, audit AuditSink) *Engine {
	if adapter == nil {
		adapter = vcs.NewGitAdapter(nil)
	}
	if creds == nil {
		creds = keyring.NewEnvStore()
	}
	if audit == nil {
		audit = NoopAuditSink{}
	}
	if confirm == nil {
		confirm = missingremote.NeverConfirm
	}
	return &Engine{
		cfg:       cfg,
		cache:     cacheStore,
		adapter:   adapter,
		providers: providers,
		creds:     creds,
		confirm:   confirm,
		audit:     audit,
	}
}

// Config returns the engine's configuration reference.
func (e *Engine) Config() *config.Config { return e.cfg }

// Cache returns the engine's cache store reference.
func (e *Engine) Cache() *cache.Store { return e.cache }

// Adapter returns the engine's git adapter.
func (e *Engine) Adapter() vcs.Adapter { return e.adapter }

// SyncOptions configures a sync run.
type SyncOptions struct {
	// TargetIDs restricts the run to specific targets. Empty means all
	// configured targets.
	TargetIDs []string
	// DryRun computes the plan (inventory, local state, intended action)
	// without cloning, fetching, fast-forwarding, archiving, or removing
	// anything.
	DryRun bool
	// Concurrency overrides cfg.Defaults.Concurrency when positive.
	Concurrency int
	// InventoryTTL overrides cache.DefaultInventoryTTL when positive.
	InventoryTTL time.Duration
	// OnResult, if set, is called once per completed repo outcome.
	OnResult SyncResultCallback
	// OnStart, if set, is called just before a repo's reconciliation begins.
	OnStart SyncStartCallback
	// RepoFilter, if set, additionally restricts which repos within a
	// selected target are reconciled this run. Used by the daemon loop to
	// spread work across the scheduler's rolling bucket window instead of
	// hitting every repo on every tick.
	RepoFilter func(model.RemoteRepo) bool
	// ForceRefreshInventory bypasses the cached provider listing regardless
	// of its TTL, re-listing every selected target from its provider.
	ForceRefreshInventory bool
	// IncludeArchived processes repos the provider reports as archived or
	// disabled instead of short-circuiting them to StateArchivedOrDisabled.
	IncludeArchived bool
	// MissingPolicyOverride, when non-empty, replaces the target's and the
	// config's configured missing-remote policy for this run only.
	MissingPolicyOverride missingremote.Policy
	// Verify re-checks a repo's tracking status immediately after a
	// successful clone or fast-forward, downgrading the outcome to
	// StateFailed if the local ref did not actually land even with the
	// underlying git command reporting success.
	Verify bool
	// Now overrides time.Now for deterministic tests.
	Now func() time.Time
}

// SyncResult is the aggregate outcome of a sync run.
type SyncResult struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []model.RepoOutcome
	Counters   model.OutcomeCounters
}

// Sync reconciles every repo in scope across the selected targets.
func (e *Engine) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	if e.cfg == nil {
		return nil, fmt.Errorf("engine: no configuration loaded")
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	targets, err := e.selectTargets(opts.TargetIDs)
	if err != nil {
		return nil, err
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = e.cfg.Defaults.Concurrency
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	result := &SyncResult{StartedAt: now()}

	// Targets run one at a time; parallelism is within a target (over its
	// repos), not across targets, so provider rate limits and a target's own
	// cache updates stay coherent. See syncTarget.
	for _, target := range targets {
		if ctx.Err() != nil {
			break
		}
		outcomes := e.syncTarget(ctx, target, opts, now, concurrency)
		result.Outcomes = append(result.Outcomes, outcomes...)
		for _, o := range outcomes {
			result.Counters.Add(o.State)
			if opts.OnResult != nil {
				opts.OnResult(o)
			}
		}
	}

	sort.SliceStable(result.Outcomes, func(i, j int) bool {
		if result.Outcomes[i].TargetID != result.Outcomes[j].TargetID {
			return result.Outcomes[i].TargetID < result.Outcomes[j].TargetID
		}
		return result.Outcomes[i].RepoID < result.Outcomes[j].RepoID
	})
	result.FinishedAt = now()
	return result, nil
}

func (e *Engine) selectTargets(ids []string) ([]model.Target, error) {
	if len(ids) == 0 {
		return e.cfg.Targets, nil
	}
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Target
	for _, t := range e.cfg.Targets {
		if want[t.ID] {
			out = append(out, t)
			delete(want, t.ID)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for id := range want {
			missing = append(missing, id)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("engine: unknown target id(s): %v", missing)
	}
	return out, nil
}

// syncTarget resolves one target's inventory, reconciles every repo it
// contains, applies the missing-remote policy to repos that vanished since
// the last successful listing, and refreshes the cache. Repos within the
// target are reconciled by a bounded worker pool (jobs=1 runs them
// sequentially); the cache store guards its own writes, so concurrent
// repo workers can record success/failure without extra locking here.
func (e *Engine) syncTarget(ctx context.Context, target model.Target, opts SyncOptions, now func() time.Time, concurrency int) []model.RepoOutcome {
	adapter, ok := e.providers[target.ProviderKind]
	if !ok {
		return []model.RepoOutcome{{
			TargetID: target.ID,
			State:    model.StateFailed,
			Error:    fmt.Sprintf("no provider adapter registered for kind %q", target.ProviderKind),
			At:       now(),
		}}
	}

	creds, err := e.creds.Lookup(target.ID)
	if err != nil {
		return []model.RepoOutcome{{TargetID: target.ID, State: model.StateFailed, Error: err.Error(), At: now()}}
	}

	repos, fresh := e.cachedInventory(target, opts.InventoryTTL)
	previous := repos
	if opts.ForceRefreshInventory {
		fresh = false
	}
	if !fresh {
		listed, err := adapter.ListRepos(ctx, target, creds)
		if err != nil {
			return []model.RepoOutcome{{TargetID: target.ID, State: model.StateFailed, Error: err.Error(), At: now()}}
		}
		repos = listed
		if e.cache != nil && !opts.DryRun {
			e.cache.SetTargetInventory(target.ID, repos, now())
		}
	}

	exclude := target.Exclude
	currentIDs := map[string]bool{}
	selected := make([]model.RemoteRepo, 0, len(repos))
	for _, repo := range repos {
		if matchesExclude(repo.Name, exclude) {
			continue
		}
		currentIDs[repo.RepoID] = true
		if opts.RepoFilter != nil && !opts.RepoFilter(repo) {
			continue
		}
		selected = append(selected, repo)
	}

	var outcomesMu sync.Mutex
	outcomes := make([]model.RepoOutcome, 0, len(selected))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for _, repo := range selected {
		repo := repo
		group.Go(func() error {
			if opts.OnStart != nil {
				opts.OnStart(target, repo)
			}
			outcome := e.reconcileRepo(gctx, target, repo, opts.DryRun, opts.IncludeArchived, opts.Verify, now)
			if e.cache != nil && !opts.DryRun {
				if outcome.State == model.StateFailed {
					e.cache.RecordFailure(target.ID, repo.RepoID, now())
				} else {
					e.cache.RecordSuccess(target.ID, repo.RepoID, outcome.Path, now())
				}
			}
			e.audit.Record(gctx, AuditEvent{At: now(), TargetID: target.ID, RepoID: repo.RepoID, State: outcome.State, Error: outcome.Error})
			outcomesMu.Lock()
			outcomes = append(outcomes, outcome)
			outcomesMu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	outcomes = append(outcomes, e.reconcileMissing(ctx, target, previous, currentIDs, opts, now)...)
	return outcomes
}

func matchesExclude(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := matchGlob(p, name); ok {
			return true
		}
	}
	return false
}

// reconcileMissing applies the target's missing-remote policy to every repo
// in the target's previous inventory (as cached before this run) that did
// not appear in the current listing.
func (e *Engine) reconcileMissing(ctx context.Context, target model.Target, previous []model.RemoteRepo, currentIDs map[string]bool, opts SyncOptions, now func() time.Time) []model.RepoOutcome {
	if e.cache == nil {
		return nil
	}
	var outcomes []model.RepoOutcome
	for _, repo := range previous {
		if currentIDs[repo.RepoID] {
			continue
		}
		rec, ok := e.cache.RepoRecord(target.ID, repo.RepoID)
		path := rec.Path
		if !ok || path == "" {
			path = pathmap.RepoPath(target, repo)
		}
		if _, err := osStat(path); err != nil {
			continue
		}

		policy := opts.MissingPolicyOverride
		if policy == "" {
			policy = missingremote.Policy(target.MissingPolicy)
		}
		if policy == "" {
			policy = missingremote.Policy(e.cfg.Defaults.MissingPolicy)
		}
		dirty := false
		if wt, err := e.adapter.WorktreeStatus(ctx, path); err == nil && wt != nil {
			dirty = wt.Dirty
		}

		var state model.RepoState
		var applyErr error
		if opts.DryRun {
			state = model.StateArchivedOrDisabled
			if dirty {
				state = model.StatePresentDirty
			}
		} else {
			state, applyErr = missingremote.Apply(ctx, policy, target, repo, path, dirty, e.confirm, now())
			if applyErr == nil && state == model.StateArchivedOrDisabled {
				e.cache.RemoveRecord(target.ID, repo.RepoID)
			}
		}
		outcome := model.RepoOutcome{TargetID: target.ID, RepoID: repo.RepoID, Path: path, State: state, At: now()}
		if applyErr != nil {
			outcome.State = model.StateFailed
			outcome.Error = applyErr.Error()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (e *Engine) cachedInventory(target model.Target, ttl time.Duration) ([]model.RemoteRepo, bool) {
	if e.cache == nil {
		return nil, false
	}
	if ttl < 0 {
		ttl = 0
	}
	return e.cache.TargetInventory(target.ID, ttl)
}
