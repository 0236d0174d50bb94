package mirrorkeeper

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skaphos/mirrorkeeper/internal/cache"
	"github.com/skaphos/mirrorkeeper/internal/config"
	"github.com/skaphos/mirrorkeeper/internal/engine"
	"github.com/skaphos/mirrorkeeper/internal/errtax"
	"github.com/skaphos/mirrorkeeper/internal/keyring"
	"github.com/skaphos/mirrorkeeper/internal/lock"
	"github.com/skaphos/mirrorkeeper/internal/missingremote"
	"github.com/skaphos/mirrorkeeper/internal/model"
	"github.com/skaphos/mirrorkeeper/internal/vcs"
)

// configOverride returns the --config flag's value, walking up to the root
// command so subcommands see the persistent flag regardless of nesting.
func configOverride(cmd *cobra.Command) string {
	if f := cmd.Root().PersistentFlags().Lookup("config"); f != nil {
		return f.Value.String()
	}
	return flagConfig
}

func resolveAndLoadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	path, err := config.ResolveConfigPath(configOverride(cmd), cwd)
	if err != nil {
		return nil, "", fmt.Errorf("resolve config: %w (run `mirrorkeeper config init` first)", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// cachePathFor sits the inventory cache next to the config file it belongs
// to, so per-directory configs (.mirrorkeeper.json in a monorepo) each get
// their own cache instead of sharing the global one.
func cachePathFor(cfgPath string) string {
	return filepath.Join(filepath.Dir(cfgPath), ".mirrorkeeper-cache.json")
}

// tokenFilePath sits the local token fallback file next to the config it
// belongs to, mirroring cachePathFor.
func tokenFilePath(cfgPath string) string {
	return filepath.Join(filepath.Dir(cfgPath), ".mirrorkeeper-tokens.json")
}

// acquireLock takes the process-wide advisory lock scoped to cfgPath's
// directory, failing fast (never blocking) if another invocation holds it.
// Callers must release the returned guard when done.
func acquireLock(cfgPath string) (*lock.Guard, error) {
	guard := lock.New(filepath.Dir(cfgPath))
	if err := guard.TryAcquire(); err != nil {
		return nil, err
	}
	return guard, nil
}

// newEngineForCLI wires an Engine from the resolved config, the JSON cache
// sitting next to it, the real git adapter, the full provider set, and
// credentials read from environment variables, falling back to the
// per-config token file. The confirm callback is supplied by each
// command so that only commands opting into destructive actions (sync
// without --dry-run) can trigger prompts.
func newEngineForCLI(cmd *cobra.Command, cfg *config.Config, cfgPath string, confirm missingremote.Confirm) (*engine.Engine, error) {
	return newEngineForCLIWithAudit(cmd, cfg, cfgPath, confirm, nil)
}

// newEngineForCLIWithAudit is newEngineForCLI plus an explicit audit sink,
// used by `sync --audit-repo`.
func newEngineForCLIWithAudit(cmd *cobra.Command, cfg *config.Config, cfgPath string, confirm missingremote.Confirm, audit engine.AuditSink) (*engine.Engine, error) {
	cacheStore, err := cache.Open(cachePathFor(cfgPath))
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	creds := keyring.NewFileStore(tokenFilePath(cfgPath))
	eng := engine.New(cfg, cacheStore, vcs.NewGitAdapter(nil), allProviders(), creds, confirm, audit)
	return eng, nil
}

// selectTargetsByID returns the named targets in cfg, or every target when
// ids is empty. Unknown ids are reported together, sorted, matching the
// engine's own unknown-target-id error shape.
func selectTargetsByID(cfg *config.Config, ids []string) ([]model.Target, error) {
	if len(ids) == 0 {
		return cfg.Targets, nil
	}
	byID := make(map[string]model.Target, len(cfg.Targets))
	for _, t := range cfg.Targets {
		byID[t.ID] = t
	}
	var out []model.Target
	var unknown []string
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		out = append(out, t)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown target id(s): %v", errtax.ErrInvalidArgument, unknown)
	}
	return out, nil
}
