// SPDX-License-Identifier: MIT
package mirrorkeeper

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skaphos/mirrorkeeper/internal/config"
	"github.com/skaphos/mirrorkeeper/internal/model"
	"github.com/skaphos/mirrorkeeper/internal/sortutil"
	"github.com/skaphos/mirrorkeeper/internal/strutil"
)

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Manage mirror targets (provider scopes to enumerate)",
}

var (
	flagTargetProvider string
	flagTargetHost     string
	flagTargetScope    string
	flagTargetRoot     string
	flagTargetExclude  string
	flagTargetMissing  string
)

var targetAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Register a new mirror target",
	Args:  cobra.ExactArgs(1),
	RunE:  runTargetAdd,
}

var targetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured mirror targets",
	RunE:  runTargetList,
}

var targetRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a mirror target from the config",
	Args:  cobra.ExactArgs(1),
	RunE:  runTargetRemove,
}

func init() {
	targetAddCmd.Flags().StringVar(&flagTargetProvider, "provider", "", "provider kind (github|gitlab|azure-devops)")
	targetAddCmd.Flags().StringVar(&flagTargetHost, "host", "", "provider hostname, e.g. github.com")
	targetAddCmd.Flags().StringVar(&flagTargetScope, "scope", "", "org/user/group[/subgroup...] path to enumerate")
	targetAddCmd.Flags().StringVar(&flagTargetRoot, "root", "", "local directory mirrors are rooted under")
	targetAddCmd.Flags().StringVar(&flagTargetExclude, "exclude", "", "comma-separated glob patterns of repo names to skip")
	targetAddCmd.Flags().StringVar(&flagTargetMissing, "missing-policy", "skip", "action when a repo disappears from the remote (archive|remove|skip)")

	targetCmd.AddCommand(targetAddCmd, targetListCmd, targetRemoveCmd)
	rootCmd.AddCommand(targetCmd)
}

func runTargetAdd(cmd *cobra.Command, args []string) error {
	id := args[0]
	provider := model.ProviderKind(strings.TrimSpace(flagTargetProvider))
	switch provider {
	case model.ProviderGitHub, model.ProviderGitLab, model.ProviderAzureDevOps:
	default:
		return fmt.Errorf("--provider must be one of github, gitlab, azure-devops (got %q)", flagTargetProvider)
	}
	if strings.TrimSpace(flagTargetHost) == "" {
		return fmt.Errorf("--host is required")
	}
	if strings.TrimSpace(flagTargetRoot) == "" {
		return fmt.Errorf("--root is required")
	}
	scope := splitScope(flagTargetScope)
	if len(scope) == 0 {
		return fmt.Errorf("--scope is required")
	}
	switch flagTargetMissing {
	case "archive", "remove", "skip":
	default:
		return fmt.Errorf("--missing-policy must be one of archive, remove, skip (got %q)", flagTargetMissing)
	}

	cfg, path, err := resolveAndLoadConfig(cmd)
	if err != nil {
		return err
	}
	for _, t := range cfg.Targets {
		if t.ID == id {
			return fmt.Errorf("target %q already exists", id)
		}
	}
	cfg.Targets = append(cfg.Targets, model.Target{
		ID:            id,
		ProviderKind:  provider,
		Host:          flagTargetHost,
		ScopeSegments: scope,
		Root:          flagTargetRoot,
		Exclude:       strutil.SplitCSV(flagTargetExclude),
		MissingPolicy: flagTargetMissing,
	})
	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	infof(cmd, "added target %s (%s)", id, provider)
	return nil
}

func runTargetList(cmd *cobra.Command, _ []string) error {
	cfg, _, err := resolveAndLoadConfig(cmd)
	if err != nil {
		return err
	}
	targets := append([]model.Target(nil), cfg.Targets...)
	sortutil.SortTargetsByID(targets)

	rows := make([][]string, 0, len(targets))
	for _, t := range targets {
		rows = append(rows, []string{t.ID, string(t.ProviderKind), t.Host, t.ScopePath(), t.Root, t.MissingPolicy})
	}
	return writeRowsTable(cmd, []string{"ID", "PROVIDER", "HOST", "SCOPE", "ROOT", "MISSING-POLICY"}, rows)
}

func runTargetRemove(cmd *cobra.Command, args []string) error {
	id := args[0]
	cfg, path, err := resolveAndLoadConfig(cmd)
	if err != nil {
		return err
	}
	kept := cfg.Targets[:0]
	found := false
	for _, t := range cfg.Targets {
		if t.ID == id {
			found = true
			continue
		}
		kept = append(kept, t)
	}
	if !found {
		return fmt.Errorf("target %q not found", id)
	}
	cfg.Targets = kept
	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	infof(cmd, "removed target %s", id)
	return nil
}

func splitScope(s string) []string {
	parts := strings.Split(s, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
