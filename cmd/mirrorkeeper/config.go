// SPDX-License-Identifier: MIT
package mirrorkeeper

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skaphos/mirrorkeeper/internal/config"
	"github.com/skaphos/mirrorkeeper/internal/errtax"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the mirrorkeeper configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new mirrorkeeper config file",
	RunE:  runConfigInit,
}

var configMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade a config file to the current schema version",
	RunE:  runConfigMigrate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved config file and its path",
	RunE:  runConfigShow,
}

var configLanguageCmd = &cobra.Command{
	Use:   "language [code]",
	Short: "Get or set the locale CLI output messages are rendered in",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigLanguage,
}

func init() {
	configCmd.AddCommand(configInitCmd, configMigrateCmd, configShowCmd, configLanguageCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	path, err := config.InitConfigPath(configOverride(cmd), cwd)
	if err != nil {
		return fmt.Errorf("resolve init path: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s (use `mirrorkeeper target add` to edit it)", path)
	} else if !os.IsNotExist(err) {
		return err
	}

	cfg := config.DefaultConfig()
	if err := config.Save(&cfg, path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	infof(cmd, "wrote new config to %s", path)
	return nil
}

// runConfigMigrate loads the config (which runs any pending schema
// migrations as a side effect of Load) and writes it back at its current
// version, so the on-disk file reflects the migration even when the next
// sync run would have triggered it implicitly.
func runConfigMigrate(cmd *cobra.Command, _ []string) error {
	cfg, path, err := resolveAndLoadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("write migrated config: %w", err)
	}
	infof(cmd, "%s is at schema version %d", path, cfg.Version)
	return nil
}

// runConfigLanguage prints the configured language with no argument, or
// validates and persists a new one. The core only tracks and validates the
// code; rendering messages in it is the CLI collaborator's job.
func runConfigLanguage(cmd *cobra.Command, args []string) error {
	cfg, path, err := resolveAndLoadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cfg.Language)
		return nil
	}
	code := args[0]
	if !config.ValidLanguage(code) {
		return fmt.Errorf("%w: %q is not a valid language code (expected e.g. \"en\" or \"pt-BR\")", errtax.ErrInvalidArgument, code)
	}
	cfg.Language = code
	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	infof(cmd, "language set to %s", code)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, path, err := resolveAndLoadConfig(cmd)
	if err != nil {
		return err
	}
	infof(cmd, "config file: %s", path)
	fmt.Fprintf(cmd.OutOrStdout(), "version: %d\n", cfg.Version)
	fmt.Fprintf(cmd.OutOrStdout(), "language: %s\n", cfg.Language)
	fmt.Fprintf(cmd.OutOrStdout(), "defaults: concurrency=%d timeout_seconds=%d missing_policy=%s\n",
		cfg.Defaults.Concurrency, cfg.Defaults.TimeoutSeconds, cfg.Defaults.MissingPolicy)
	fmt.Fprintf(cmd.OutOrStdout(), "targets: %d\n", len(cfg.Targets))
	for _, t := range cfg.Targets {
		fmt.Fprintf(cmd.OutOrStdout(), "  - %s (%s, root=%s)\n", t.ID, t.ProviderKind, t.Root)
	}
	return nil
}
