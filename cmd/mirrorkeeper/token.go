// SPDX-License-Identifier: MIT
package mirrorkeeper

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skaphos/mirrorkeeper/internal/keyring"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect and validate provider credentials",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set <target-id> <token>",
	Short: "Store a target's token in the local token fallback file",
	Args:  cobra.ExactArgs(2),
	RunE:  runTokenSet,
}

var tokenGuideCmd = &cobra.Command{
	Use:   "guide <target-id>",
	Short: "Print the environment variable a target's token must be set in",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenGuide,
}

var tokenValidateCmd = &cobra.Command{
	Use:   "validate [target-id...]",
	Short: "Confirm stored credentials are accepted by their providers",
	RunE:  runTokenValidate,
}

var tokenDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check every configured target for a resolvable credential",
	RunE:  runTokenDoctor,
}

func init() {
	tokenCmd.AddCommand(tokenSetCmd, tokenGuideCmd, tokenValidateCmd, tokenDoctorCmd)
	rootCmd.AddCommand(tokenCmd)
}

// runTokenSet persists a token into the per-config token fallback file,
// which the engine's credential store only consults when the corresponding
// environment variable is unset. It never overrides an operator's env var.
func runTokenSet(cmd *cobra.Command, args []string) error {
	_, cfgPath, err := resolveAndLoadConfig(cmd)
	if err != nil {
		return err
	}
	targetID, token := args[0], args[1]
	if err := keyring.SetToken(tokenFilePath(cfgPath), targetID, token); err != nil {
		return err
	}
	infof(cmd, "stored token for %s (env var %s still takes precedence if set)", targetID, keyring.EnvVarName(targetID))
	return nil
}

func runTokenGuide(cmd *cobra.Command, args []string) error {
	targetID := args[0]
	varName := keyring.EnvVarName(targetID)
	fmt.Fprintf(cmd.OutOrStdout(), "export %s=<token>\n", varName)
	infof(cmd, "mirrorkeeper also falls back to MIRRORKEEPER_TOKEN, then the local token file written by `mirrorkeeper token set`, when %s is unset", varName)
	return nil
}

func runTokenValidate(cmd *cobra.Command, args []string) error {
	cfg, cfgPath, err := resolveAndLoadConfig(cmd)
	if err != nil {
		return err
	}
	targets, err := selectTargetsByID(cfg, args)
	if err != nil {
		return err
	}
	providers := allProviders()
	creds := keyring.NewFileStore(tokenFilePath(cfgPath))

	ctx := cmd.Context()
	rows := make([][]string, 0, len(targets))
	configErr := false
	authErr := false
	for _, t := range targets {
		adapter, ok := providers[t.ProviderKind]
		if !ok {
			rows = append(rows, []string{t.ID, string(t.ProviderKind), "error", fmt.Sprintf("no adapter for provider %q", t.ProviderKind)})
			configErr = true
			continue
		}
		tokenCreds, lookupErr := creds.Lookup(t.ID)
		if lookupErr != nil {
			rows = append(rows, []string{t.ID, string(t.ProviderKind), "missing", lookupErr.Error()})
			authErr = true
			continue
		}
		if err := adapter.ValidateAuth(ctx, t, tokenCreds); err != nil {
			rows = append(rows, []string{t.ID, string(t.ProviderKind), "invalid", err.Error()})
			authErr = true
			continue
		}
		rows = append(rows, []string{t.ID, string(t.ProviderKind), "ok", ""})
	}
	if err := writeRowsTable(cmd, []string{"TARGET", "PROVIDER", "STATUS", "DETAIL"}, rows); err != nil {
		return err
	}
	if authErr {
		raiseExitCode(cmd, 4)
	}
	if configErr {
		raiseExitCode(cmd, 2)
	}
	return nil
}

func runTokenDoctor(cmd *cobra.Command, _ []string) error {
	cfg, cfgPath, err := resolveAndLoadConfig(cmd)
	if err != nil {
		return err
	}
	creds := keyring.NewFileStore(tokenFilePath(cfgPath))
	rows := make([][]string, 0, len(cfg.Targets))
	missing := 0
	for _, t := range cfg.Targets {
		varName := keyring.EnvVarName(t.ID)
		if _, lookupErr := creds.Lookup(t.ID); lookupErr != nil {
			rows = append(rows, []string{t.ID, varName, "missing"})
			missing++
			continue
		}
		rows = append(rows, []string{t.ID, varName, "set"})
	}
	if err := writeRowsTable(cmd, []string{"TARGET", "ENV-VAR", "STATUS"}, rows); err != nil {
		return err
	}
	if missing > 0 {
		infof(cmd, "%d target(s) missing a resolvable token", missing)
		raiseExitCode(cmd, 4)
	}
	return nil
}

