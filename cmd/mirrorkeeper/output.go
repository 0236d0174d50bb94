package mirrorkeeper

import (
	"github.com/spf13/cobra"

	"github.com/skaphos/mirrorkeeper/internal/cliio"
)

// logOutputWriteFailure records non-fatal output write/flush failures.
// CLI consumers frequently pipe to tools that close early (for example `head`),
// so we log and continue instead of treating these as command failures.
func logOutputWriteFailure(cmd *cobra.Command, context string, err error) {
	if err == nil {
		return
	}
	debugf(cmd, "ignored output write failure (%s): %v", context, err)
}

// writeRowsTable renders a tab-separated table to the command's stdout,
// stripping tabwriter escapes when color output isn't active for this run.
func writeRowsTable(cmd *cobra.Command, headers []string, rows [][]string) error {
	stripEscape := !runtimeStateFor(cmd).colorOutputEnabled
	err := cliio.WriteTable(cmd.OutOrStdout(), stripEscape, false, headers, rows)
	logOutputWriteFailure(cmd, "table", err)
	return nil
}
