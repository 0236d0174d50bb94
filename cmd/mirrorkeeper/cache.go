// SPDX-License-Identifier: MIT
package mirrorkeeper

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skaphos/mirrorkeeper/internal/missingremote"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the local inventory cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop cache records whose mirror directory no longer exists on disk",
	RunE:  runCachePrune,
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCachePrune(cmd *cobra.Command, _ []string) error {
	cfg, cfgPath, err := resolveAndLoadConfig(cmd)
	if err != nil {
		return err
	}
	eng, err := newEngineForCLI(cmd, cfg, cfgPath, missingremote.NeverConfirm)
	if err != nil {
		return err
	}

	removed := eng.Cache().PruneMissingPaths(pathExistsOnDisk)
	if err := eng.Cache().Save(); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	infof(cmd, "pruned %d stale cache record(s)", removed)
	return nil
}

func pathExistsOnDisk(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
