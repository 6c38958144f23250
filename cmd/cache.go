package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/license-verify/internal/metrics"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and entry count",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("cache"); err != nil {
			return err
		}
		st, rc, err := initCache(ctx, metrics.Default())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := rc.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), stats)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached result",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("cache"); err != nil {
			return err
		}
		st, rc, err := initCache(ctx, metrics.Default())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := rc.Clear(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("cache cleared", zap.Int("removed", n))
		return printJSON(cmd.OutOrStdout(), map[string]int{"removed": n})
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cached results older than the TTL",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("cache"); err != nil {
			return err
		}
		st, rc, err := initCache(ctx, metrics.Default())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := rc.Purge(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("cache purged", zap.Int("removed", n))
		return printJSON(cmd.OutOrStdout(), map[string]int{"removed": n})
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
