package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/license-verify/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "license-verify",
	Short: "Contractor license verification across US jurisdictions",
	Long:  "Looks up professional and contractor licenses on each jurisdiction's public search page, extracts holder, status and expiration, and caches the normalized result.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
