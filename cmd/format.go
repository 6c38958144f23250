package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/license-verify/internal/verify"
)

// catalog builds a Service that can answer registry questions without
// touching the cache or the network.
func catalog(cmd *cobra.Command) (*verify.Service, error) {
	reg, overrides, err := loadRegistry(cmd.Context())
	if err != nil {
		return nil, err
	}
	return verify.New(verify.Options{
		Registry:         reg,
		Overrides:        overrides,
		ForceInteractive: cfg.Fetch.ForceInteractive,
	}), nil
}

var formatCmd = &cobra.Command{
	Use:     "format STATE LICENSE",
	Short:   "Check a license number against the jurisdiction's format",
	Example: "  license-verify format FL 1524312",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := catalog(cmd)
		if err != nil {
			return err
		}
		res, err := svc.CheckFormat(args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var statesCmd = &cobra.Command{
	Use:   "states [STATE]",
	Short: "List supported jurisdictions, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := catalog(cmd)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return printJSON(cmd.OutOrStdout(), svc.ListJurisdictions())
		}
		d, err := svc.Jurisdiction(args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), d)
	},
}

func init() {
	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(statesCmd)
}
