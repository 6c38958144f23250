package main

import (
	"github.com/spf13/cobra"
)

var (
	verifyState    string
	verifyLicense  string
	verifyBusiness string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a single license",
	Example: `  license-verify verify --state CA --license 927123
  license-verify verify --state fl --license 1524312 --business "Acme Builders"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "verify")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.Verify(ctx, verifyState, verifyLicense, verifyBusiness)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyState, "state", "", "jurisdiction code or name (required)")
	verifyCmd.Flags().StringVar(&verifyLicense, "license", "", "license number (required)")
	verifyCmd.Flags().StringVar(&verifyBusiness, "business", "", "business name hint")
	_ = verifyCmd.MarkFlagRequired("state")
	_ = verifyCmd.MarkFlagRequired("license")
	rootCmd.AddCommand(verifyCmd)
}
