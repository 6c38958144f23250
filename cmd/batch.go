package main

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/license-verify/internal/fetcher"
	"github.com/sells-group/license-verify/internal/model"
	"github.com/sells-group/license-verify/internal/verify"
)

var (
	batchInput string
	batchLimit int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Verify licenses listed in a CSV file",
	Long:  "Reads a CSV with state, license_number and optional business_name columns and verifies each row in order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(batchInput) //nolint:gosec
		if err != nil {
			return eris.Wrapf(err, "open %s", batchInput)
		}
		defer f.Close() //nolint:errcheck

		reqs, err := readBatch(ctx, f)
		if err != nil {
			return err
		}
		limit := batchLimit
		if limit <= 0 {
			limit = cfg.Batch.MaxItems
		}
		if len(reqs) > limit {
			zap.L().Warn("batch truncated", zap.Int("rows", len(reqs)), zap.Int("limit", limit))
			reqs = reqs[:limit]
		}

		env, err := initEnv(ctx, "verify")
		if err != nil {
			return err
		}
		defer env.Close()

		results := env.Service.VerifyMany(ctx, reqs)
		summary := verify.Summarize(results)
		zap.L().Info("batch complete", zap.Stringer("summary", summary))

		return printJSON(cmd.OutOrStdout(), batchResponse{Results: results, Summary: summary})
	},
}

// readBatch parses the batch CSV. Rows missing a state are rejected rather
// than silently dropped so positions in the output match the file.
func readBatch(ctx context.Context, r io.Reader) ([]model.VerificationRequest, error) {
	t, err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{Comment: '#'})
	if err != nil {
		return nil, eris.Wrap(err, "read batch csv")
	}
	stateCol := t.Column("state")
	licenseCol := t.Column("license_number")
	nameCol := t.Column("business_name")
	if stateCol < 0 || licenseCol < 0 {
		return nil, eris.New("batch csv needs state and license_number columns")
	}

	cell := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return row[i]
	}
	out := make([]model.VerificationRequest, 0, len(t.Rows))
	for i, row := range t.Rows {
		req := model.VerificationRequest{
			Jurisdiction: cell(row, stateCol),
			Identifier:   cell(row, licenseCol),
			Hint:         cell(row, nameCol),
		}
		if req.Jurisdiction == "" {
			return nil, eris.Errorf("row %d: state is empty", i+2)
		}
		out = append(out, req)
	}
	return out, nil
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "CSV file with state,license_number[,business_name] (required)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max rows to verify (default from config)")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}
