package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/export"
)

func newReportCmd() *cobra.Command {
	var (
		input  string
		format string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize exported classification results",
		Long: `Reads a results file written by "serve --export" or "classify --export"
and prints outcome, fabric, color and clothing-type counts.`,
		Example: `  laundry-sorter report --input history.parquet
  laundry-sorter report --input results.jsonl --format csv > results.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(input); err != nil {
				return fmt.Errorf("results file not found: %s", input)
			}

			records, err := export.Load(input)
			if err != nil {
				return fmt.Errorf("failed to load results: %w", err)
			}
			return export.WriteReport(cmd.OutOrStdout(), export.Summarize(records), format)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Path to a .parquet, .jsonl or .yaml results file (required)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json, csv)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}
