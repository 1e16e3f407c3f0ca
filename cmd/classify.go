package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/export"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/intake"
)

func newClassifyCmd() *cobra.Command {
	var (
		format     string
		exportPath string
	)

	cmd := &cobra.Command{
		Use:   "classify <image>...",
		Short: "Classify garment photos and print washing advice",
		Long: `Sends each image to the clothing, fabric and color classifiers and prints
the resolved care instructions. Images are processed in the order given; a
failure on one image does not stop the others.`,
		Example: `  # Classify two photos against the hosted services
  laundry-sorter classify shirt.jpg jeans.png

  # Use local classifiers and keep the results
  laundry-sorter classify --profile local --export results.parquet ./photos/*.jpg

  # Machine-readable output
  laundry-sorter classify --format json shirt.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("unsupported format: %s", format)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			_, analyzer, err := newAnalyzer(cfg)
			if err != nil {
				return err
			}

			uploads := make([]intake.Upload, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				uploads = append(uploads, intake.Upload{Filename: filepath.Base(path), Data: data})
			}

			batch := analyzer.AnalyzeBatch(cmd.Context(), uploads)

			if exportPath != "" {
				if err := export.Append(exportPath, export.FromBatch(batch)); err != nil {
					return err
				}
				slog.Info("Results exported", "path", exportPath, "images", len(batch.Images))
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(batch)
			}

			for i := range batch.Images {
				writeAnalysis(out, &batch.Images[i])
			}
			resolved, failed := batch.Counts()
			fmt.Fprintf(out, "\n%d image(s): %d with care advice, %d without\n", len(batch.Images), resolved, failed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text or json)")
	cmd.Flags().StringVar(&exportPath, "export", "", "Append results to this .parquet, .jsonl or .yaml file")

	return cmd
}
