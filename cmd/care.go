package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/care"
)

func newCareCmd() *cobra.Command {
	var color string

	cmd := &cobra.Command{
		Use:   "care [fabric]",
		Short: "Show the care guide for a fabric",
		Long: `Prints the care instructions for a fabric, optionally followed by the color
advice the results page would add. Without a fabric it lists the guide.`,
		Example: `  laundry-sorter care
  laundry-sorter care denim --color dark`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			guide, err := loadGuide(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, name := range guide.FabricNames() {
					rec, _ := guide.Lookup(name)
					fmt.Fprintf(out, "%s %-10s %s\n", rec.Icon, name, rec.Title)
				}
				return nil
			}

			plan, err := guide.Resolve(care.Input{IsClothing: true, Fabric: args[0], Color: color})
			if err != nil {
				return err
			}
			if plan.FabricFallback {
				fmt.Fprintf(out, "Unrecognized fabric %q, showing %s care\n\n", plan.ReportedFabric, plan.Fabric)
			}
			fmt.Fprintf(out, "%s %s\n", plan.Care.Icon, plan.Care.Title)
			for _, line := range plan.Care.Instructions {
				fmt.Fprintf(out, "  • %s\n", line)
			}
			if plan.Advisory != nil {
				fmt.Fprintf(out, "\n%s", plan.Advisory.Text())
			} else if color != "" && plan.Kind == care.KindFabricAndColor {
				fmt.Fprintf(out, "\nCould not determine color %q\n", color)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&color, "color", "", "Color class (bright or dark)")

	return cmd
}
