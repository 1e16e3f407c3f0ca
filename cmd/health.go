package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/classifier"
)

func newHealthCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check whether the classifier services are online",
		Example: `  laundry-sorter health
  laundry-sorter health --profile local --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			gateway := classifier.NewGateway(cfg.Gateway())

			status := gateway.CheckHealth(cmd.Context())
			out := cmd.OutOrStdout()
			offline := 0
			for _, s := range classifier.Services {
				if status[s] {
					fmt.Fprintf(out, "✅ %s: Online (%s)\n", s.DisplayName(), gateway.BaseURL(s))
				} else {
					offline++
					fmt.Fprintf(out, "❌ %s: Offline (%s)\n", s.DisplayName(), gateway.BaseURL(s))
				}
			}

			if strict && offline > 0 {
				return fmt.Errorf("%d of %d services offline", offline, len(classifier.Services))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with an error when any service is offline")

	return cmd
}
