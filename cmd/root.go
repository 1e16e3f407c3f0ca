package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/analysis"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/care"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/classifier"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/config"
)

func NewRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "laundry-sorter",
		Short: "Sort laundry by clothing type, fabric and color",
		Long: `Laundry Sorter sends photos of garments to three classification services
(clothing category, fabric type and color brightness) and turns their answers
into washing instructions.

It can run as a web interface or classify images straight from the command line.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	flags.String("profile", config.ProfileProduction, "Service profile (production or local)")
	flags.String("cloth-api-url", "", "Override the clothing classifier base URL")
	flags.String("fabric-api-url", "", "Override the fabric classifier base URL")
	flags.String("color-api-url", "", "Override the color classifier base URL")
	flags.Duration("request-timeout", 0, "Override the predict timeout (0 disables it)")
	flags.Duration("health-timeout", 0, "Override the health probe timeout")
	flags.String("care-guide", "", "Path to a YAML care guide replacing the built-in one")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newClassifyCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newCareCmd())
	cmd.AddCommand(newReportCmd())

	return cmd
}

// loadConfig resolves the configuration for the running command.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	return config.Load(configFile, cmd.Flags())
}

func loadGuide(cfg *config.Config) (*care.Guide, error) {
	if cfg.CareGuide == "" {
		return care.Default(), nil
	}
	slog.Info("Using care guide", "path", cfg.CareGuide)
	return care.LoadFile(cfg.CareGuide)
}

// newAnalyzer wires the gateway, care guide and analysis service together.
func newAnalyzer(cfg *config.Config, opts ...classifier.Option) (*classifier.Gateway, *analysis.Service, error) {
	guide, err := loadGuide(cfg)
	if err != nil {
		return nil, nil, err
	}
	gateway := classifier.NewGateway(cfg.Gateway(), opts...)
	slog.Debug("Classifier gateway ready",
		"profile", cfg.Profile,
		"clothing", gateway.BaseURL(classifier.ServiceClothing),
		"fabric", gateway.BaseURL(classifier.ServiceFabric),
		"color", gateway.BaseURL(classifier.ServiceColor),
		"request_timeout", cfg.RequestTimeout)
	return gateway, analysis.NewService(gateway, guide, cfg.Profile), nil
}
