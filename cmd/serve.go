package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/classifier"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/export"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/handlers"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/metrics"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/models"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/storage"
)

func newServeCmd() *cobra.Command {
	var exportPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start web server for the laundry sorting interface",
		Long: `Starts the Laundry Sorter web interface on the specified port.

The web interface lets you upload one or more photos of garments and shows
the detected clothing type, fabric and color together with washing advice.
Classifier status is shown in the sidebar and Prometheus metrics are served
on /metrics.`,
		Example: `  # Start server on default port 8888
  laundry-sorter serve

  # Use classifiers running on this machine
  laundry-sorter serve --profile local

  # Keep a Parquet log of every processed batch
  laundry-sorter serve --export ./history.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m, err := metrics.NewSorterMetrics(registry)
			if err != nil {
				return err
			}

			gateway, analyzer, err := newAnalyzer(cfg, classifier.WithObserver(m))
			if err != nil {
				return err
			}
			analyzer.SetObserver(m)

			var exportMu sync.Mutex
			handler := handlers.New(handlers.Options{
				Analyzer: analyzer,
				Health:   gateway,
				Store:    storage.New(cfg.BatchTTL),
				BaseURLs: map[classifier.Service]string{
					classifier.ServiceClothing: gateway.BaseURL(classifier.ServiceClothing),
					classifier.ServiceFabric:   gateway.BaseURL(classifier.ServiceFabric),
					classifier.ServiceColor:    gateway.BaseURL(classifier.ServiceColor),
				},
				MaxFiles:   cfg.MaxFiles,
				HTTPClient: &http.Client{Timeout: 30 * time.Second},
				OnBatch: func(b *models.Batch) {
					m.IncrementBatches()
					if exportPath == "" {
						return
					}
					exportMu.Lock()
					defer exportMu.Unlock()
					if err := export.Append(exportPath, export.FromBatch(b)); err != nil {
						slog.Error("Unable to export batch", "batch_id", b.ID, "path", exportPath, "err", err)
					}
				},
			})

			// Set up routes
			mux := http.NewServeMux()
			handler.Routes(mux)
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
			mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
				if _, err := w.Write([]byte("OK")); err != nil {
					slog.Error("Unable to write healthcheck", "err", err)
				}
			})

			addr := ":" + cfg.Port
			server := &http.Server{
				Addr:    addr,
				Handler: mux,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Laundry sorter interface available", "addr", addr, "url", "http://localhost"+addr, "profile", cfg.Profile)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringP("port", "p", "8888", "Port to listen on")
	cmd.Flags().Int("max-files", 20, "Maximum number of images per upload")
	cmd.Flags().Duration("batch-ttl", time.Hour, "How long processed batches stay available")
	cmd.Flags().StringVar(&exportPath, "export", "", "Append every processed batch to this .parquet, .jsonl or .yaml file")

	return cmd
}
