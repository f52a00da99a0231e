// Package cmd holds the arxiv-feed command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bananya-ml/arxiv-feed/config"
	"github.com/bananya-ml/arxiv-feed/internal/app"
	"github.com/bananya-ml/arxiv-feed/internal/envHelper"
	"github.com/bananya-ml/arxiv-feed/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "arxiv-feed",
	Short: "Ingest arXiv papers and answer questions about them",
	Long: `arxiv-feed fetches recent arXiv papers, extracts their text with GROBID,
stores summaries and metadata, indexes the text for semantic search and answers
questions grounded in the indexed papers.`,
	SilenceUsage: true,
	Version:      config.Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "path to the YAML config file (optional)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the application.
func bootstrap(ctx context.Context) (*app.App, *logging.Logger, error) {
	envHelper.LoadEnv()
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log, err := logging.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	log.Info("app env: "+cfg.AppEnv, "version", config.Version)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Sync()
		return nil, nil, err
	}
	return a, log, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
