package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seclens/feedbridge/internal/config"
	"github.com/seclens/feedbridge/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "feedbridge",
	Short: "Batch feed-to-store ETL connector",
	Long: `feedbridge ingests threat and news feeds (PhishTank CSV, NewsAPI JSON)
into an OpenSearch document store.

Each run fetches the configured feed, normalizes its records into
canonical documents, and upserts them by natural key, so repeated runs
never create duplicates.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With("service", "feedbridge")
	logging.SetDefault(logger)
}
