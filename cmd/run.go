package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/seclens/feedbridge/internal/catalog"
	"github.com/seclens/feedbridge/internal/config"
	"github.com/seclens/feedbridge/internal/dlq"
	"github.com/seclens/feedbridge/internal/fetcher"
	"github.com/seclens/feedbridge/internal/logging"
	"github.com/seclens/feedbridge/internal/models"
	"github.com/seclens/feedbridge/internal/pipeline"
	"github.com/seclens/feedbridge/internal/runstats"
	"github.com/seclens/feedbridge/internal/store"
	"github.com/seclens/feedbridge/internal/transform"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one ETL batch",
	Long: `Fetch the configured feed, transform its records, and upsert them
into the document store. Exits non-zero when the batch fails outright;
a partial success (some records skipped or failed) still exits zero.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		feedName, _ := cmd.Flags().GetString("feed")
		if feedName != "" {
			if err := applyCatalogFeed(cfg, feedName); err != nil {
				return err
			}
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		report := runBatch(cmd.Context(), cfg)
		printReport(report)

		if report.Status == models.BatchFailed {
			return fmt.Errorf("batch failed: %s", report.Error)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("feed", "", "feed name from the catalog (overrides source config)")
	rootCmd.AddCommand(runCmd)
}

// applyCatalogFeed overrides the source section from a catalog entry.
func applyCatalogFeed(cfg *config.Config, name string) error {
	if cfg.Catalog.Path == "" {
		return fmt.Errorf("--feed requires catalog.path to be configured")
	}
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	feed, err := cat.Lookup(name)
	if err != nil {
		return err
	}

	cfg.Source.Name = feed.Name
	cfg.Source.URL = feed.URL
	cfg.Source.Format = feed.Format
	if key := feed.APIKey(); key != "" {
		cfg.Source.APIKey = key
	}
	if feed.Index != "" {
		cfg.OpenSearch.Index = feed.Index
	}
	return nil
}

func runBatch(ctx context.Context, cfg *config.Config) *models.BatchReport {
	logger := logging.Default()

	normalizer, err := transform.ForSource(cfg.Source.Name)
	if err != nil {
		return &models.BatchReport{
			Feed:   cfg.Source.Name,
			Status: models.BatchFailed,
			Error:  err.Error(),
		}
	}

	dlqWriter := buildDLQ(ctx, cfg)
	defer dlqWriter.Close()

	var stats *runstats.Client
	if cfg.Redis.Enabled {
		stats, err = runstats.NewClient(cfg.Redis.URL)
		if err != nil {
			slog.Warn("run stats disabled, redis unavailable", "error", err)
			stats = nil
		} else {
			defer stats.Close()
		}
	}

	storeCfg := store.Config{
		URL:           cfg.OpenSearch.URL,
		Username:      cfg.OpenSearch.Username,
		Password:      cfg.OpenSearch.Password,
		TLSSkipVerify: cfg.OpenSearch.TLSSkipVerify,
		Index:         cfg.Index(),
	}

	pl := pipeline.New(pipeline.Params{
		Feed:       cfg.Source.Name,
		Format:     cfg.Source.Format,
		Source:     feedSource(cfg),
		Fetcher:    fetcher.New(cfg.HTTP),
		Normalizer: normalizer,
		OpenStore: func(ctx context.Context) (pipeline.Store, error) {
			client, err := store.Open(storeCfg)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		DLQ:    dlqWriter,
		Stats:  stats,
		Logger: logger,
	})

	return pl.Run(ctx)
}

// feedSource builds the request description for the configured feed.
// The JSON variant carries the API key header and paging parameters.
func feedSource(cfg *config.Config) fetcher.Source {
	src := fetcher.Source{URL: cfg.Source.URL}
	if cfg.Source.Format == "json" {
		src.Headers = map[string]string{
			"Accept":    "application/json",
			"X-Api-Key": cfg.Source.APIKey,
		}
		src.Query = map[string]string{
			"country":  cfg.Source.Country,
			"pageSize": fmt.Sprintf("%d", cfg.Source.PageSize),
		}
	}
	return src
}

func buildDLQ(ctx context.Context, cfg *config.Config) dlq.Writer {
	if !cfg.DLQ.Enabled {
		return dlq.Nop{}
	}
	switch cfg.DLQ.Backend {
	case "jetstream":
		q, err := dlq.NewJetStreamQueue(ctx, cfg.DLQ.NatsURL)
		if err != nil {
			slog.Warn("jetstream dlq unavailable, failed records will not be kept", "error", err)
			return dlq.Nop{}
		}
		return q
	default:
		q, err := dlq.NewFileQueue(cfg.DLQ.BasePath)
		if err != nil {
			slog.Warn("file dlq unavailable, failed records will not be kept", "error", err)
			return dlq.Nop{}
		}
		return q
	}
}

func printReport(r *models.BatchReport) {
	fmt.Println()
	fmt.Println("==================================================")
	fmt.Printf("  BATCH %s: %s\n", r.Status, r.Feed)
	fmt.Println("==================================================")
	fmt.Printf("Extracted:   %d records (%d dropped)\n", r.Extracted, r.Dropped)
	fmt.Printf("Transformed: %d records (%d skipped)\n", r.Transformed, r.SkippedRaw)
	fmt.Printf("Loaded:      %d inserted / %d updated / %d unchanged / %d failed\n",
		r.Load.Inserted, r.Load.Updated, r.Load.Skipped, r.Load.Failed)
	fmt.Printf("Store total: %d documents\n", r.Load.StoreTotal)
	fmt.Printf("Duration:    %.2fs\n", r.Duration.Seconds())
	if r.Error != "" {
		fmt.Printf("Error:       %s\n", r.Error)
	}
}
