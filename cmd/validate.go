package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/seclens/feedbridge/internal/store"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Report data quality of the loaded collection",
	Long: `Query the document store for ingestion totals, today's records,
records with data-quality issues, and the most frequent sources.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		client, err := store.Open(store.Config{
			URL:           cfg.OpenSearch.URL,
			Username:      cfg.OpenSearch.Username,
			Password:      cfg.OpenSearch.Password,
			TLSSkipVerify: cfg.OpenSearch.TLSSkipVerify,
			Index:         cfg.Index(),
		})
		if err != nil {
			return err
		}

		total, err := client.CountAll(ctx)
		if err != nil {
			return fmt.Errorf("count documents: %w", err)
		}

		today := time.Now().UTC().Format("2006-01-02")
		todayCount, err := client.CountTerm(ctx, "etl_metadata.ingestion_date", today)
		if err != nil {
			return fmt.Errorf("count today's documents: %w", err)
		}

		withIssues, err := client.CountExists(ctx, "etl_metadata.data_quality_issues")
		if err != nil {
			return fmt.Errorf("count documents with issues: %w", err)
		}

		fmt.Println()
		fmt.Println("==================================================")
		fmt.Printf("  DATA QUALITY REPORT: %s\n", client.Index())
		fmt.Println("==================================================")
		fmt.Printf("Total records:        %d\n", total)
		fmt.Printf("Ingested today:       %d\n", todayCount)
		fmt.Printf("Records with issues:  %d\n", withIssues)

		if cfg.Source.Format == "json" {
			withImages, err := client.CountTerm(ctx, "data_quality.has_image", true)
			if err == nil {
				fmt.Printf("Records with images:  %d\n", withImages)
			}
			avgTitle, err := client.Average(ctx, "data_quality.title_length")
			if err == nil {
				fmt.Printf("Avg title length:     %.2f\n", avgTitle)
			}
			printTop(cmd, client, "source.name", "Top sources")
		} else {
			printTop(cmd, client, "target.keyword", "Top targets")
		}

		sources, err := client.Distinct(ctx, "etl_metadata.source", 100)
		if err == nil {
			fmt.Printf("Connector sources:    %d\n", len(sources))
		}
		return nil
	},
}

func printTop(cmd *cobra.Command, client *store.Client, field, label string) {
	top, err := client.TopValues(cmd.Context(), field, 5)
	if err != nil || len(top) == 0 {
		return
	}
	fmt.Printf("%s:\n", label)
	for _, vc := range top {
		fmt.Printf("  %-30s %d\n", vc.Value, vc.Count)
	}
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
