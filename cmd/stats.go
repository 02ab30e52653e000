package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seclens/feedbridge/internal/runstats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ingestion counters for the configured feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Redis.Enabled {
			return fmt.Errorf("stats require redis.enabled: true")
		}

		client, err := runstats.NewClient(cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer client.Close()

		stats, err := client.GetStats(cmd.Context(), cfg.Source.Name)
		if err != nil {
			return err
		}

		fmt.Printf("Feed:           %s\n", stats.Source)
		fmt.Printf("Total records:  %d\n", stats.TotalRecords)
		fmt.Printf("Total runs:     %d\n", stats.TotalRuns)
		fmt.Printf("Records today:  %d\n", stats.RecordsToday)
		if stats.LastRunAt != nil {
			fmt.Printf("Last run:       %s (%s)\n", stats.LastRunAt.Format("2006-01-02 15:04:05"), stats.LastStatus)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
