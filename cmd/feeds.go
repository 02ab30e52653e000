package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seclens/feedbridge/internal/catalog"
)

var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "List feeds from the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Catalog.Path == "" {
			return fmt.Errorf("catalog.path is not configured")
		}
		cat, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			return err
		}

		fmt.Printf("%-16s %-6s %-8s %s\n", "NAME", "FORMAT", "API KEY", "URL")
		for _, feed := range cat.Feeds {
			keyed := "-"
			if feed.APIKeyEnv != "" {
				keyed = feed.APIKeyEnv
			}
			fmt.Printf("%-16s %-6s %-8s %s\n", feed.Name, feed.Format, keyed, feed.URL)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(feedsCmd)
}
