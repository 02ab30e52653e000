package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seclens/feedbridge/internal/dlq"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect the dead letter queue",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered records",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		q, err := openDLQ(cmd.Context())
		if err != nil {
			return err
		}
		defer q.Close()

		records, err := q.List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("dead letter queue is empty")
			return nil
		}

		for _, rec := range records {
			line, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			fmt.Println(string(line))
		}
		return nil
	},
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove all dead-lettered records",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := openDLQ(cmd.Context())
		if err != nil {
			return err
		}
		defer q.Close()

		if err := q.Purge(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("dead letter queue purged")
		return nil
	},
}

// browsableDLQ is the read side the CLI needs on top of dlq.Writer.
type browsableDLQ interface {
	List(ctx context.Context, limit int) ([]dlq.FailedRecord, error)
	Purge(ctx context.Context) error
	Close() error
}

func openDLQ(ctx context.Context) (browsableDLQ, error) {
	if !cfg.DLQ.Enabled {
		return nil, fmt.Errorf("dlq is disabled in configuration")
	}
	switch cfg.DLQ.Backend {
	case "jetstream":
		return dlq.NewJetStreamQueue(ctx, cfg.DLQ.NatsURL)
	default:
		return dlq.NewFileQueue(cfg.DLQ.BasePath)
	}
}

func init() {
	dlqListCmd.Flags().Int("limit", 100, "maximum records to list")
	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqPurgeCmd)
	rootCmd.AddCommand(dlqCmd)
}
