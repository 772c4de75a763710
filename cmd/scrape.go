package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Refresh once and print the snapshot as JSON",
		RunE: withApp(func(cmd *cobra.Command, app App) error {
			snapshot, err := app.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(snapshot); err != nil {
				return fmt.Errorf("encode snapshot: %w", err)
			}
			return nil
		}),
	}
}
