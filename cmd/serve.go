package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the refresh scheduler",
		Long: `Starts the read API on server.port. In push mode the stock page is
refreshed at startup and then every refresh.interval_seconds; in pull mode the
first request of each interval triggers the refresh.`,
		RunE: withApp(func(cmd *cobra.Command, app App) error {
			if err := app.Run(cmd.Context()); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		}),
	}
}
