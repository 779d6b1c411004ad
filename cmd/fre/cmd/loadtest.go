package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/loadtest"
)

func newLoadtestCmd() *cobra.Command {
	cfg := loadtest.Config{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Send concurrent search traffic to a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			queries := cfg.Queries
			if len(queries) == 0 {
				queries = loadtest.DefaultQueries
			}
			fmt.Fprintln(out, "=== File Retrieval Engine Load Test ===")
			fmt.Fprintf(out, "Target:      %s\n", cfg.BaseURL)
			fmt.Fprintf(out, "Concurrency: %d\n", cfg.Concurrency)
			fmt.Fprintf(out, "Duration:    %s\n", cfg.Duration)
			fmt.Fprintf(out, "Queries:     %d unique\n\n", len(queries))

			res, err := loadtest.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			res.WriteReport(out)
			if res.Total == 0 {
				return errors.New("no requests completed: is the server running?")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "Base URL of the server")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 10, "Number of concurrent workers")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 30*time.Second, "Test duration")
	cmd.Flags().StringArrayVarP(&cfg.Queries, "query", "q", nil, "Query to send (repeatable; defaults to a built-in mix)")
	return cmd
}
