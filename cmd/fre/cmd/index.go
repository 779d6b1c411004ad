package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/indexer"
)

func newIndexCmd(a *app) *cobra.Command {
	var (
		queries []string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "index <dataset>",
		Short: "Index a directory once and optionally run queries against it",
		Example: `  fre index ./datasets/books
  fre index ./datasets/books --query "cat AND dog" --query whale --workers 8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("workers") {
				a.cfg.Engine.Workers = workers
			}
			return runIndex(cmd, a, args[0], queries)
		},
	}
	cmd.Flags().StringArrayVarP(&queries, "query", "q", nil, "Query to run after indexing (repeatable)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Override engine.workers")
	return cmd
}

func runIndex(cmd *cobra.Command, a *app, dataset string, queries []string) error {
	svc := connect(cmd.Context(), a.cfg)
	defer func() {
		if err := svc.close(); err != nil {
			slog.Warn("closing backends", "error", err)
		}
	}()

	engine := indexer.NewEngine(a.cfg.Engine, svc.engineOptions(a.cfg)...)
	defer engine.Shutdown()

	report, err := engine.IndexDataset(cmd.Context(), dataset)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	printReport(out, report)
	for _, q := range queries {
		printResults(out, q, engine.Search(q))
	}
	return nil
}

func printReport(out io.Writer, report *indexer.RunReport) {
	fmt.Fprintf(out, "Completed indexing in %.2f seconds\n", report.Elapsed.Seconds())
	fmt.Fprintf(out, "Files indexed: %d, failed: %d, run: %s\n", report.FilesIndexed, report.FilesFailed, report.RunID)
	switch {
	case report.TimedOut:
		fmt.Fprintln(out, "Run deadline reached: the index is partial")
	case report.Cancelled:
		fmt.Fprintln(out, "Run cancelled: the index is partial")
	}
}

func printResults(out io.Writer, query string, files []string) {
	fmt.Fprintf(out, "Search results for %q (top %d):\n", query, len(files))
	if len(files) == 0 {
		fmt.Fprintln(out, "  no matches")
		return
	}
	for i, f := range files {
		fmt.Fprintf(out, "  %d. %s\n", i+1, f)
	}
}
