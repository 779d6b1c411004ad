package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/runlog"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/postgres"
)

func newRunsCmd(a *app) *cobra.Command {
	var (
		limit      int
		showErrors bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent indexing runs from the run log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.Postgres.Enabled {
				return errors.New("the run log is disabled: set postgres.enabled or FRE_POSTGRES_ENABLED=true")
			}
			client, err := postgres.New(cmd.Context(), a.cfg.Postgres, startupRetry)
			if err != nil {
				return err
			}
			defer client.Close()

			store := runlog.NewStore(client)
			if err := store.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs, showErrors)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&showErrors, "errors", false, "Show recorded file errors under each run")
	return cmd
}

func printRuns(out io.Writer, runs []runlog.Run, showErrors bool) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "no indexing runs recorded")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tELAPSED\tFILES\tFAILED\tOUTCOME\tROOT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%.2fs\t%d\t%d\t%s\t%s\n",
			r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"), r.ElapsedSeconds,
			r.FilesIndexed, r.FilesFailed, r.Outcome, r.Root)
		if showErrors {
			for _, msg := range r.Errors {
				fmt.Fprintf(tw, "\t\t\t\t\t\t  %s\n", msg)
			}
		}
	}
	return tw.Flush()
}
