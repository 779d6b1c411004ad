package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/kafka"
)

func newEventsCmd(a *app) *cobra.Command {
	var (
		fromStart bool
		quiet     bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail the analytics topic and print a summary on exit",
		Long: `events consumes the search and indexing events published by serve and
index, printing each one as a JSON line. On SIGINT it prints aggregate
statistics: top queries, zero-result queries, latency and run outcomes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.Kafka.Enabled {
				return errors.New("kafka is disabled: set kafka.enabled or FRE_KAFKA_ENABLED=true")
			}
			out := cmd.OutOrStdout()
			agg := analytics.NewAggregator()
			handler := agg.Handler(func(_ analytics.EventType, value []byte) {
				if !quiet {
					fmt.Fprintln(out, string(value))
				}
			})
			consumer := kafka.NewConsumer(a.cfg.Kafka, a.cfg.Kafka.Topics.AnalyticsEvents, fromStart, handler)
			slog.Info("tailing analytics events", "topic", a.cfg.Kafka.Topics.AnalyticsEvents, "group", a.cfg.Kafka.ConsumerGroup)

			runErr := consumer.Run(cmd.Context())

			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(agg.Summary()); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "Read from the oldest retained event for a new consumer group")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Only print the summary")
	return cmd
}
