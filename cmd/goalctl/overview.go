package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"goalplanner/internal/amqp"
	"goalplanner/internal/metrics"
)

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Show totals, per-category figures and goal status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := referenceDate()
		if err != nil {
			return err
		}
		goals, err := selectGoals(cmd, ref)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if err := writeOverview(w, metrics.Summarize(goals), metrics.ByCategory(goals)); err != nil {
			return err
		}
		fmt.Fprintln(w)
		return writeGoalTable(w, metrics.Report(goals, ref), ref)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream goal advisories published by the server",
	Long: `Stream goal advisories from AMQP, e.g. mutations that could only be
applied locally. Requires AMQP_URL. Press Ctrl+C to stop.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipLoad: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is not set")
		}
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return fmt.Errorf("failed to connect to AMQP: %w", err)
		}
		defer client.Close()

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Watching %s advisories, press Ctrl+C to stop...\n", cfg.AMQPQueue)
		err = client.ConsumeAdvisories(cmd.Context(), func(msg *amqp.GoalAdvisoryMessage) error {
			writeAdvisory(w, msg)
			return nil
		})
		if cmd.Context().Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	addFarFlags(overviewCmd)
	rootCmd.AddCommand(overviewCmd, watchCmd)
}
