package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hausgeist-ai/hausgeist/pkg/tracker"
)

func newStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show generation usage and cost statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer tr.Close()

			summaries, err := tr.Summary(context.Background())
			if err != nil {
				return err
			}

			if len(summaries) == 0 {
				fmt.Println("No generation data found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STYLE\tREQUESTS\tSUCCEEDED\tAVG MS\tEST COST")
			var totalCost float64
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t$%.4f\n",
					s.StyleID, s.RequestCount, s.SuccessCount, s.AvgDurationMs, s.TotalCost)
				totalCost += s.TotalCost
			}
			fmt.Fprintf(w, "TOTAL\t\t\t\t$%.4f\n", totalCost)
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "hausgeist.yaml", "path to config file")
	return cmd
}
