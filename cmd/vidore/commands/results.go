package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JarvisUSTC/vidore-benchmark/evaluation"
	"github.com/JarvisUSTC/vidore-benchmark/results"
)

// NewResultsCmd constructs the `vidore results` command, which prints stored metrics.
func NewResultsCmd() *cobra.Command {
	var (
		model   string
		metrics []string
		del     string
	)

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show stored evaluation results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := current
			path := e.cfg.ResultsDBPath()
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("results: no results database at %s", path)
			}

			store, err := results.Open(path)
			if err != nil {
				return fmt.Errorf("results: %w", err)
			}
			defer store.Close()

			if del != "" {
				if model == "" {
					return fmt.Errorf("results: --delete needs --model")
				}
				if err := store.Delete(model, del); err != nil {
					return fmt.Errorf("results: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s on %s\n", model, del)
				return nil
			}

			records, err := store.List(model)
			if err != nil {
				return fmt.Errorf("results: %w", err)
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintf(tw, "MODEL\tDATASET\t%s\tCREATED\n", strings.ToUpper(strings.Join(metrics, "\t")))
			for _, rec := range records {
				cells := make([]string, len(metrics))
				for i, m := range metrics {
					v, ok := rec.Metrics[m]
					if !ok {
						cells[i] = "-"
						continue
					}
					cells[i] = formatScore(v)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.Model, rec.Dataset, strings.Join(cells, "\t"), rec.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Only show this retriever")
	cmd.Flags().StringSliceVar(&metrics, "metric", []string{
		evaluation.Key(evaluation.NDCG, 5),
		evaluation.Key(evaluation.Recall, 5),
		evaluation.Key(evaluation.MRR, 10),
	}, "Metric columns")
	cmd.Flags().StringVar(&del, "delete", "", "Delete the stored result of --model on this dataset")

	return cmd
}
