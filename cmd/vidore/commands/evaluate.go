package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JarvisUSTC/vidore-benchmark/dataset"
	"github.com/JarvisUSTC/vidore-benchmark/evaluation"
	"github.com/JarvisUSTC/vidore-benchmark/logging"
	"github.com/JarvisUSTC/vidore-benchmark/results"
)

// NewEvaluateCmd constructs the `vidore evaluate` command.
func NewEvaluateCmd() *cobra.Command {
	var (
		model       string
		datasetDirs []string
		deviceSel   string
		batchQuery  int
		batchDoc    int
		scoreQuery  int
		scoreDoc    int
		kValues     []int
		noProgress  bool
		noSave      bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a retriever on one or more local datasets",
		Long: `Evaluate a retriever on local datasets and print nDCG, MAP, recall, precision
and MRR at each cut-off.

A dataset is a directory holding metadata.jsonl, one JSON object per line:
  {"query": "...", "image_filename": "pages/p1.png", "text_description": "..."}
and the page images it names. Rows with an empty query only add a page.

Results are stored in <output_dir>/results.db unless --no-save is given.

Examples:
  vidore evaluate --model vidore/colpali-v1.2 --dataset data/docvqa_test_subsampled
  vidore evaluate --model bm25 --dataset data/a --dataset data/b --k 1,5,10`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := current
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if model == "" {
				return fmt.Errorf("evaluate: --model is required")
			}
			if len(datasetDirs) == 0 {
				return fmt.Errorf("evaluate: at least one --dataset is required")
			}

			opts := evaluation.Options{
				BatchQuery:      e.cfg.Evaluation.BatchQuery,
				BatchDoc:        e.cfg.Evaluation.BatchDoc,
				BatchScoreQuery: e.cfg.Evaluation.BatchScoreQuery,
				BatchScoreDoc:   e.cfg.Evaluation.BatchScoreDoc,
				KValues:         e.cfg.Evaluation.KValues,
				ShowProgress:    e.cfg.Evaluation.ShowProgress && !noProgress,
			}
			if cmd.Flags().Changed("batch-query") {
				opts.BatchQuery = batchQuery
			}
			if cmd.Flags().Changed("batch-doc") {
				opts.BatchDoc = batchDoc
			}
			if cmd.Flags().Changed("batch-score-query") {
				opts.BatchScoreQuery = scoreQuery
			}
			if cmd.Flags().Changed("batch-score-doc") {
				opts.BatchScoreDoc = scoreDoc
			}
			if cmd.Flags().Changed("k") {
				opts.KValues = kValues
			}
			if !cmd.Flags().Changed("device") {
				deviceSel = e.cfg.Device
			}

			// load every dataset first so a bad path fails before any model is opened
			sets := make([]*dataset.Dataset, len(datasetDirs))
			for i, dir := range datasetDirs {
				ds, err := dataset.LoadDir(dir)
				if err != nil {
					return fmt.Errorf("evaluate: %w", err)
				}
				sets[i] = ds
			}

			ret, err := openRetriever(e, model, deviceSel)
			if err != nil {
				return fmt.Errorf("evaluate: %w", err)
			}
			defer ret.Close()

			var store *results.Store
			if !noSave {
				if err := e.cfg.EnsureOutputDir(); err != nil {
					return fmt.Errorf("evaluate: %w", err)
				}
				store, err = results.Open(e.cfg.ResultsDBPath())
				if err != nil {
					return fmt.Errorf("evaluate: %w", err)
				}
				defer store.Close()
			}

			for _, ds := range sets {
				log.Info("evaluating dataset", "model", model, "dataset", ds.Name, "examples", ds.Len())
				metrics, err := evaluation.EvaluateDataset(ctx, ret, ds, opts)
				if err != nil {
					return fmt.Errorf("evaluate %s: %w", ds.Name, err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "\n%s on %s\n", model, ds.Name)
				tw := newTable(cmd.OutOrStdout())
				for _, name := range metrics.Names() {
					fmt.Fprintf(tw, "%s\t%s\n", name, formatScore(metrics[name]))
				}
				if err := tw.Flush(); err != nil {
					return err
				}

				if store != nil {
					if _, err := store.Put(model, ds.Name, metrics); err != nil {
						return fmt.Errorf("evaluate: save results: %w", err)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Retriever identifier (see 'vidore models')")
	cmd.Flags().StringArrayVarP(&datasetDirs, "dataset", "d", nil, "Dataset directory (repeatable)")
	cmd.Flags().StringVar(&deviceSel, "device", "auto", "Device: auto, cpu, cuda or cuda:N")
	cmd.Flags().IntVar(&batchQuery, "batch-query", 4, "Query batch size")
	cmd.Flags().IntVar(&batchDoc, "batch-doc", 4, "Document batch size")
	cmd.Flags().IntVar(&scoreQuery, "batch-score-query", 4, "Queries per scoring block")
	cmd.Flags().IntVar(&scoreDoc, "batch-score-doc", 4, "Documents per scoring block")
	cmd.Flags().IntSliceVar(&kValues, "k", nil, "Metric cut-offs (default 1,3,5,10,20,50,100)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not store metrics in the results database")

	return cmd
}
