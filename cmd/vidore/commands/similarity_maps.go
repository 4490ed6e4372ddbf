package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	vidore "github.com/JarvisUSTC/vidore-benchmark"
	"github.com/JarvisUSTC/vidore-benchmark/imageproc"
	"github.com/JarvisUSTC/vidore-benchmark/interpretability"
	"github.com/JarvisUSTC/vidore-benchmark/logging"
)

// NewSimilarityMapsCmd constructs the `vidore similarity-maps` command.
func NewSimilarityMapsCmd() *cobra.Command {
	var (
		documents []string
		queries   []string
		deviceSel string
		model     string
	)

	cmd := &cobra.Command{
		Use:   "similarity-maps",
		Short: "Render per-token similarity maps for query/page pairs",
		Long: `For each (page, query) pair, embed both with a late-interaction retriever and
write one heatmap per query token to
  <output_dir>/interpretability/<page file stem>/token_<i>.png

--documents and --queries are paired in order and must have the same count.

Example:
  vidore similarity-maps \
    --documents data/interpretability_examples/energy_electricity_generation.jpeg \
    --queries "Which hour of the day had the highest overall electricity generation in 2019?"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := current
			log := logging.FromContext(cmd.Context())

			if err := validatePairs(documents, queries); err != nil {
				return fmt.Errorf("similarity-maps: %w", err)
			}
			if !cmd.Flags().Changed("device") {
				deviceSel = e.cfg.Device
			}

			ret, err := openRetriever(e, model, deviceSel)
			if err != nil {
				return fmt.Errorf("similarity-maps: %w", err)
			}
			defer ret.Close()

			patchRet, ok := ret.(interpretability.PatchRetriever)
			if !ok {
				return fmt.Errorf("similarity-maps: %s does not expose image patches", model)
			}

			for i, docPath := range documents {
				page, err := imageproc.LoadImage(docPath)
				if err != nil {
					return fmt.Errorf("similarity-maps: %w", err)
				}
				log.Info("processing pair", "query", queries[i], "document", docPath)

				maps, err := interpretability.Generate(patchRet, page, queries[i])
				if err != nil {
					return fmt.Errorf("similarity-maps: %s: %w", docPath, err)
				}
				stem := strings.TrimSuffix(filepath.Base(docPath), filepath.Ext(docPath))
				paths, err := interpretability.SaveTokenMaps(e.cfg.OutputDir, stem, page, maps)
				if err != nil {
					return fmt.Errorf("similarity-maps: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d maps in %s\n", docPath, len(paths), interpretability.TokenMapDir(e.cfg.OutputDir, stem))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&documents, "documents", nil, "Page image path (repeatable)")
	cmd.Flags().StringArrayVar(&queries, "queries", nil, "Query paired with the document at the same position (repeatable)")
	cmd.Flags().StringVar(&deviceSel, "device", "auto", "Device: auto, cpu, cuda or cuda:N")
	cmd.Flags().StringVarP(&model, "model", "m", "vidore/colpali-v1.2", "Late-interaction retriever identifier")

	return cmd
}

// validatePairs fails before any compute when the inputs cannot be paired
func validatePairs(documents, queries []string) error {
	if len(documents) == 0 {
		return fmt.Errorf("%w: at least one --documents is required", vidore.ErrInvalidInput)
	}
	if len(documents) != len(queries) {
		return fmt.Errorf("%w: %d documents but %d queries", vidore.ErrInvalidInput, len(documents), len(queries))
	}
	for _, p := range documents {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("%w: file not found: %s", vidore.ErrInvalidInput, p)
		}
		if info.IsDir() {
			return fmt.Errorf("%w: %s is a directory", vidore.ErrInvalidInput, p)
		}
	}
	for i, q := range queries {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("%w: query %d is empty", vidore.ErrInvalidInput, i)
		}
	}
	return nil
}
