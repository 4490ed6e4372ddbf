// Package commands defines the Cobra commands of the vidore binary.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JarvisUSTC/vidore-benchmark/config"
	"github.com/JarvisUSTC/vidore-benchmark/logging"
	"github.com/JarvisUSTC/vidore-benchmark/registry"
	"github.com/JarvisUSTC/vidore-benchmark/retrievers"
)

// configPath holds the --config flag value.
var configPath string

// env is what every subcommand needs once the root pre-run has loaded config
type env struct {
	cfg *config.Config
	log *slog.Logger
	reg *registry.Registry
}

var current env

// NewRootCmd constructs the root command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vidore",
		Short: "Benchmark document retrievers on page-image retrieval",
		Long: `vidore embeds queries and page images (or their extracted text) with a
retriever, scores every query against every page and reports ranking metrics.

Retrievers are selected by identifier, for example:
  vidore/colpali-v1.2            late interaction over image patches
  nomic-ai/nomic-embed-vision-v1.5
  bm25                           text baseline over page descriptions

Exported models are read from <models_dir>/<identifier>/ (see 'vidore models').`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var (
				cfg *config.Config
				err error
			)
			if configPath != "" {
				cfg, err = config.Load(configPath)
			} else {
				var wd string
				wd, err = os.Getwd()
				if err != nil {
					return fmt.Errorf("failed to get working directory: %w", err)
				}
				cfg, err = config.LoadFromDir(wd)
			}
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := logging.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
			slog.SetDefault(log)

			reg := registry.New(log)
			if err := retrievers.Register(reg); err != nil {
				return err
			}

			current = env{cfg: cfg, log: log, reg: reg}
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))
			log.Debug("command start", "command", cmd.Name(), "config", configPath)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ./vidore.yaml)")

	root.AddCommand(
		NewEvaluateCmd(),
		NewModelsCmd(),
		NewSimilarityMapsCmd(),
		NewResultsCmd(),
	)

	return root
}
