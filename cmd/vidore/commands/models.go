package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
)

// NewModelsCmd constructs the `vidore models` command, which lists registered
// retriever identifiers and the exported model directories under models_dir
// that each one serves. Pattern entries list every matching directory.
func NewModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List registered retriever identifiers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := current
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "IDENTIFIER\tMODEL DIR")
			for _, id := range e.reg.List() {
				dirs, err := modelDirs(e.cfg.ModelsDir, id)
				if err != nil {
					return fmt.Errorf("models: %w", err)
				}
				cell := "-"
				if len(dirs) > 0 {
					cell = strings.Join(dirs, ", ")
				}
				fmt.Fprintf(tw, "%s\t%s\n", id, cell)
			}
			return tw.Flush()
		},
	}
}

// modelDirs returns the directories under root whose relative path matches pattern
func modelDirs(root, pattern string) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, nil
	}
	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, m := range matches {
		p := filepath.Join(root, filepath.FromSlash(m))
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			dirs = append(dirs, p)
		}
	}
	return dirs, nil
}
