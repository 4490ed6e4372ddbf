// Command vidore evaluates document retrievers on local ViDoRe-style
// datasets and renders late-interaction similarity maps.
package main

import (
	"fmt"
	"os"

	"github.com/JarvisUSTC/vidore-benchmark/cmd/vidore/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
