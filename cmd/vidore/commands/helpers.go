package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	vidore "github.com/JarvisUSTC/vidore-benchmark"
	"github.com/JarvisUSTC/vidore-benchmark/device"
	"github.com/JarvisUSTC/vidore-benchmark/models"
	"github.com/JarvisUSTC/vidore-benchmark/registry"
)

// openRetriever resolves the device and builds the retriever registered for id
func openRetriever(e env, id, deviceSelector string) (vidore.Retriever, error) {
	if e.cfg.ORTLibrary != "" {
		// the result is cached; ONNX-backed retrievers report it when they open a session
		if err := models.InitRuntime(e.cfg.ORTLibrary); err != nil {
			e.log.Warn("onnx runtime unavailable", "library", e.cfg.ORTLibrary, "error", err)
		}
	}

	dev, err := device.Resolve(deviceSelector, models.CUDAAvailable)
	if err != nil {
		return nil, err
	}
	e.log.Info("resolved device", "selector", deviceSelector, "device", dev.String())

	ret, err := e.reg.Create(id, registry.Options{
		ModelDir: e.cfg.ModelDir(id),
		Device:   dev,
		Logger:   e.log,
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
