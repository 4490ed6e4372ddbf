// Package retrievers holds the concrete retriever backends and the list of
// identifiers they are registered under.
package retrievers

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	vidore "github.com/JarvisUSTC/vidore-benchmark"
	"github.com/JarvisUSTC/vidore-benchmark/scoring"
	"github.com/JarvisUSTC/vidore-benchmark/utils"
)

// base carries the document kind and shape-driven scoring shared by every retriever
type base struct {
	visual bool
	logger *slog.Logger
}

func newBase(visual bool, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{visual: visual, logger: logger}
}

// VisualEmbedding reports whether documents are images
func (b *base) VisualEmbedding() bool {
	return b.visual
}

// GetScores scores every query against every document
func (b *base) GetScores(queryEmbeddings, documentEmbeddings vidore.Embeddings, batchQuery, batchDoc int) (*mat.Dense, error) {
	if queryEmbeddings != nil && documentEmbeddings != nil {
		b.logger.Debug("scoring", "queries", queryEmbeddings.Len(), "documents", documentEmbeddings.Len(),
			"batch_query", batchQuery, "batch_doc", batchDoc)
	}
	return scoring.Scores(queryEmbeddings, documentEmbeddings, batchQuery, batchDoc)
}

// forwardBatches runs encode over consecutive batches and concatenates the results.
// A batch yielding the wrong number of embeddings is a backend bug.
func forwardBatches[T any](items []T, batchSize int, encode func(batch []T) (vidore.Embeddings, error)) (vidore.Embeddings, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", vidore.ErrInvalidInput, batchSize)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: nothing to embed", vidore.ErrInvalidInput)
	}

	perItem, err := utils.BatchProcess(items, batchSize, func(batch []T) ([]vidore.Embeddings, error) {
		emb, err := encode(batch)
		if err != nil {
			return nil, err
		}
		return vidore.Split(emb), nil
	})
	if errors.Is(err, utils.ErrResultCount) {
		return nil, fmt.Errorf("%w: %v", vidore.ErrShapeMismatch, err)
	}
	if err != nil {
		return nil, err
	}
	return vidore.Concat(perItem)
}

// modelFile returns dir/name, failing when the file is absent
func modelFile(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: model file %s: %v", vidore.ErrInvalidInput, path, err)
	}
	return path, nil
}

func documentImages(documents []vidore.Document) []image.Image {
	out := make([]image.Image, len(documents))
	for i, d := range documents {
		out[i] = d.Image
	}
	return out
}

func documentTexts(documents []vidore.Document) []string {
	out := make([]string, len(documents))
	for i, d := range documents {
		out[i] = d.Text
	}
	return out
}

type closer interface{ Close() error }

// closeAll closes every non-nil resource and returns the first error
func closeAll(resources ...closer) error {
	var firstErr error
	for _, r := range resources {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
