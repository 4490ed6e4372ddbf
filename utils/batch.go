package utils

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// ErrResultCount means a batch worker did not return one result per item
var ErrResultCount = errors.New("worker result count mismatch")

// Batchify splits a slice into batches of specified size.
// The last batch holds the remainder and is never dropped.
func Batchify[T any](items []T, batchSize int) [][]T {
	if batchSize <= 0 {
		panic("batch size must be positive")
	}

	batches := make([][]T, 0, NumBatches(len(items), batchSize))
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[i:end])
	}
	return batches
}

// NumBatches returns how many batches Batchify produces
func NumBatches(n, batchSize int) int {
	if batchSize <= 0 {
		return 0
	}
	return (n + batchSize - 1) / batchSize
}

// BatchProcess processes items in batches with a worker function.
// The worker must return exactly one result per item.
func BatchProcess[T any, R any](
	items []T,
	batchSize int,
	worker func(batch []T) ([]R, error),
) ([]R, error) {
	batches := Batchify(items, batchSize)
	results := make([]R, 0, len(items))

	for i, batch := range batches {
		batchResults, err := worker(batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d failed: %w", i, err)
		}
		if len(batchResults) != len(batch) {
			return nil, fmt.Errorf("%w: batch %d returned %d results for %d items", ErrResultCount, i, len(batchResults), len(batch))
		}
		results = append(results, batchResults...)
	}

	return results, nil
}

// BatchProcessParallel processes items in batches on up to workers goroutines.
// Results keep input order. Only use it for CPU work that touches no shared device.
func BatchProcessParallel[T any, R any](
	items []T,
	batchSize int,
	workers int,
	worker func(batch []T) ([]R, error),
) ([]R, error) {
	batches := Batchify(items, batchSize)
	perBatch := make([][]R, len(batches))

	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, batch := range batches {
		g.Go(func() error {
			res, err := worker(batch)
			if err != nil {
				return fmt.Errorf("batch %d failed: %w", i, err)
			}
			if len(res) != len(batch) {
				return fmt.Errorf("%w: batch %d returned %d results for %d items", ErrResultCount, i, len(res), len(batch))
			}
			perBatch[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]R, 0, len(items))
	for _, res := range perBatch {
		results = append(results, res...)
	}
	return results, nil
}

// NewProgressBar returns a progress bar on stderr, or a silent one when disabled
func NewProgressBar(total int, desc string, enabled bool) *progressbar.ProgressBar {
	var w io.Writer = os.Stderr
	if !enabled {
		w = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
