// Package evaluation runs a retriever over a labeled dataset and reports
// ranking metrics.
package evaluation

import (
	"context"
	"fmt"
	"slices"
	"time"

	vidore "github.com/JarvisUSTC/vidore-benchmark"
	"github.com/JarvisUSTC/vidore-benchmark/logging"
	"github.com/JarvisUSTC/vidore-benchmark/scoring"
	"github.com/JarvisUSTC/vidore-benchmark/utils"
)

// Options controls batching and reporting
type Options struct {
	BatchQuery int
	BatchDoc   int
	// BatchScoreQuery and BatchScoreDoc bound the two axes of the scoring blocks
	BatchScoreQuery int
	BatchScoreDoc   int
	// KValues are the metric cut-offs; empty means DefaultKValues
	KValues      []int
	ShowProgress bool
}

// Corpus is what a dataset contributes to an evaluation: unique documents,
// unique queries and the relevance judgements linking them
type Corpus struct {
	Documents []vidore.Document
	Queries   []string
	// Relevant maps a query to the filenames of its relevant documents
	Relevant map[string]map[string]bool
}

// BuildCorpus extracts documents and queries from ds. Documents are keyed by
// image filename, keeping the first occurrence; queries are de-duplicated in
// first-seen order and empty ones skipped.
func BuildCorpus(ds vidore.Dataset, visual bool) Corpus {
	c := Corpus{Relevant: make(map[string]map[string]bool)}
	seenDocs := make(map[string]bool)

	for i := 0; i < ds.Len(); i++ {
		ex := ds.Example(i)
		if !seenDocs[ex.ImageFilename] {
			seenDocs[ex.ImageFilename] = true
			doc := vidore.Document{ID: ex.ImageFilename}
			if visual {
				doc.Image = ex.Image
			} else {
				doc.Text = ex.TextDescription
			}
			c.Documents = append(c.Documents, doc)
		}

		if ex.Query == "" {
			continue
		}
		rel, ok := c.Relevant[ex.Query]
		if !ok {
			rel = make(map[string]bool)
			c.Relevant[ex.Query] = rel
			c.Queries = append(c.Queries, ex.Query)
		}
		rel[ex.ImageFilename] = true
	}
	return c
}

// EvaluateDataset embeds and scores every query against every document of ds
// and returns metrics averaged over queries
func EvaluateDataset(ctx context.Context, retriever vidore.Retriever, ds vidore.Dataset, opts Options) (Metrics, error) {
	log := logging.FromContext(ctx)

	if opts.BatchQuery <= 0 || opts.BatchDoc <= 0 || opts.BatchScoreQuery <= 0 || opts.BatchScoreDoc <= 0 {
		return nil, fmt.Errorf("%w: batch sizes must be positive (query %d, doc %d, score %dx%d)",
			vidore.ErrInvalidInput, opts.BatchQuery, opts.BatchDoc, opts.BatchScoreQuery, opts.BatchScoreDoc)
	}
	kValues := opts.KValues
	if len(kValues) == 0 {
		kValues = DefaultKValues
	}
	for _, k := range kValues {
		if k <= 0 {
			return nil, fmt.Errorf("%w: cut-off must be positive, got %d", vidore.ErrInvalidInput, k)
		}
	}

	corpus := BuildCorpus(ds, retriever.VisualEmbedding())
	if len(corpus.Queries) == 0 {
		return nil, fmt.Errorf("%w: dataset has no queries", vidore.ErrInvalidInput)
	}
	if len(corpus.Documents) == 0 {
		return nil, fmt.Errorf("%w: dataset has no documents", vidore.ErrInvalidInput)
	}
	if err := vidore.CheckDocuments(corpus.Documents, retriever.VisualEmbedding()); err != nil {
		return nil, err
	}

	log.Info("evaluating",
		"queries", len(corpus.Queries),
		"documents", len(corpus.Documents),
		"visual", retriever.VisualEmbedding())

	bar := utils.NewProgressBar(3+len(corpus.Queries), "embedding queries", opts.ShowProgress)
	defer bar.Close()
	start := time.Now()

	queryEmb, err := retriever.ForwardQueries(corpus.Queries, opts.BatchQuery)
	if err != nil {
		return nil, fmt.Errorf("forward queries: %w", err)
	}
	_ = bar.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bar.Describe("embedding documents")
	docEmb, err := retriever.ForwardDocuments(corpus.Documents, opts.BatchDoc)
	if err != nil {
		return nil, fmt.Errorf("forward documents: %w", err)
	}
	_ = bar.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bar.Describe("scoring")
	scores, err := retriever.GetScores(queryEmb, docEmb, opts.BatchScoreQuery, opts.BatchScoreDoc)
	if err != nil {
		return nil, fmt.Errorf("get scores: %w", err)
	}
	if err := scoring.CheckShape(scores, len(corpus.Queries), len(corpus.Documents)); err != nil {
		return nil, err
	}
	_ = bar.Add(1)

	bar.Describe("ranking")
	ids := make([]string, len(corpus.Documents))
	for j, d := range corpus.Documents {
		ids[j] = d.ID
	}
	maxK := slices.Max(kValues)
	perQuery := make([]Metrics, len(corpus.Queries))
	row := make([]float64, len(ids))
	for i, q := range corpus.Queries {
		for j := range row {
			row[j] = scores.At(i, j)
		}
		perQuery[i] = QueryMetrics(Rank(ids, row, maxK), corpus.Relevant[q], kValues)
		_ = bar.Add(1)
	}

	metrics := Mean(perQuery)
	log.Info("evaluation done", "elapsed", time.Since(start).Round(time.Millisecond).String())
	return metrics, nil
}

// Rank returns up to k ids ordered by descending score; ties keep id order
func Rank(ids []string, scores []float64, k int) []string {
	top, _ := utils.TopK(scores, k)
	out := make([]string, len(top))
	for i, idx := range top {
		out[i] = ids[idx]
	}
	return out
}
