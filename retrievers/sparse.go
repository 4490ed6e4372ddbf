package retrievers

import (
	"math"
	"runtime"

	vidore "github.com/JarvisUSTC/vidore-benchmark"
	"github.com/JarvisUSTC/vidore-benchmark/registry"
	"github.com/JarvisUSTC/vidore-benchmark/tokenizer"
	"github.com/JarvisUSTC/vidore-benchmark/utils"
)

// Weighting turns per-document term counts into document weights.
// Document frequencies cover the whole collection passed to ForwardDocuments.
type Weighting interface {
	Documents(counts []vidore.SparseVector) vidore.SparseEmbeddings
	Query(counts vidore.SparseVector) vidore.SparseVector
}

// Sparse is a text retriever over character n-gram counts. It keeps no index:
// each ForwardDocuments call is a complete collection.
type Sparse struct {
	base
	tokenizer *tokenizer.CharNGramTokenizer
	weighting Weighting
}

// NewSparse builds a sparse retriever
func NewSparse(tok *tokenizer.CharNGramTokenizer, weighting Weighting, opts registry.Options) *Sparse {
	return &Sparse{
		base:      newBase(false, opts.Logger),
		tokenizer: tok,
		weighting: weighting,
	}
}

// NewBM25Retriever uses char_wb 3..5 n-grams with k1 1.5 and b 0.75
func NewBM25Retriever(opts registry.Options) (vidore.Retriever, error) {
	return NewSparse(tokenizer.NewCharNGramTokenizer(3, 5, "char_wb"), BM25{K1: 1.5, B: 0.75}, opts), nil
}

// NewTfIdfRetriever uses char_wb 3..5 n-grams with smoothed idf
func NewTfIdfRetriever(opts registry.Options) (vidore.Retriever, error) {
	return NewSparse(tokenizer.NewCharNGramTokenizer(3, 5, "char_wb"), TfIdf{}, opts), nil
}

// ForwardQueries maps each query to its weighted n-gram counts
func (s *Sparse) ForwardQueries(queries []string, batchSize int) (vidore.Embeddings, error) {
	if err := vidore.CheckQueries(queries); err != nil {
		return nil, err
	}
	return forwardBatches(queries, batchSize, func(batch []string) (vidore.Embeddings, error) {
		out := make(vidore.SparseEmbeddings, len(batch))
		for i, q := range batch {
			out[i] = s.weighting.Query(s.tokenizer.Counts(q))
		}
		return out, nil
	})
}

// ForwardDocuments counts n-grams batch by batch, then weights the whole collection
func (s *Sparse) ForwardDocuments(documents []vidore.Document, batchSize int) (vidore.Embeddings, error) {
	if err := vidore.CheckDocuments(documents, s.visual); err != nil {
		return nil, err
	}
	counts, err := forwardBatches(documents, batchSize, func(batch []vidore.Document) (vidore.Embeddings, error) {
		texts := documentTexts(batch)
		vectors, err := utils.BatchProcessParallel(texts, 1, runtime.NumCPU(), func(t []string) ([]vidore.SparseVector, error) {
			return []vidore.SparseVector{s.tokenizer.Counts(t[0])}, nil
		})
		if err != nil {
			return nil, err
		}
		return vidore.SparseEmbeddings(vectors), nil
	})
	if err != nil {
		return nil, err
	}
	return s.weighting.Documents(counts.(vidore.SparseEmbeddings)), nil
}

// Close is a no-op
func (s *Sparse) Close() error {
	return nil
}

// BM25 weights documents with Okapi BM25. Queries keep raw counts.
type BM25 struct {
	K1 float64
	B  float64
	// Epsilon is added to every saturated term frequency before idf
	Epsilon float64
}

// Documents applies idf = log((N - df + 0.5) / (df + 0.5) + 1) and length-normalised saturation
func (w BM25) Documents(counts []vidore.SparseVector) vidore.SparseEmbeddings {
	n := float64(len(counts))
	df := documentFrequencies(counts)

	lengths := make([]float64, len(counts))
	var total float64
	for i, c := range counts {
		for _, v := range c {
			lengths[i] += float64(v)
		}
		total += lengths[i]
	}
	avg := total / math.Max(n, 1)
	if avg == 0 {
		avg = 1
	}

	out := make(vidore.SparseEmbeddings, len(counts))
	for i, c := range counts {
		norm := w.K1 * (1 - w.B + w.B*lengths[i]/avg)
		vec := make(vidore.SparseVector, len(c))
		for term, tf := range c {
			d := float64(df[term])
			idf := math.Log((n-d+0.5)/(d+0.5) + 1)
			score := float64(tf)*(w.K1+1)/(float64(tf)+norm) + w.Epsilon
			vec[term] = float32(score * idf)
		}
		out[i] = vec
	}
	return out
}

// Query returns counts unchanged
func (w BM25) Query(counts vidore.SparseVector) vidore.SparseVector {
	return counts
}

// TfIdf weights length-normalised term frequencies with idf = log((N + 1) / (df + 1)) + 1.
// Document vectors are L2 normalised, then scaled by idf once more so a dot product with
// a length-normalised query equals the idf-weighted query against the normalised document.
type TfIdf struct{}

// Documents returns idf * L2(tf * idf) per document
func (TfIdf) Documents(counts []vidore.SparseVector) vidore.SparseEmbeddings {
	n := float64(len(counts))
	df := documentFrequencies(counts)
	idf := make(map[string]float64, len(df))
	for term, d := range df {
		idf[term] = math.Log((n+1)/(float64(d)+1)) + 1
	}

	out := make(vidore.SparseEmbeddings, len(counts))
	for i, c := range counts {
		tf := lengthNormalize(c)
		var sq float64
		weights := make(map[string]float64, len(tf))
		for term, v := range tf {
			weights[term] = float64(v) * idf[term]
			sq += weights[term] * weights[term]
		}
		norm := math.Sqrt(sq)
		if norm == 0 {
			norm = 1
		}
		vec := make(vidore.SparseVector, len(weights))
		for term, v := range weights {
			vec[term] = float32(v / norm * idf[term])
		}
		out[i] = vec
	}
	return out
}

// Query returns term frequencies divided by the query length
func (TfIdf) Query(counts vidore.SparseVector) vidore.SparseVector {
	return lengthNormalize(counts)
}

func documentFrequencies(counts []vidore.SparseVector) map[string]int {
	df := make(map[string]int)
	for _, c := range counts {
		for term := range c {
			df[term]++
		}
	}
	return df
}

func lengthNormalize(counts vidore.SparseVector) vidore.SparseVector {
	var sum float32
	for _, v := range counts {
		sum += v
	}
	out := make(vidore.SparseVector, len(counts))
	for term, v := range counts {
		if sum > 0 {
			v /= sum
		}
		out[term] = v
	}
	return out
}
