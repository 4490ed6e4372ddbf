// Package interpretability renders per-token similarity maps of a
// late-interaction retriever over a page image.
package interpretability

import (
	"fmt"
	"image"

	"gonum.org/v1/gonum/mat"

	vidore "github.com/JarvisUSTC/vidore-benchmark"
)

// Map is a gridH x gridW grid of similarities for one query token
type Map [][]float32

// PatchRetriever is a multi-vector retriever whose page embeddings hold
// PatchGrid() x PatchGrid() image patch vectors in row-major order, starting at
// index PatchOffset()
type PatchRetriever interface {
	vidore.Retriever
	PatchGrid() int
	PatchOffset() int
}

// SimilarityMaps computes, for each query token, the dot product with every
// image patch laid out on a gridH x gridW grid. Patch vectors beyond the grid
// (prompt tokens) are ignored.
func SimilarityMaps(query [][]float32, patches [][]float32, gridW, gridH int) ([]Map, error) {
	if gridW <= 0 || gridH <= 0 {
		return nil, fmt.Errorf("%w: grid %dx%d", vidore.ErrInvalidInput, gridW, gridH)
	}
	n := gridW * gridH
	if len(patches) < n {
		return nil, fmt.Errorf("%w: %d patch vectors for a %dx%d grid", vidore.ErrShapeMismatch, len(patches), gridW, gridH)
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", vidore.ErrInvalidInput)
	}
	dim := len(query[0])

	q := mat.NewDense(len(query), dim, nil)
	for i, v := range query {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: query token %d has dim %d, want %d", vidore.ErrShapeMismatch, i, len(v), dim)
		}
		for k, x := range v {
			q.Set(i, k, float64(x))
		}
	}
	p := mat.NewDense(n, dim, nil)
	for j := 0; j < n; j++ {
		if len(patches[j]) != dim {
			return nil, fmt.Errorf("%w: patch %d has dim %d, want %d", vidore.ErrShapeMismatch, j, len(patches[j]), dim)
		}
		for k, x := range patches[j] {
			p.Set(j, k, float64(x))
		}
	}

	var sim mat.Dense
	sim.Mul(q, p.T())

	maps := make([]Map, len(query))
	for i := range maps {
		m := make(Map, gridH)
		for y := 0; y < gridH; y++ {
			m[y] = make([]float32, gridW)
			for x := 0; x < gridW; x++ {
				m[y][x] = float32(sim.At(i, y*gridW+x))
			}
		}
		maps[i] = m
	}
	return maps, nil
}

// Normalized rescales m to [0, 1]; a constant map becomes all zeros
func (m Map) Normalized() Map {
	lo, hi := float32(0), float32(0)
	first := true
	for _, row := range m {
		for _, v := range row {
			if first {
				lo, hi = v, v
				first = false
				continue
			}
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}
	out := make(Map, len(m))
	for y, row := range m {
		out[y] = make([]float32, len(row))
		if hi == lo {
			continue
		}
		for x, v := range row {
			out[y][x] = (v - lo) / (hi - lo)
		}
	}
	return out
}

// Generate embeds one page and one query with r and returns a map per query token
func Generate(r PatchRetriever, page image.Image, query string) ([]Map, error) {
	if !r.VisualEmbedding() {
		return nil, fmt.Errorf("%w: similarity maps need an image retriever", vidore.ErrDocumentKind)
	}
	qEmb, err := r.ForwardQueries([]string{query}, 1)
	if err != nil {
		return nil, err
	}
	dEmb, err := r.ForwardDocuments([]vidore.Document{{ID: "page", Image: page}}, 1)
	if err != nil {
		return nil, err
	}
	q, ok := qEmb.(vidore.MultiVectorEmbeddings)
	if !ok {
		return nil, fmt.Errorf("%w: query embeddings are %T, want multi-vector", vidore.ErrShapeMismatch, qEmb)
	}
	d, ok := dEmb.(vidore.MultiVectorEmbeddings)
	if !ok {
		return nil, fmt.Errorf("%w: document embeddings are %T, want multi-vector", vidore.ErrShapeMismatch, dEmb)
	}
	grid, offset := r.PatchGrid(), r.PatchOffset()
	if offset < 0 || offset > len(d[0]) {
		return nil, fmt.Errorf("%w: patch offset %d in a page of %d vectors", vidore.ErrShapeMismatch, offset, len(d[0]))
	}
	return SimilarityMaps(q[0], d[0][offset:], grid, grid)
}
