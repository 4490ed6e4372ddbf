// Package scoring turns query and document embeddings into a score matrix.
//
// Dispatch is driven by the embedding shape: global vectors are scored with a dot
// product, multi-vector sequences with MaxSim, sparse term vectors with a sparse dot.
// Rows follow query order and columns follow document order.
package scoring

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/mat"

	vidore "github.com/JarvisUSTC/vidore-benchmark"
	"github.com/JarvisUSTC/vidore-benchmark/utils"
)

// Scores computes the (queries, documents) score matrix.
// batchQuery and batchDoc bound the MaxSim intermediate tensor; they never change the result.
func Scores(queries, documents vidore.Embeddings, batchQuery, batchDoc int) (*mat.Dense, error) {
	if batchQuery <= 0 || batchDoc <= 0 {
		return nil, fmt.Errorf("%w: batch sizes must be positive (query %d, doc %d)", vidore.ErrInvalidInput, batchQuery, batchDoc)
	}
	if queries == nil || documents == nil || queries.Len() == 0 || documents.Len() == 0 {
		return nil, fmt.Errorf("%w: scoring needs at least one query and one document", vidore.ErrInvalidInput)
	}

	var (
		scores *mat.Dense
		err    error
	)
	switch q := queries.(type) {
	case vidore.GlobalEmbeddings:
		d, ok := documents.(vidore.GlobalEmbeddings)
		if !ok {
			return nil, kindMismatch(queries, documents)
		}
		scores, err = DotScores(q, d)
	case vidore.MultiVectorEmbeddings:
		d, ok := documents.(vidore.MultiVectorEmbeddings)
		if !ok {
			return nil, kindMismatch(queries, documents)
		}
		scores, err = MaxSimScores(q, d, batchQuery, batchDoc)
	case vidore.SparseEmbeddings:
		d, ok := documents.(vidore.SparseEmbeddings)
		if !ok {
			return nil, kindMismatch(queries, documents)
		}
		scores, err = SparseScores(q, d)
	default:
		return nil, fmt.Errorf("%w: unsupported embedding type %T", vidore.ErrInvalidInput, queries)
	}
	if err != nil {
		return nil, err
	}

	if err := CheckShape(scores, queries.Len(), documents.Len()); err != nil {
		return nil, err
	}
	return scores, nil
}

// CheckShape asserts the score matrix is (rows, cols)
func CheckShape(scores *mat.Dense, rows, cols int) error {
	if scores == nil {
		return fmt.Errorf("%w: nil score matrix", vidore.ErrShapeMismatch)
	}
	r, c := scores.Dims()
	if r != rows || c != cols {
		return fmt.Errorf("%w: score matrix is (%d, %d), want (%d, %d)", vidore.ErrShapeMismatch, r, c, rows, cols)
	}
	return nil
}

func kindMismatch(q, d vidore.Embeddings) error {
	return fmt.Errorf("%w: query embeddings %T cannot be scored against document embeddings %T", vidore.ErrInvalidInput, q, d)
}

// DotScores computes q · d for every pair of global vectors
func DotScores(queries, documents vidore.GlobalEmbeddings) (*mat.Dense, error) {
	dim, err := vectorDim(queries, "query")
	if err != nil {
		return nil, err
	}
	docDim, err := vectorDim(documents, "document")
	if err != nil {
		return nil, err
	}
	if dim != docDim {
		return nil, fmt.Errorf("%w: query dim %d, document dim %d", vidore.ErrShapeMismatch, dim, docDim)
	}

	q := pack(queries, len(queries), dim)
	d := pack(documents, len(documents), dim)
	c := blas32.General{Rows: len(queries), Cols: len(documents), Stride: len(documents), Data: make([]float32, len(queries)*len(documents))}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1, q, d, 0, c)

	return toDense(c), nil
}

// MaxSim computes Σ_i max_j (q_i · d_j) for one query and one document
func MaxSim(query, document [][]float32) float32 {
	var total float32
	for _, q := range query {
		best := float32(0)
		for j, d := range document {
			sim := utils.Dot(q, d)
			if j == 0 || sim > best {
				best = sim
			}
		}
		total += best
	}
	return total
}

// MaxSimScores computes MaxSim for every pair of ragged token sequences.
// Each (query batch, document batch) block materialises a padded
// (batchQuery, batchDoc, qTokens, dTokens) similarity tensor; padded positions are
// excluded by the true sequence lengths before the max and the sum.
func MaxSimScores(queries, documents vidore.MultiVectorEmbeddings, batchQuery, batchDoc int) (*mat.Dense, error) {
	dim, err := sequenceDim(queries, "query", 0)
	if err != nil {
		return nil, err
	}
	if _, err := sequenceDim(documents, "document", dim); err != nil {
		return nil, err
	}

	scores := mat.NewDense(len(queries), len(documents), nil)

	qIndex := indices(len(queries))
	dIndex := indices(len(documents))
	for _, qb := range utils.Batchify(qIndex, batchQuery) {
		qMax := maxLen(queries, qb)
		qPacked := make([]blas32.General, len(qb))
		for a, qi := range qb {
			qPacked[a] = pack(queries[qi], qMax, dim)
		}

		for _, db := range utils.Batchify(dIndex, batchDoc) {
			dMax := maxLen(documents, db)
			block := qMax * dMax
			sim := make([]float32, len(qb)*len(db)*block)

			for b, di := range db {
				dPacked := pack(documents[di], dMax, dim)
				for a := range qb {
					offset := (a*len(db) + b) * block
					out := blas32.General{Rows: qMax, Cols: dMax, Stride: dMax, Data: sim[offset : offset+block]}
					blas32.Gemm(blas.NoTrans, blas.Trans, 1, qPacked[a], dPacked, 0, out)
				}
			}

			for a, qi := range qb {
				qLen := len(queries[qi])
				for b, di := range db {
					dLen := len(documents[di])
					offset := (a*len(db) + b) * block
					var total float32
					for i := 0; i < qLen; i++ {
						row := sim[offset+i*dMax : offset+i*dMax+dLen]
						total += utils.Max(row)
					}
					scores.Set(qi, di, float64(total))
				}
			}
		}
	}

	return scores, nil
}

// SparseScores computes the sparse dot product of every pair of term vectors
func SparseScores(queries, documents vidore.SparseEmbeddings) (*mat.Dense, error) {
	scores := mat.NewDense(len(queries), len(documents), nil)
	for i, q := range queries {
		for j, d := range documents {
			small, large := q, d
			if len(large) < len(small) {
				small, large = large, small
			}
			var total float64
			for term, w := range small {
				if v, ok := large[term]; ok {
					total += float64(w) * float64(v)
				}
			}
			scores.Set(i, j, total)
		}
	}
	return scores, nil
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func maxLen(seqs vidore.MultiVectorEmbeddings, idx []int) int {
	m := 0
	for _, i := range idx {
		if len(seqs[i]) > m {
			m = len(seqs[i])
		}
	}
	return m
}

// pack copies rows into a zero-padded (rows x dim) matrix
func pack(vectors [][]float32, rows, dim int) blas32.General {
	data := make([]float32, rows*dim)
	for i, v := range vectors {
		copy(data[i*dim:(i+1)*dim], v)
	}
	return blas32.General{Rows: rows, Cols: dim, Stride: dim, Data: data}
}

func toDense(c blas32.General) *mat.Dense {
	out := mat.NewDense(c.Rows, c.Cols, nil)
	for i := 0; i < c.Rows; i++ {
		for j := 0; j < c.Cols; j++ {
			out.Set(i, j, float64(c.Data[i*c.Stride+j]))
		}
	}
	return out
}

func vectorDim(vectors [][]float32, side string) (int, error) {
	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: %s 0 has an empty vector", vidore.ErrShapeMismatch, side)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: %s %d has dim %d, want %d", vidore.ErrShapeMismatch, side, i, len(v), dim)
		}
	}
	return dim, nil
}

// sequenceDim validates ragged sequences; want 0 takes the dim of the first token
func sequenceDim(seqs vidore.MultiVectorEmbeddings, side string, want int) (int, error) {
	dim := want
	for i, seq := range seqs {
		if len(seq) == 0 {
			return 0, fmt.Errorf("%w: %s %d has no token vectors", vidore.ErrInvalidInput, side, i)
		}
		for j, v := range seq {
			if dim == 0 {
				dim = len(v)
			}
			if len(v) != dim || dim == 0 {
				return 0, fmt.Errorf("%w: %s %d token %d has dim %d, want %d", vidore.ErrShapeMismatch, side, i, j, len(v), dim)
			}
		}
	}
	return dim, nil
}
