package scoring

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	vidore "github.com/JarvisUSTC/vidore-benchmark"
)

func TestMaxSimExample(t *testing.T) {
	q := [][]float32{{1, 0}, {0, 1}}
	d := [][]float32{{1, 0}, {1, 1}}

	assert.Equal(t, float32(2), MaxSim(q, d))

	scores, err := Scores(vidore.MultiVectorEmbeddings{q}, vidore.MultiVectorEmbeddings{d}, 1, 1)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, scores.At(0, 0), 1e-6)
}

func TestMaxSimNegativeSimilarities(t *testing.T) {
	q := [][]float32{{1, 0}}
	d := [][]float32{{-1, 0}, {-0.5, 0}}
	assert.Equal(t, float32(-0.5), MaxSim(q, d))

	scores, err := MaxSimScores(vidore.MultiVectorEmbeddings{q}, vidore.MultiVectorEmbeddings{d, {{-2, 0}}}, 2, 2)
	require.NoError(t, err)
	assert.InDelta(t, -0.5, scores.At(0, 0), 1e-6)
	// the shorter document is padded in this block; padding must not win the max
	assert.InDelta(t, -2.0, scores.At(0, 1), 1e-6)
}

func TestDotScoresCosine(t *testing.T) {
	s := float32(1 / math.Sqrt2)
	queries := vidore.GlobalEmbeddings{{1, 0}, {0, 1}}
	docs := vidore.GlobalEmbeddings{{1, 0}, {s, s}, {0, -1}}

	scores, err := Scores(queries, docs, 2, 2)
	require.NoError(t, err)

	r, c := scores.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)

	want := mat.NewDense(2, 3, []float64{
		1, 1 / math.Sqrt2, 0,
		0, 1 / math.Sqrt2, -1,
	})
	assert.True(t, mat.EqualApprox(scores, want, 1e-6))
}

func randomRagged(rng *rand.Rand, n, maxTokens, dim int) vidore.MultiVectorEmbeddings {
	out := make(vidore.MultiVectorEmbeddings, n)
	for i := range out {
		tokens := 1 + rng.Intn(maxTokens)
		out[i] = make([][]float32, tokens)
		for j := range out[i] {
			v := make([]float32, dim)
			for k := range v {
				v[k] = rng.Float32()*2 - 1
			}
			out[i][j] = v
		}
	}
	return out
}

func TestMaxSimScoresBatchInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	queries := randomRagged(rng, 5, 6, 8)
	docs := randomRagged(rng, 7, 12, 8)

	reference, err := MaxSimScores(queries, docs, 1, 1)
	require.NoError(t, err)

	for i := range queries {
		for j := range docs {
			assert.InDelta(t, float64(MaxSim(queries[i], docs[j])), reference.At(i, j), 1e-4)
		}
	}

	for _, sizes := range [][2]int{{2, 3}, {5, 7}, {4, 100}, {100, 1}} {
		got, err := Scores(queries, docs, sizes[0], sizes[1])
		require.NoError(t, err)
		assert.True(t, mat.EqualApprox(reference, got, 1e-4), "batch sizes %v", sizes)
	}
}

func TestSparseScores(t *testing.T) {
	queries := vidore.SparseEmbeddings{{"a": 1, "b": 2}}
	docs := vidore.SparseEmbeddings{{"a": 0.5}, {"c": 3}, {"b": 1, "a": 1}}

	scores, err := Scores(queries, docs, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0, 3}, mat.Row(nil, 0, scores))
}

func TestScoresErrors(t *testing.T) {
	_, err := Scores(vidore.GlobalEmbeddings{{1}}, vidore.MultiVectorEmbeddings{{{1}}}, 1, 1)
	assert.ErrorIs(t, err, vidore.ErrInvalidInput)

	_, err = Scores(vidore.GlobalEmbeddings{{1}}, vidore.GlobalEmbeddings{{1}}, 0, 1)
	assert.ErrorIs(t, err, vidore.ErrInvalidInput)

	_, err = Scores(vidore.GlobalEmbeddings{}, vidore.GlobalEmbeddings{{1}}, 1, 1)
	assert.ErrorIs(t, err, vidore.ErrInvalidInput)

	_, err = Scores(vidore.GlobalEmbeddings{{1, 2}}, vidore.GlobalEmbeddings{{1}}, 1, 1)
	assert.ErrorIs(t, err, vidore.ErrShapeMismatch)

	_, err = Scores(vidore.MultiVectorEmbeddings{{}}, vidore.MultiVectorEmbeddings{{{1}}}, 1, 1)
	assert.ErrorIs(t, err, vidore.ErrInvalidInput)
}

func TestCheckShape(t *testing.T) {
	m := mat.NewDense(2, 3, nil)
	assert.NoError(t, CheckShape(m, 2, 3))
	assert.ErrorIs(t, CheckShape(m, 3, 2), vidore.ErrShapeMismatch)
	assert.ErrorIs(t, CheckShape(nil, 1, 1), vidore.ErrShapeMismatch)
}
