package evaluation

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	vidore "github.com/JarvisUSTC/vidore-benchmark"
	"github.com/JarvisUSTC/vidore-benchmark/dataset"
	"github.com/JarvisUSTC/vidore-benchmark/logging"
	"github.com/JarvisUSTC/vidore-benchmark/registry"
	"github.com/JarvisUSTC/vidore-benchmark/retrievers"
	"github.com/JarvisUSTC/vidore-benchmark/scoring"
	"github.com/JarvisUSTC/vidore-benchmark/utils"
)

// colorRetriever embeds a page as its normalised RGB colour and a query by a lookup table
type colorRetriever struct {
	queries    map[string][]float32
	maxBatch   int
	docBatches int
	scoreBatch [2]int
}

func (r *colorRetriever) VisualEmbedding() bool { return true }

func (r *colorRetriever) ForwardQueries(queries []string, batchSize int) (vidore.Embeddings, error) {
	out := vidore.GlobalEmbeddings{}
	for _, batch := range utils.Batchify(queries, batchSize) {
		r.maxBatch = max(r.maxBatch, len(batch))
		for _, q := range batch {
			out = append(out, utils.Normalize(r.queries[q]))
		}
	}
	return out, nil
}

func (r *colorRetriever) ForwardDocuments(documents []vidore.Document, batchSize int) (vidore.Embeddings, error) {
	if err := vidore.CheckDocuments(documents, true); err != nil {
		return nil, err
	}
	out := vidore.GlobalEmbeddings{}
	for _, batch := range utils.Batchify(documents, batchSize) {
		r.docBatches++
		for _, d := range batch {
			c := color.RGBAModel.Convert(d.Image.At(0, 0)).(color.RGBA)
			out = append(out, utils.Normalize([]float32{float32(c.R), float32(c.G), float32(c.B)}))
		}
	}
	return out, nil
}

func (r *colorRetriever) GetScores(q, d vidore.Embeddings, bq, bd int) (*mat.Dense, error) {
	r.scoreBatch = [2]int{bq, bd}
	return scoring.Scores(q, d, bq, bd)
}

func (r *colorRetriever) Close() error { return nil }

func page(c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, c)
	return img
}

func colorDataset() *dataset.Dataset {
	return dataset.New("colors", []vidore.Example{
		{Query: "red", ImageFilename: "r.png", Image: page(color.RGBA{255, 0, 0, 255}), TextDescription: "crimson red"},
		{Query: "green", ImageFilename: "g.png", Image: page(color.RGBA{0, 255, 0, 255}), TextDescription: "forest green"},
		{Query: "", ImageFilename: "b.png", Image: page(color.RGBA{0, 0, 255, 255}), TextDescription: "ocean blue"},
		{Query: "red", ImageFilename: "r.png", Image: page(color.RGBA{255, 0, 0, 255}), TextDescription: "crimson red"},
		{Query: "warm", ImageFilename: "y.png", Image: page(color.RGBA{255, 255, 0, 255}), TextDescription: "warm yellow"},
		{Query: "warm", ImageFilename: "r.png", Image: page(color.RGBA{255, 0, 0, 255}), TextDescription: "crimson red"},
	})
}

func newColorRetriever() *colorRetriever {
	return &colorRetriever{queries: map[string][]float32{
		"red":   {1, 0, 0},
		"green": {0, 1, 0},
		"warm":  {1, 1, 0.1},
	}}
}

func TestBuildCorpus(t *testing.T) {
	c := BuildCorpus(colorDataset(), true)

	assert.Equal(t, []string{"red", "green", "warm"}, c.Queries)
	require.Len(t, c.Documents, 4)
	assert.Equal(t, "r.png", c.Documents[0].ID)
	assert.Equal(t, "b.png", c.Documents[2].ID)
	assert.NotNil(t, c.Documents[0].Image)
	assert.Equal(t, map[string]bool{"y.png": true, "r.png": true}, c.Relevant["warm"])

	text := BuildCorpus(colorDataset(), false)
	assert.Nil(t, text.Documents[0].Image)
	assert.Equal(t, "crimson red", text.Documents[0].Text)
}

func TestEvaluatePerfectRetriever(t *testing.T) {
	m, err := EvaluateDataset(context.Background(), newColorRetriever(), colorDataset(),
		Options{BatchQuery: 2, BatchDoc: 3, BatchScoreQuery: 2, BatchScoreDoc: 2, KValues: []int{1, 2, 10}})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, m[Key(NDCG, 10)], 1e-9)
	assert.InDelta(t, 1.0, m[Key(MRR, 1)], 1e-9)
	assert.InDelta(t, 1.0, m[Key(Recall, 2)], 1e-9)
	// "warm" has two relevant pages, so recall@1 is 1/2 for it
	assert.InDelta(t, (1+1+0.5)/3.0, m[Key(Recall, 1)], 1e-9)
	assert.InDelta(t, (0.5+0.5+1)/3.0, m[Key(Precision, 2)], 1e-9)
	assert.Len(t, m, 15)
}

func TestEvaluateBatchSizeInvariance(t *testing.T) {
	ref, err := EvaluateDataset(context.Background(), newColorRetriever(), colorDataset(),
		Options{BatchQuery: 1, BatchDoc: 1, BatchScoreQuery: 1, BatchScoreDoc: 1})
	require.NoError(t, err)
	assert.Len(t, ref, len(DefaultKValues)*5)

	for _, bs := range [][3]int{{2, 2, 2}, {3, 4, 1}, {100, 100, 100}} {
		r := newColorRetriever()
		m, err := EvaluateDataset(context.Background(), r, colorDataset(),
			Options{BatchQuery: bs[0], BatchDoc: bs[1], BatchScoreQuery: bs[2], BatchScoreDoc: bs[2]})
		require.NoError(t, err)
		assert.LessOrEqual(t, r.maxBatch, bs[0])
		for name, v := range ref {
			assert.InDelta(t, v, m[name], 1e-9, "%s with batch sizes %v", name, bs)
		}
	}
}

func TestEvaluateTextRetriever(t *testing.T) {
	bm25, err := retrievers.NewBM25Retriever(registry.Options{})
	require.NoError(t, err)

	ds := dataset.New("text", []vidore.Example{
		{Query: "crimson", ImageFilename: "r.png", TextDescription: "crimson red"},
		{Query: "forest", ImageFilename: "g.png", TextDescription: "forest green"},
		{Query: "ocean", ImageFilename: "b.png", TextDescription: "ocean blue"},
	})

	var buf bytes.Buffer
	ctx := logging.WithLogger(context.Background(), logging.NewWithWriter(&buf, "info", "text"))
	m, err := EvaluateDataset(ctx, bm25, ds, Options{BatchQuery: 2, BatchDoc: 2, BatchScoreQuery: 2, BatchScoreDoc: 2, KValues: []int{1}})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, m[Key(NDCG, 1)], 1e-9)
	assert.Contains(t, buf.String(), "evaluation done")
}

func TestEvaluatePassesScoringBatchSizes(t *testing.T) {
	r := newColorRetriever()
	_, err := EvaluateDataset(context.Background(), r, colorDataset(),
		Options{BatchQuery: 1, BatchDoc: 1, BatchScoreQuery: 2, BatchScoreDoc: 3})
	require.NoError(t, err)
	assert.Equal(t, [2]int{2, 3}, r.scoreBatch)

	_, err = EvaluateDataset(context.Background(), newColorRetriever(), colorDataset(),
		Options{BatchQuery: 1, BatchDoc: 1, BatchScoreQuery: 2})
	assert.ErrorIs(t, err, vidore.ErrInvalidInput)
}

func TestEvaluateRejectsBadOptions(t *testing.T) {
	ctx := context.Background()
	_, err := EvaluateDataset(ctx, newColorRetriever(), colorDataset(), Options{BatchQuery: 0, BatchDoc: 1, BatchScoreQuery: 1, BatchScoreDoc: 1})
	assert.ErrorIs(t, err, vidore.ErrInvalidInput)

	_, err = EvaluateDataset(ctx, newColorRetriever(), colorDataset(), Options{BatchQuery: 1, BatchDoc: 1, BatchScoreQuery: 1, BatchScoreDoc: 1, KValues: []int{0}})
	assert.ErrorIs(t, err, vidore.ErrInvalidInput)

	empty := dataset.New("empty", []vidore.Example{{ImageFilename: "a.png", Image: page(color.RGBA{})}})
	_, err = EvaluateDataset(ctx, newColorRetriever(), empty, Options{BatchQuery: 1, BatchDoc: 1, BatchScoreQuery: 1, BatchScoreDoc: 1})
	assert.ErrorIs(t, err, vidore.ErrInvalidInput)

	noImages := dataset.New("text", []vidore.Example{{Query: "red", ImageFilename: "a.png", TextDescription: "red"}})
	_, err = EvaluateDataset(ctx, newColorRetriever(), noImages, Options{BatchQuery: 1, BatchDoc: 1, BatchScoreQuery: 1, BatchScoreDoc: 1})
	assert.ErrorIs(t, err, vidore.ErrDocumentKind)
}

func TestQueryMetrics(t *testing.T) {
	m := QueryMetrics([]string{"a", "b", "c"}, map[string]bool{"b": true}, []int{1, 3})

	assert.Zero(t, m[Key(NDCG, 1)])
	assert.InDelta(t, 1/math.Log2(3), m[Key(NDCG, 3)], 1e-9)
	assert.InDelta(t, 0.5, m[Key(MRR, 3)], 1e-9)
	assert.InDelta(t, 0.5, m[Key(MAP, 3)], 1e-9)
	assert.InDelta(t, 1.0, m[Key(Recall, 3)], 1e-9)
	assert.InDelta(t, 1/3.0, m[Key(Precision, 3)], 1e-9)
	assert.Zero(t, m[Key(Recall, 1)])
}

func TestRankTiesKeepDocumentOrder(t *testing.T) {
	got := Rank([]string{"a", "b", "c", "d"}, []float64{0.5, 0.9, 0.5, 0.9}, 3)
	assert.Equal(t, []string{"b", "d", "a"}, got)
}

func TestMetricNamesOrder(t *testing.T) {
	m := Metrics{"recall_at_10": 1, "ndcg_at_10": 1, "ndcg_at_5": 1, "mrr_at_1": 1}
	assert.Equal(t, []string{"ndcg_at_5", "ndcg_at_10", "recall_at_10", "mrr_at_1"}, m.Names())
}
