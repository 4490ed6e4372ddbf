package vidore

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcatPreservesOrder(t *testing.T) {
	out, err := Concat([]Embeddings{
		GlobalEmbeddings{{1, 0}, {0, 1}},
		GlobalEmbeddings{{0.5, 0.5}},
	})
	require.NoError(t, err)
	assert.Equal(t, GlobalEmbeddings{{1, 0}, {0, 1}, {0.5, 0.5}}, out)
}

func TestConcatRagged(t *testing.T) {
	out, err := Concat([]Embeddings{
		MultiVectorEmbeddings{{{1, 0}}},
		MultiVectorEmbeddings{{{1, 0}, {0, 1}, {1, 1}}},
	})
	require.NoError(t, err)
	mv := out.(MultiVectorEmbeddings)
	assert.Len(t, mv[0], 1)
	assert.Len(t, mv[1], 3)
}

func TestConcatMixedKinds(t *testing.T) {
	_, err := Concat([]Embeddings{
		GlobalEmbeddings{{1}},
		MultiVectorEmbeddings{{{1}}},
	})
	assert.Error(t, err)
}

func TestSplitThenConcat(t *testing.T) {
	in := MultiVectorEmbeddings{{{1, 0}}, {{0, 1}, {1, 1}}}
	parts := Split(in)
	require.Len(t, parts, 2)
	assert.Equal(t, 1, parts[1].Len())

	out, err := Concat(parts)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	assert.Len(t, Split(SparseEmbeddings{{"a": 1}, {}, {"b": 2}}), 3)
	assert.Empty(t, Split(nil))
}

func TestCheckDocuments(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	docs := []Document{{ID: "a", Image: img}, {ID: "b", Text: "hello"}}

	err := CheckDocuments(docs, true)
	assert.True(t, errors.Is(err, ErrDocumentKind))

	err = CheckDocuments(docs[:1], false)
	assert.True(t, errors.Is(err, ErrDocumentKind))

	assert.NoError(t, CheckDocuments(docs[:1], true))
	assert.NoError(t, CheckDocuments(docs[1:], false))
}

func TestCheckQueries(t *testing.T) {
	assert.ErrorIs(t, CheckQueries(nil), ErrInvalidInput)
	assert.ErrorIs(t, CheckQueries([]string{"a", ""}), ErrInvalidInput)
	assert.NoError(t, CheckQueries([]string{"a"}))
}
