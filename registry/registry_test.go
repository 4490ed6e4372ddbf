package registry

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	vidore "github.com/JarvisUSTC/vidore-benchmark"
)

type namedRetriever struct{ name string }

func (n namedRetriever) VisualEmbedding() bool { return true }
func (n namedRetriever) ForwardQueries([]string, int) (vidore.Embeddings, error) {
	return nil, nil
}
func (n namedRetriever) ForwardDocuments([]vidore.Document, int) (vidore.Embeddings, error) {
	return nil, nil
}
func (n namedRetriever) GetScores(vidore.Embeddings, vidore.Embeddings, int, int) (*mat.Dense, error) {
	return nil, nil
}
func (n namedRetriever) Close() error { return nil }

func constructor(name string) Constructor {
	return func(opts Options) (vidore.Retriever, error) {
		return namedRetriever{name: name + ":" + opts.ModelName}, nil
	}
}

func build(t *testing.T, r *Registry, id string) string {
	t.Helper()
	c, err := r.Resolve(id)
	require.NoError(t, err)
	ret, err := c(Options{ModelName: id})
	require.NoError(t, err)
	return ret.(namedRetriever).name
}

func TestResolveExact(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("vendor/model-a", constructor("a")))
	require.NoError(t, r.Register("vendor/model-b", constructor("b")))

	assert.Equal(t, "a:vendor/model-a", build(t, r, "vendor/model-a"))
}

func TestResolveUnknown(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("vendor/model-a", constructor("a")))

	_, err := r.Resolve("vendor/model-z")
	var unknown *UnknownRetrieverError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "vendor/model-z", unknown.ID)
	assert.True(t, errors.Is(err, ErrUnknownRetriever))
	assert.Contains(t, err.Error(), "vendor/model-a")
}

func TestResolvePattern(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("vidore/colpali*", constructor("colpali")))
	require.NoError(t, r.Register("vidore/colqwen2*", constructor("colqwen")))

	assert.Equal(t, "colpali:vidore/colpali-v1.2", build(t, r, "vidore/colpali-v1.2"))
	assert.Equal(t, "colqwen:vidore/colqwen2-v0.1", build(t, r, "vidore/colqwen2-v0.1"))

	_, err := r.Resolve("other/colpali")
	assert.ErrorIs(t, err, ErrUnknownRetriever)
}

func TestExactBeatsPattern(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("vidore/*", constructor("generic")))
	require.NoError(t, r.Register("vidore/colpali", constructor("exact")))

	assert.Equal(t, "exact:vidore/colpali", build(t, r, "vidore/colpali"))
	assert.Equal(t, "generic:vidore/other", build(t, r, "vidore/other"))
}

func TestResolveAmbiguous(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("vidore/col*", constructor("one")))
	require.NoError(t, r.Register("vidore/colpali*", constructor("two")))

	_, err := r.Resolve("vidore/colpali-v1")
	var ambiguous *AmbiguousRetrieverError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, []string{"vidore/col*", "vidore/colpali*"}, ambiguous.Candidates)
	assert.ErrorIs(t, err, ErrAmbiguousRetriever)
}

func TestRegisterOverwriteWarns(t *testing.T) {
	var buf bytes.Buffer
	r := New(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, r.Register("vendor/model-a", constructor("first")))
	require.NoError(t, r.Register("vendor/model-a", constructor("second")))

	assert.Equal(t, "second:vendor/model-a", build(t, r, "vendor/model-a"))
	assert.Contains(t, buf.String(), "overwriting registered retriever")
	assert.Equal(t, []string{"vendor/model-a"}, r.List())
}

func TestRegisterRejectsBadInput(t *testing.T) {
	r := New(nil)
	assert.ErrorIs(t, r.Register("", constructor("x")), vidore.ErrInvalidInput)
	assert.ErrorIs(t, r.Register("a", nil), vidore.ErrInvalidInput)
	assert.ErrorIs(t, r.Register("a[", constructor("x")), vidore.ErrInvalidInput)
}

func TestCreateSetsModelName(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("vidore/colpali*", constructor("colpali")))

	ret, err := r.Create("vidore/colpali-v1.3", Options{})
	require.NoError(t, err)
	assert.Equal(t, "colpali:vidore/colpali-v1.3", ret.(namedRetriever).name)

	_, err = r.Create("missing", Options{})
	assert.ErrorIs(t, err, ErrUnknownRetriever)
}
