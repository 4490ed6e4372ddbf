package vidore

import (
	"errors"
	"image"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidInput reports malformed arguments (empty inputs, bad batch sizes, count mismatches)
	ErrInvalidInput = errors.New("invalid input")

	// ErrDocumentKind reports a document whose kind does not match the retriever
	ErrDocumentKind = errors.New("document kind does not match retriever")

	// ErrShapeMismatch reports a score matrix or embedding batch with the wrong dimensions.
	// It always points at a bug in a backend implementation.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// Document is a single retrievable item: a page image or its extracted text
type Document struct {
	ID    string
	Image image.Image
	Text  string
}

// IsImage reports whether the document carries pixels
func (d Document) IsImage() bool {
	return d.Image != nil
}

// Embeddings is an ordered batch of query or document embeddings
type Embeddings interface {
	// Len returns the number of embedded items
	Len() int
}

// GlobalEmbeddings holds one fixed-length vector per item
type GlobalEmbeddings [][]float32

func (e GlobalEmbeddings) Len() int { return len(e) }

// MultiVectorEmbeddings holds one variable-length sequence of token vectors per item
type MultiVectorEmbeddings [][][]float32

func (e MultiVectorEmbeddings) Len() int { return len(e) }

// SparseVector maps a term to its weight
type SparseVector map[string]float32

// SparseEmbeddings holds one sparse term vector per item
type SparseEmbeddings []SparseVector

func (e SparseEmbeddings) Len() int { return len(e) }

// Retriever is the interface every retrieval backend implements
type Retriever interface {
	// VisualEmbedding reports whether documents must be images (true) or text (false)
	VisualEmbedding() bool

	// ForwardQueries embeds queries in batches of batchSize, preserving order
	ForwardQueries(queries []string, batchSize int) (Embeddings, error)

	// ForwardDocuments embeds documents in batches of batchSize, preserving order
	ForwardDocuments(documents []Document, batchSize int) (Embeddings, error)

	// GetScores computes the (len(queries), len(documents)) score matrix
	GetScores(queryEmbeddings, documentEmbeddings Embeddings, batchQuery, batchDoc int) (*mat.Dense, error)

	// Close releases backend resources
	Close() error
}

// Example is one dataset row
type Example struct {
	Query           string
	ImageFilename   string
	Image           image.Image
	TextDescription string
}

// Dataset is a labeled collection of query/document pairs.
// Each example contributes one document; an example with an empty query is corpus only.
type Dataset interface {
	Len() int
	Example(i int) Example
}
