package vidore

import "fmt"

// Concat joins per-batch embeddings of the same kind, preserving order
func Concat(batches []Embeddings) (Embeddings, error) {
	if len(batches) == 0 {
		return nil, fmt.Errorf("%w: no embedding batches", ErrInvalidInput)
	}

	switch batches[0].(type) {
	case GlobalEmbeddings:
		var out GlobalEmbeddings
		for i, b := range batches {
			g, ok := b.(GlobalEmbeddings)
			if !ok {
				return nil, fmt.Errorf("batch %d: expected global embeddings, got %T", i, b)
			}
			out = append(out, g...)
		}
		return out, nil
	case MultiVectorEmbeddings:
		var out MultiVectorEmbeddings
		for i, b := range batches {
			m, ok := b.(MultiVectorEmbeddings)
			if !ok {
				return nil, fmt.Errorf("batch %d: expected multi-vector embeddings, got %T", i, b)
			}
			out = append(out, m...)
		}
		return out, nil
	case SparseEmbeddings:
		var out SparseEmbeddings
		for i, b := range batches {
			s, ok := b.(SparseEmbeddings)
			if !ok {
				return nil, fmt.Errorf("batch %d: expected sparse embeddings, got %T", i, b)
			}
			out = append(out, s...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported embedding type %T", batches[0])
	}
}

// Split returns one single-item Embeddings per item of e, the inverse of Concat.
// Unknown kinds yield nil.
func Split(e Embeddings) []Embeddings {
	var out []Embeddings
	switch e := e.(type) {
	case GlobalEmbeddings:
		for i := range e {
			out = append(out, e[i:i+1])
		}
	case MultiVectorEmbeddings:
		for i := range e {
			out = append(out, e[i:i+1])
		}
	case SparseEmbeddings:
		for i := range e {
			out = append(out, e[i:i+1])
		}
	}
	return out
}

// CheckDocuments verifies every document matches the retriever's document kind
func CheckDocuments(documents []Document, visual bool) error {
	for i, doc := range documents {
		if visual && !doc.IsImage() {
			return fmt.Errorf("%w: document %d (%q) is text, retriever expects images", ErrDocumentKind, i, doc.ID)
		}
		if !visual && doc.IsImage() {
			return fmt.Errorf("%w: document %d (%q) is an image, retriever expects text", ErrDocumentKind, i, doc.ID)
		}
	}
	return nil
}

// CheckQueries verifies the query list is usable
func CheckQueries(queries []string) error {
	if len(queries) == 0 {
		return fmt.Errorf("%w: no queries", ErrInvalidInput)
	}
	for i, q := range queries {
		if q == "" {
			return fmt.Errorf("%w: query %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}
