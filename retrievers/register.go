package retrievers

import "github.com/JarvisUSTC/vidore-benchmark/registry"

// Entries lists every identifier or pattern with its constructor
var Entries = []struct {
	Pattern     string
	Constructor registry.Constructor
}{
	{"nomic-ai/nomic-embed-vision-v1.5", NewNomic},
	{"jinaai/jina-clip-v1", NewJinaCLIP},
	{"vidore/colpali*", NewColPali},
	{"vidore/colqwen2*", NewColQwen2},
	{"colbert-ir/colbertv2.0", NewColBERT},
	{"bm25", NewBM25Retriever},
	{"tfidf", NewTfIdfRetriever},
}

// Register adds every known retriever to reg
func Register(reg *registry.Registry) error {
	for _, e := range Entries {
		if err := reg.Register(e.Pattern, e.Constructor); err != nil {
			return err
		}
	}
	return nil
}
