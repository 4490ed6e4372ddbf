package retrievers

import (
	"fmt"

	vidore "github.com/JarvisUSTC/vidore-benchmark"
	"github.com/JarvisUSTC/vidore-benchmark/models"
	"github.com/JarvisUSTC/vidore-benchmark/registry"
	"github.com/JarvisUSTC/vidore-benchmark/tokenizer"
)

const (
	colbertQueryPrefix    = "[Q] "
	colbertDocumentPrefix = "[D] "
	colbertQueryMaxLen    = 32
	colbertDocumentMaxLen = 180
)

// ColBERT is a text late-interaction retriever. Queries and documents share one
// encoder and differ only by their marker prefix.
type ColBERT struct {
	base
	model          *models.ColBERT
	queryTokenizer tokenizer.Encoder
	docTokenizer   tokenizer.Encoder
}

// NewColBERTWithEncoders wires an encoder and the two prefixing tokenizers
func NewColBERTWithEncoders(model *models.ColBERT, queryTok, docTok tokenizer.Encoder, opts registry.Options) *ColBERT {
	return &ColBERT{
		base:           newBase(false, opts.Logger),
		model:          model,
		queryTokenizer: queryTok,
		docTokenizer:   docTok,
	}
}

// NewColBERT loads model.onnx and tokenizer.json from opts.ModelDir
func NewColBERT(opts registry.Options) (vidore.Retriever, error) {
	modelPath, err := modelFile(opts.ModelDir, "model.onnx")
	if err != nil {
		return nil, err
	}
	tokPath, err := modelFile(opts.ModelDir, "tokenizer.json")
	if err != nil {
		return nil, err
	}

	queryTok, err := tokenizer.NewHFTokenizer(tokPath, tokenizer.Options{
		MaxLength:        colbertQueryMaxLen,
		PadToMaxLength:   true,
		Prefix:           colbertQueryPrefix,
		AddSpecialTokens: true,
	})
	if err != nil {
		return nil, err
	}
	docTok, err := tokenizer.NewHFTokenizer(tokPath, tokenizer.Options{
		MaxLength:        colbertDocumentMaxLen,
		Prefix:           colbertDocumentPrefix,
		AddSpecialTokens: true,
	})
	if err != nil {
		_ = queryTok.Close()
		return nil, err
	}
	model, err := models.NewColBERT(models.ColBERTConfig{ModelPath: modelPath, Device: opts.Device})
	if err != nil {
		_ = closeAll(queryTok, docTok)
		return nil, err
	}

	if opts.Logger != nil {
		opts.Logger.Info("loaded colbert", "model", opts.ModelName, "device", opts.Device.String())
	}
	return NewColBERTWithEncoders(model, queryTok, docTok, opts), nil
}

// ForwardQueries encodes queries into token vectors
func (r *ColBERT) ForwardQueries(queries []string, batchSize int) (vidore.Embeddings, error) {
	if err := vidore.CheckQueries(queries); err != nil {
		return nil, err
	}
	return forwardBatches(queries, batchSize, func(batch []string) (vidore.Embeddings, error) {
		return r.encode(r.queryTokenizer, batch)
	})
}

// ForwardDocuments encodes text documents into token vectors
func (r *ColBERT) ForwardDocuments(documents []vidore.Document, batchSize int) (vidore.Embeddings, error) {
	if err := vidore.CheckDocuments(documents, r.visual); err != nil {
		return nil, err
	}
	return forwardBatches(documents, batchSize, func(batch []vidore.Document) (vidore.Embeddings, error) {
		return r.encode(r.docTokenizer, documentTexts(batch))
	})
}

func (r *ColBERT) encode(tok tokenizer.Encoder, texts []string) (vidore.Embeddings, error) {
	tokens, err := tok.EncodeBatch(texts)
	if err != nil {
		return nil, fmt.Errorf("tokenization failed: %w", err)
	}
	embeddings, err := r.model.EncodeTokenized(tokens)
	if err != nil {
		return nil, fmt.Errorf("encoding failed: %w", err)
	}
	return vidore.MultiVectorEmbeddings(embeddings), nil
}

// Close releases the encoder and both tokenizers
func (r *ColBERT) Close() error {
	var model closer
	if r.model != nil {
		model = r.model
	}
	return closeAll(r.queryTokenizer, r.docTokenizer, model)
}
