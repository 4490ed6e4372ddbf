package retrievers

import (
	"fmt"

	vidore "github.com/JarvisUSTC/vidore-benchmark"
	"github.com/JarvisUSTC/vidore-benchmark/imageproc"
	"github.com/JarvisUSTC/vidore-benchmark/models"
	"github.com/JarvisUSTC/vidore-benchmark/registry"
	"github.com/JarvisUSTC/vidore-benchmark/tokenizer"
)

// Pooling selects how a backend output becomes one vector per item
type Pooling int

const (
	// PoolNone expects an already pooled [batch, dim] output
	PoolNone Pooling = iota
	// PoolMean averages token vectors under the attention mask
	PoolMean
	// PoolFirst takes the first ([CLS]) token
	PoolFirst
)

// DualEncoderConfig describes a text/image dual encoder family
type DualEncoderConfig struct {
	QueryPrefix   string
	MaxLength     int
	TextOutputs   []string
	TextPooling   Pooling
	LayerNorm     bool
	VisionOutputs []string
	VisionPooling Pooling
	Processor     imageproc.Processor
}

// NomicConfig is nomic-embed-text-v1.5 paired with nomic-embed-vision-v1.5
var NomicConfig = DualEncoderConfig{
	QueryPrefix:   "search_query: ",
	MaxLength:     512,
	TextOutputs:   []string{"last_hidden_state"},
	TextPooling:   PoolMean,
	LayerNorm:     true,
	VisionOutputs: []string{"last_hidden_state"},
	VisionPooling: PoolFirst,
	Processor:     imageproc.Processor{Size: 224, Mean: imageproc.CLIPMean, Std: imageproc.CLIPStd},
}

// JinaCLIPConfig is jina-clip-v1 exported with pooled projection outputs
var JinaCLIPConfig = DualEncoderConfig{
	MaxLength:     512,
	TextOutputs:   []string{"text_embeds"},
	TextPooling:   PoolNone,
	VisionOutputs: []string{"image_embeds"},
	VisionPooling: PoolNone,
	Processor:     imageproc.Processor{Size: 224, Mean: imageproc.CLIPMean, Std: imageproc.CLIPStd},
}

// DualEncoder embeds queries and page images with two separate models into one global vector each
type DualEncoder struct {
	base
	cfg       DualEncoderConfig
	tokenizer tokenizer.Encoder
	text      models.Backend
	vision    models.Backend
}

// NewDualEncoder wires already opened backends. The tokenizer applies cfg.QueryPrefix.
func NewDualEncoder(cfg DualEncoderConfig, tok tokenizer.Encoder, text, vision models.Backend, opts registry.Options) *DualEncoder {
	return &DualEncoder{
		base:      newBase(true, opts.Logger),
		cfg:       cfg,
		tokenizer: tok,
		text:      text,
		vision:    vision,
	}
}

// NewNomic loads text.onnx, vision.onnx and tokenizer.json from opts.ModelDir
func NewNomic(opts registry.Options) (vidore.Retriever, error) {
	return loadDualEncoder(NomicConfig, opts)
}

// NewJinaCLIP loads text.onnx, vision.onnx and tokenizer.json from opts.ModelDir
func NewJinaCLIP(opts registry.Options) (vidore.Retriever, error) {
	return loadDualEncoder(JinaCLIPConfig, opts)
}

func loadDualEncoder(cfg DualEncoderConfig, opts registry.Options) (*DualEncoder, error) {
	textPath, err := modelFile(opts.ModelDir, "text.onnx")
	if err != nil {
		return nil, err
	}
	visionPath, err := modelFile(opts.ModelDir, "vision.onnx")
	if err != nil {
		return nil, err
	}
	tokPath, err := modelFile(opts.ModelDir, "tokenizer.json")
	if err != nil {
		return nil, err
	}

	tok, err := tokenizer.NewHFTokenizer(tokPath, tokenizer.Options{
		MaxLength:        cfg.MaxLength,
		Prefix:           cfg.QueryPrefix,
		AddSpecialTokens: true,
	})
	if err != nil {
		return nil, err
	}
	text, err := models.NewONNXModel(textPath, opts.Device)
	if err != nil {
		_ = tok.Close()
		return nil, err
	}
	vision, err := models.NewONNXModel(visionPath, opts.Device)
	if err != nil {
		_ = closeAll(tok, text)
		return nil, err
	}

	if opts.Logger != nil {
		opts.Logger.Info("loaded dual encoder", "model", opts.ModelName, "device", opts.Device.String())
	}
	return NewDualEncoder(cfg, tok, text, vision, opts), nil
}

// ForwardQueries embeds queries into L2-normalised global vectors
func (r *DualEncoder) ForwardQueries(queries []string, batchSize int) (vidore.Embeddings, error) {
	if err := vidore.CheckQueries(queries); err != nil {
		return nil, err
	}
	return forwardBatches(queries, batchSize, func(batch []string) (vidore.Embeddings, error) {
		tokens, err := r.tokenizer.EncodeBatch(batch)
		if err != nil {
			return nil, fmt.Errorf("tokenization failed: %w", err)
		}
		outputs, err := r.text.Run(map[string]models.Tensor{
			"input_ids":      models.IntTensor2D(tokens.InputIDs),
			"attention_mask": models.IntTensor2D(tokens.AttentionMask),
		})
		if err != nil {
			return nil, fmt.Errorf("text encoder: %w", err)
		}
		out, err := models.Output(outputs, r.cfg.TextOutputs...)
		if err != nil {
			return nil, err
		}
		vectors, err := pool(out, r.cfg.TextPooling, tokens.AttentionMask)
		if err != nil {
			return nil, err
		}
		if r.cfg.LayerNorm {
			for i := range vectors {
				vectors[i] = models.LayerNorm(vectors[i])
			}
		}
		return vidore.GlobalEmbeddings(models.L2NormalizeRows(vectors)), nil
	})
}

// ForwardDocuments embeds page images into L2-normalised global vectors
func (r *DualEncoder) ForwardDocuments(documents []vidore.Document, batchSize int) (vidore.Embeddings, error) {
	if err := vidore.CheckDocuments(documents, r.visual); err != nil {
		return nil, err
	}
	return forwardBatches(documents, batchSize, func(batch []vidore.Document) (vidore.Embeddings, error) {
		pixels, shape, err := r.cfg.Processor.PixelValues(documentImages(batch))
		if err != nil {
			return nil, err
		}
		outputs, err := r.vision.Run(map[string]models.Tensor{
			"pixel_values": models.FloatTensor(shape, pixels),
		})
		if err != nil {
			return nil, fmt.Errorf("vision encoder: %w", err)
		}
		out, err := models.Output(outputs, r.cfg.VisionOutputs...)
		if err != nil {
			return nil, err
		}
		vectors, err := pool(out, r.cfg.VisionPooling, nil)
		if err != nil {
			return nil, err
		}
		return vidore.GlobalEmbeddings(models.L2NormalizeRows(vectors)), nil
	})
}

// Close releases both encoders and the tokenizer
func (r *DualEncoder) Close() error {
	return closeAll(r.tokenizer, r.text, r.vision)
}

// pool reduces a backend output to one vector per row
func pool(out models.Tensor, mode Pooling, mask [][]int64) ([][]float32, error) {
	switch mode {
	case PoolNone:
		return models.Reshape2D(out)
	case PoolMean:
		tokens, err := models.Reshape3D(out)
		if err != nil {
			return nil, err
		}
		return models.MeanPool(tokens, mask)
	case PoolFirst:
		tokens, err := models.Reshape3D(out)
		if err != nil {
			return nil, err
		}
		first := make([][]float32, len(tokens))
		for i, seq := range tokens {
			if len(seq) == 0 {
				return nil, fmt.Errorf("row %d has no tokens", i)
			}
			first[i] = seq[0]
		}
		return first, nil
	default:
		return nil, fmt.Errorf("unknown pooling mode %d", mode)
	}
}
