package retrievers

import (
	"fmt"
	"strings"

	vidore "github.com/JarvisUSTC/vidore-benchmark"
	"github.com/JarvisUSTC/vidore-benchmark/imageproc"
	"github.com/JarvisUSTC/vidore-benchmark/models"
	"github.com/JarvisUSTC/vidore-benchmark/registry"
	"github.com/JarvisUSTC/vidore-benchmark/tokenizer"
)

// LateInteractionConfig describes an adapter-augmented vision-language retriever
type LateInteractionConfig struct {
	BaseModel string
	Adapter   string
	// QueryPrefix is prepended to every query; the image prompt never carries it
	QueryPrefix string
	// QueryAugmentation is appended to every query before tokenization
	QueryAugmentation string
	MaxLength         int
	// ImagePrompt is tokenized once and fed alongside every page image
	ImagePrompt string
	Outputs     []string
	Processor   imageproc.Processor
	// PatchGrid is the number of image patches per side in the output sequence
	PatchGrid int
	// PatchOffset is the number of prompt tokens ahead of the first image patch
	PatchOffset int
}

// ColPaliConfig is PaliGemma-3B (448px) with the colpali adapter
var ColPaliConfig = LateInteractionConfig{
	BaseModel:         "google/paligemma-3b-mix-448",
	Adapter:           "colpali",
	QueryPrefix:       "Question: ",
	QueryAugmentation: strings.Repeat("<pad>", 10),
	MaxLength:         50,
	ImagePrompt:       "Describe the image.",
	Outputs:           []string{"embeddings", "last_hidden_state"},
	Processor:         imageproc.Processor{Size: 448, Mean: imageproc.SigLIPMean, Std: imageproc.SigLIPStd},
	PatchGrid:         32,
}

// ColQwen2Config is Qwen2-VL-2B with the colqwen2 adapter, exported at a fixed 448px resolution
var ColQwen2Config = LateInteractionConfig{
	BaseModel:         "Qwen/Qwen2-VL-2B-Instruct",
	Adapter:           "colqwen2",
	QueryPrefix:       "Query: ",
	QueryAugmentation: strings.Repeat("<|endoftext|>", 10),
	MaxLength:         50,
	ImagePrompt:       "<|im_start|>user\n<|vision_start|><|image_pad|><|vision_end|>Describe the image.<|im_end|><|endoftext|>",
	Outputs:           []string{"embeddings", "last_hidden_state"},
	Processor:         imageproc.Processor{Size: 448, Mean: imageproc.CLIPMean, Std: imageproc.CLIPStd},
	PatchGrid:         16,
	PatchOffset:       4, // <|im_start|> user \n <|vision_start|>
}

// AdapterSide is one input signature of an adapter model. Queries and pages are
// exported as separate graphs because only pages take pixel_values.
type AdapterSide struct {
	Host        models.AdapterHost
	AdapterPath string
}

// LateInteraction keeps one vector per token or image patch and scores with MaxSim
type LateInteraction struct {
	base
	cfg       LateInteractionConfig
	tokenizer tokenizer.Encoder
	queries   models.AdapterHost
	documents models.AdapterHost
	prompt    tokenizer.Batch
}

// NewLateInteraction loads cfg.Adapter onto both hosts and verifies it is the only
// active adapter on each. tok must not add a prefix of its own.
func NewLateInteraction(cfg LateInteractionConfig, tok tokenizer.Encoder, queries, documents AdapterSide, opts registry.Options) (*LateInteraction, error) {
	for _, side := range []AdapterSide{queries, documents} {
		if err := side.Host.LoadAdapter(cfg.Adapter, side.AdapterPath); err != nil {
			return nil, err
		}
		if err := models.VerifyAdapter(side.Host, cfg.Adapter); err != nil {
			return nil, err
		}
	}

	prompt, err := tok.EncodeBatch([]string{cfg.ImagePrompt})
	if err != nil {
		return nil, fmt.Errorf("tokenize image prompt: %w", err)
	}

	if opts.Logger != nil {
		opts.Logger.Info("loaded late interaction model",
			"model", opts.ModelName, "base", cfg.BaseModel, "adapter", cfg.Adapter, "device", opts.Device.String())
	}
	return &LateInteraction{
		base:      newBase(true, opts.Logger),
		cfg:       cfg,
		tokenizer: tok,
		queries:   queries.Host,
		documents: documents.Host,
		prompt:    prompt,
	}, nil
}

// NewColPali loads the colpali query and document graphs from opts.ModelDir
func NewColPali(opts registry.Options) (vidore.Retriever, error) {
	return loadLateInteraction(ColPaliConfig, opts)
}

// NewColQwen2 loads the colqwen2 query and document graphs from opts.ModelDir
func NewColQwen2(opts registry.Options) (vidore.Retriever, error) {
	return loadLateInteraction(ColQwen2Config, opts)
}

// loadLateInteraction expects query.onnx, document.onnx, adapters/<name>.query.onnx,
// adapters/<name>.document.onnx and tokenizer.json
func loadLateInteraction(cfg LateInteractionConfig, opts registry.Options) (*LateInteraction, error) {
	var files []string
	for _, name := range []string{
		"query.onnx",
		"document.onnx",
		"adapters/" + cfg.Adapter + ".query.onnx",
		"adapters/" + cfg.Adapter + ".document.onnx",
		"tokenizer.json",
	} {
		path, err := modelFile(opts.ModelDir, name)
		if err != nil {
			return nil, err
		}
		files = append(files, path)
	}

	tok, err := tokenizer.NewHFTokenizer(files[4], tokenizer.Options{
		MaxLength:        cfg.MaxLength,
		AddSpecialTokens: true,
	})
	if err != nil {
		return nil, err
	}
	loader := models.Loader(opts.Device)
	queryHost := models.NewAdapterModel(files[0], loader)
	docHost := models.NewAdapterModel(files[1], loader)

	r, err := NewLateInteraction(cfg, tok,
		AdapterSide{Host: queryHost, AdapterPath: files[2]},
		AdapterSide{Host: docHost, AdapterPath: files[3]},
		opts)
	if err != nil {
		_ = closeAll(tok, queryHost, docHost)
		return nil, err
	}
	return r, nil
}

// PatchGrid returns the number of image patches per side
func (r *LateInteraction) PatchGrid() int {
	return r.cfg.PatchGrid
}

// PatchOffset returns the index of the first image patch in a page embedding
func (r *LateInteraction) PatchOffset() int {
	return r.cfg.PatchOffset
}

// ForwardQueries embeds each query into its token vectors, padding removed
func (r *LateInteraction) ForwardQueries(queries []string, batchSize int) (vidore.Embeddings, error) {
	if err := vidore.CheckQueries(queries); err != nil {
		return nil, err
	}
	return forwardBatches(queries, batchSize, func(batch []string) (vidore.Embeddings, error) {
		texts := make([]string, len(batch))
		for i, q := range batch {
			texts[i] = r.cfg.QueryPrefix + q + r.cfg.QueryAugmentation
		}
		tokens, err := r.tokenizer.EncodeBatch(texts)
		if err != nil {
			return nil, fmt.Errorf("tokenization failed: %w", err)
		}
		outputs, err := r.queries.Run(map[string]models.Tensor{
			"input_ids":      models.IntTensor2D(tokens.InputIDs),
			"attention_mask": models.IntTensor2D(tokens.AttentionMask),
		})
		if err != nil {
			return nil, fmt.Errorf("query encoder: %w", err)
		}
		return r.tokenVectors(outputs, tokens.AttentionMask)
	})
}

// ForwardDocuments embeds each page image into its patch and prompt token vectors
func (r *LateInteraction) ForwardDocuments(documents []vidore.Document, batchSize int) (vidore.Embeddings, error) {
	if err := vidore.CheckDocuments(documents, r.visual); err != nil {
		return nil, err
	}
	return forwardBatches(documents, batchSize, func(batch []vidore.Document) (vidore.Embeddings, error) {
		pixels, shape, err := r.cfg.Processor.PixelValues(documentImages(batch))
		if err != nil {
			return nil, err
		}
		ids := make([][]int64, len(batch))
		mask := make([][]int64, len(batch))
		for i := range batch {
			ids[i] = r.prompt.InputIDs[0]
			mask[i] = r.prompt.AttentionMask[0]
		}
		outputs, err := r.documents.Run(map[string]models.Tensor{
			"pixel_values":   models.FloatTensor(shape, pixels),
			"input_ids":      models.IntTensor2D(ids),
			"attention_mask": models.IntTensor2D(mask),
		})
		if err != nil {
			return nil, fmt.Errorf("document encoder: %w", err)
		}
		return r.tokenVectors(outputs, nil)
	})
}

// tokenVectors turns a [batch, seq, dim] output into ragged L2-normalised token vectors.
// A nil mask keeps every position unless the graph returns its own output mask.
func (r *LateInteraction) tokenVectors(outputs map[string]models.Tensor, mask [][]int64) (vidore.Embeddings, error) {
	out, err := models.Output(outputs, r.cfg.Outputs...)
	if err != nil {
		return nil, err
	}
	tokens, err := models.Reshape3D(out)
	if err != nil {
		return nil, err
	}

	if outMask, ok := outputs["output_mask"]; ok {
		mask, err = maskFromTensor(outMask)
		if err != nil {
			return nil, err
		}
	}
	if mask != nil {
		tokens, err = models.DropPadding(tokens, mask)
		if err != nil {
			return nil, err
		}
	}

	embeddings := make(vidore.MultiVectorEmbeddings, len(tokens))
	for i, seq := range tokens {
		embeddings[i] = models.L2NormalizeRows(seq)
	}
	return embeddings, nil
}

func maskFromTensor(t models.Tensor) ([][]int64, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("output mask: expected [batch, seq], got shape %v", t.Shape)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("output mask: %w", err)
	}
	batch, seq := int(t.Shape[0]), int(t.Shape[1])
	mask := make([][]int64, batch)
	for i := range mask {
		mask[i] = make([]int64, seq)
		for j := range mask[i] {
			k := i*seq + j
			if (t.Int != nil && t.Int[k] != 0) || (t.Int == nil && t.Float[k] != 0) {
				mask[i][j] = 1
			}
		}
	}
	return mask, nil
}

// Close releases both graphs and the tokenizer
func (r *LateInteraction) Close() error {
	return closeAll(r.tokenizer, r.queries, r.documents)
}
