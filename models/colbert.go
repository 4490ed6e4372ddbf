package models

import (
	"fmt"

	"github.com/JarvisUSTC/vidore-benchmark/device"
	"github.com/JarvisUSTC/vidore-benchmark/tokenizer"
)

// ColBERT produces one normalised vector per non-padding token
type ColBERT struct {
	backend       Backend
	linearWeights [][]float32 // [embeddingSize][hiddenSize]
}

// ColBERTConfig holds configuration for ColBERT model
type ColBERTConfig struct {
	ModelPath     string
	Device        device.Device
	LinearWeights [][]float32 // Optional linear projection weights
}

// NewColBERT loads a ColBERT encoder graph
func NewColBERT(config ColBERTConfig) (*ColBERT, error) {
	model, err := NewONNXModel(config.ModelPath, config.Device)
	if err != nil {
		return nil, fmt.Errorf("failed to load ONNX model: %w", err)
	}
	return NewColBERTWithBackend(model, config.LinearWeights), nil
}

// NewColBERTWithBackend wraps an already opened backend
func NewColBERTWithBackend(backend Backend, linearWeights [][]float32) *ColBERT {
	return &ColBERT{
		backend:       backend,
		linearWeights: linearWeights,
	}
}

// EncodeTokenized encodes a padded token batch.
// Returns one ragged [tokens][dim] sequence per row, padding removed.
func (c *ColBERT) EncodeTokenized(batch tokenizer.Batch) ([][][]float32, error) {
	outputs, err := c.backend.Run(map[string]Tensor{
		"input_ids":      IntTensor2D(batch.InputIDs),
		"attention_mask": IntTensor2D(batch.AttentionMask),
	})
	if err != nil {
		return nil, fmt.Errorf("model inference failed: %w", err)
	}

	hidden, err := Output(outputs, "last_hidden_state", "hidden_states")
	if err != nil {
		return nil, err
	}
	embeddings, err := Reshape3D(hidden)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != batch.Len() {
		return nil, fmt.Errorf("model returned %d rows for %d inputs", len(embeddings), batch.Len())
	}

	if len(c.linearWeights) > 0 {
		embeddings, err = Project(embeddings, c.linearWeights)
		if err != nil {
			return nil, err
		}
	}

	embeddings, err = DropPadding(embeddings, batch.AttentionMask)
	if err != nil {
		return nil, err
	}
	for i := range embeddings {
		embeddings[i] = L2NormalizeRows(embeddings[i])
	}
	return embeddings, nil
}

// Close releases model resources
func (c *ColBERT) Close() error {
	if c.backend != nil {
		return c.backend.Close()
	}
	return nil
}
