package tokenizer

import (
	"fmt"

	"github.com/daulet/tokenizers"
)

// Batch is a padded batch of token ids with its attention mask.
// Both slices are [batch][seq_len] and every row has the same length.
type Batch struct {
	InputIDs      [][]int64
	AttentionMask [][]int64
}

// Len returns the number of rows
func (b Batch) Len() int {
	return len(b.InputIDs)
}

// SeqLen returns the padded sequence length
func (b Batch) SeqLen() int {
	if len(b.InputIDs) == 0 {
		return 0
	}
	return len(b.InputIDs[0])
}

// Encoder turns texts into padded token batches
type Encoder interface {
	EncodeBatch(texts []string) (Batch, error)
	Close() error
}

// Options configures an HFTokenizer
type Options struct {
	// MaxLength truncates sequences; zero disables truncation
	MaxLength int
	// PadToMaxLength pads every row to MaxLength instead of the longest row
	PadToMaxLength bool
	// Prefix is prepended to every text before encoding
	Prefix string
	// PadID is the id written into padded positions
	PadID int64
	// AddSpecialTokens asks the tokenizer to add [CLS]/[SEP] style markers
	AddSpecialTokens bool
}

// HFTokenizer wraps a HuggingFace tokenizer.json
type HFTokenizer struct {
	tokenizer *tokenizers.Tokenizer
	opts      Options
}

// NewHFTokenizer creates a tokenizer from a tokenizer.json file
func NewHFTokenizer(tokenizerPath string, opts Options) (*HFTokenizer, error) {
	tk, err := tokenizers.FromFile(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", tokenizerPath, err)
	}

	return &HFTokenizer{
		tokenizer: tk,
		opts:      opts,
	}, nil
}

// Encode returns the unpadded token ids of a single text
func (t *HFTokenizer) Encode(text string) []uint32 {
	encoding := t.tokenizer.EncodeWithOptions(t.opts.Prefix+text, t.opts.AddSpecialTokens)
	return encoding.IDs
}

// EncodeBatch encodes multiple texts and pads them into one batch
func (t *HFTokenizer) EncodeBatch(texts []string) (Batch, error) {
	if len(texts) == 0 {
		return Batch{}, fmt.Errorf("empty text batch")
	}

	ids := make([][]uint32, len(texts))
	for i, text := range texts {
		ids[i] = t.Encode(text)
		if len(ids[i]) == 0 {
			return Batch{}, fmt.Errorf("text %d produced no tokens", i)
		}
	}

	return PadBatch(ids, t.opts), nil
}

// PadBatch truncates and pads token id rows into a rectangular batch
func PadBatch(ids [][]uint32, opts Options) Batch {
	target := 0
	for _, row := range ids {
		n := len(row)
		if opts.MaxLength > 0 && n > opts.MaxLength {
			n = opts.MaxLength
		}
		if n > target {
			target = n
		}
	}
	if opts.PadToMaxLength && opts.MaxLength > 0 {
		target = opts.MaxLength
	}

	batch := Batch{
		InputIDs:      make([][]int64, len(ids)),
		AttentionMask: make([][]int64, len(ids)),
	}
	for i, row := range ids {
		inputIDs := make([]int64, target)
		mask := make([]int64, target)
		for j := 0; j < target; j++ {
			if j < len(row) {
				inputIDs[j] = int64(row[j])
				mask[j] = 1
			} else {
				inputIDs[j] = opts.PadID
			}
		}
		batch.InputIDs[i] = inputIDs
		batch.AttentionMask[i] = mask
	}
	return batch
}

// Close releases tokenizer resources
func (t *HFTokenizer) Close() error {
	if t.tokenizer != nil {
		err := t.tokenizer.Close()
		t.tokenizer = nil
		return err
	}
	return nil
}
