package retrievers

import (
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/JarvisUSTC/vidore-benchmark/models"
	"github.com/JarvisUSTC/vidore-benchmark/tokenizer"
)

// wordTokenizer gives every whitespace-separated word a stable id and pads to the longest row.
// Like HFTokenizer it prepends prefix to every text; seen records what was encoded.
type wordTokenizer struct {
	prefix string
	mu     sync.Mutex
	seen   []string
	closed bool
}

func wordID(w string) int64 {
	var h int64
	for _, r := range w {
		h = (h*31 + int64(r)) % 97
	}
	return h + 1
}

func (t *wordTokenizer) EncodeBatch(texts []string) (tokenizer.Batch, error) {
	encoded := make([]string, len(texts))
	for i, text := range texts {
		encoded[i] = t.prefix + text
	}
	t.mu.Lock()
	t.seen = append(t.seen, encoded...)
	t.mu.Unlock()

	ids := make([][]uint32, len(texts))
	for i, text := range encoded {
		for _, w := range strings.Fields(text) {
			ids[i] = append(ids[i], uint32(wordID(w)))
		}
		if len(ids[i]) == 0 {
			ids[i] = []uint32{1}
		}
	}
	return tokenizer.PadBatch(ids, tokenizer.Options{}), nil
}

func (t *wordTokenizer) Close() error {
	t.closed = true
	return nil
}

// funcBackend delegates to run. When declared is set it rejects inputs the way an ONNX session does.
type funcBackend struct {
	run      func(map[string]models.Tensor) (map[string]models.Tensor, error)
	declared []string
	calls    int
	closed   bool
}

func (b *funcBackend) Run(in map[string]models.Tensor) (map[string]models.Tensor, error) {
	if b.declared != nil {
		if err := models.CheckInputs(b.declared, in); err != nil {
			return nil, err
		}
	}
	b.calls++
	return b.run(in)
}

func (b *funcBackend) Close() error {
	b.closed = true
	return nil
}

// tokenStates returns a [batch, seq, dim] tensor where each token vector is f(id)
func tokenStates(ids models.Tensor, dim int, f func(id int64) []float32) models.Tensor {
	batch, seq := ids.Shape[0], ids.Shape[1]
	data := make([]float32, 0, int(batch*seq)*dim)
	for _, id := range ids.Int {
		data = append(data, f(id)...)
	}
	return models.FloatTensor([]int64{batch, seq, int64(dim)}, data)
}

// fixedHost is an adapter host that reports a fixed set of active adapters
type fixedHost struct {
	funcBackend
	active []string
	loaded map[string]string
}

func (h *fixedHost) LoadAdapter(name, path string) error {
	if h.loaded == nil {
		h.loaded = map[string]string{}
	}
	h.loaded[name] = path
	return nil
}

func (h *fixedHost) SetAdapter(name string) error { return nil }
func (h *fixedHost) ActiveAdapters() []string     { return h.active }

func solidImage(c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
