package models

import (
	"fmt"
	"math"

	"github.com/JarvisUSTC/vidore-benchmark/utils"
)

const (
	// poolingEps bounds the mask sum in MeanPool
	poolingEps = 1e-9
	// layerNormEps matches the default of torch layer_norm
	layerNormEps = 1e-5
	// l2Eps matches the default of torch normalize
	l2Eps = 1e-12
)

// Reshape3D splits a [batch, seq, hidden] tensor into nested slices
func Reshape3D(t Tensor) ([][][]float32, error) {
	if len(t.Shape) != 3 {
		return nil, fmt.Errorf("expected rank 3 tensor, got shape %v", t.Shape)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	batch, seq, hidden := int(t.Shape[0]), int(t.Shape[1]), int(t.Shape[2])

	out := make([][][]float32, batch)
	for i := 0; i < batch; i++ {
		out[i] = make([][]float32, seq)
		for j := 0; j < seq; j++ {
			start := (i*seq + j) * hidden
			out[i][j] = append([]float32(nil), t.Float[start:start+hidden]...)
		}
	}
	return out, nil
}

// Reshape2D splits a [batch, hidden] tensor into rows
func Reshape2D(t Tensor) ([][]float32, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("expected rank 2 tensor, got shape %v", t.Shape)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	batch, hidden := int(t.Shape[0]), int(t.Shape[1])

	out := make([][]float32, batch)
	for i := 0; i < batch; i++ {
		out[i] = append([]float32(nil), t.Float[i*hidden:(i+1)*hidden]...)
	}
	return out, nil
}

// MeanPool averages token vectors weighted by the attention mask:
// sum(tokens * mask) / max(sum(mask), eps)
func MeanPool(tokens [][][]float32, attentionMask [][]int64) ([][]float32, error) {
	if len(tokens) != len(attentionMask) {
		return nil, fmt.Errorf("mean pool: %d token rows, %d mask rows", len(tokens), len(attentionMask))
	}

	pooled := make([][]float32, len(tokens))
	for i, seq := range tokens {
		if len(seq) == 0 {
			return nil, fmt.Errorf("mean pool: row %d has no tokens", i)
		}
		if len(attentionMask[i]) < len(seq) {
			return nil, fmt.Errorf("mean pool: row %d mask shorter than sequence", i)
		}
		sum := make([]float32, len(seq[0]))
		var count float32
		for j, vec := range seq {
			m := float32(attentionMask[i][j])
			if m == 0 {
				continue
			}
			for k, x := range vec {
				sum[k] += x * m
			}
			count += m
		}
		denom := float32(math.Max(float64(count), poolingEps))
		for k := range sum {
			sum[k] /= denom
		}
		pooled[i] = sum
	}
	return pooled, nil
}

// LayerNorm normalises v to zero mean and unit variance, without affine parameters
func LayerNorm(v []float32) []float32 {
	if len(v) == 0 {
		return nil
	}
	var mean float64
	for _, x := range v {
		mean += float64(x)
	}
	mean /= float64(len(v))

	var variance float64
	for _, x := range v {
		d := float64(x) - mean
		variance += d * d
	}
	variance /= float64(len(v))

	inv := 1 / math.Sqrt(variance+layerNormEps)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32((float64(x) - mean) * inv)
	}
	return out
}

// L2NormalizeRows scales every row to unit length
func L2NormalizeRows(rows [][]float32) [][]float32 {
	out := make([][]float32, len(rows))
	for i, row := range rows {
		out[i] = utils.NormalizeEps(row, l2Eps)
	}
	return out
}

// DropPadding removes masked positions, leaving one ragged sequence per row
func DropPadding(tokens [][][]float32, attentionMask [][]int64) ([][][]float32, error) {
	if len(tokens) != len(attentionMask) {
		return nil, fmt.Errorf("drop padding: %d token rows, %d mask rows", len(tokens), len(attentionMask))
	}
	out := make([][][]float32, len(tokens))
	for i, seq := range tokens {
		kept := make([][]float32, 0, len(seq))
		for j, vec := range seq {
			if j < len(attentionMask[i]) && attentionMask[i][j] != 0 {
				kept = append(kept, vec)
			}
		}
		if len(kept) == 0 {
			return nil, fmt.Errorf("drop padding: row %d has no unmasked tokens", i)
		}
		out[i] = kept
	}
	return out, nil
}

// Project applies a linear layer (weights are [out][in]) to every token vector
func Project(tokens [][][]float32, weights [][]float32) ([][][]float32, error) {
	projected := make([][][]float32, len(tokens))
	for i, seq := range tokens {
		projected[i] = make([][]float32, len(seq))
		for j, vec := range seq {
			out := make([]float32, len(weights))
			for k, w := range weights {
				if len(w) != len(vec) {
					return nil, fmt.Errorf("projection expects %d inputs, token has %d", len(w), len(vec))
				}
				out[k] = utils.Dot(vec, w)
			}
			projected[i][j] = out
		}
	}
	return projected, nil
}
