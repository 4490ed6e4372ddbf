package imageproc

import (
	"fmt"
	"image"

	"github.com/JarvisUSTC/vidore-benchmark/utils"
)

// Normalisation presets
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}

	CLIPMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	CLIPStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}

	// SigLIP (PaliGemma) maps pixels to [-1, 1]
	SigLIPMean = [3]float32{0.5, 0.5, 0.5}
	SigLIPStd  = [3]float32{0.5, 0.5, 0.5}
)

// NormalizeCHW returns img as a channel-first float32 slice with (x/255 - mean) / std applied
func NormalizeCHW(img *image.RGBA, mean, std [3]float32) []float32 {
	bounds := img.Bounds()
	h := bounds.Dy()
	w := bounds.Dx()
	plane := h * w

	out := make([]float32, plane*3)
	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			p := img.RGBAAt(x, y)
			out[idx] = (float32(p.R)/255 - mean[0]) / std[0]
			out[plane+idx] = (float32(p.G)/255 - mean[1]) / std[1]
			out[2*plane+idx] = (float32(p.B)/255 - mean[2]) / std[2]
			idx++
		}
	}
	return out
}

// Processor converts page images into a [n, 3, size, size] pixel tensor
type Processor struct {
	Size    int
	Mean    [3]float32
	Std     [3]float32
	Workers int
}

// Preprocess flattens, resizes and normalises one image
func (p Processor) Preprocess(img image.Image) ([]float32, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	resized, err := Resize(ToRGB(img), p.Size, p.Size)
	if err != nil {
		return nil, err
	}
	return NormalizeCHW(resized, p.Mean, p.Std), nil
}

// PixelValues preprocesses images concurrently and returns the flattened tensor and its shape.
// Preprocessing is CPU only; the returned order matches images.
func (p Processor) PixelValues(images []image.Image) ([]float32, []int64, error) {
	if len(images) == 0 {
		return nil, nil, fmt.Errorf("no images to preprocess")
	}

	workers := p.Workers
	if workers <= 0 {
		workers = 4
	}
	planes, err := utils.BatchProcessParallel(images, 1, workers, func(batch []image.Image) ([][]float32, error) {
		px, err := p.Preprocess(batch[0])
		if err != nil {
			return nil, err
		}
		return [][]float32{px}, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("preprocess images: %w", err)
	}

	per := 3 * p.Size * p.Size
	data := make([]float32, 0, per*len(images))
	for _, px := range planes {
		data = append(data, px...)
	}
	shape := []int64{int64(len(images)), 3, int64(p.Size), int64(p.Size)}
	return data, shape, nil
}
