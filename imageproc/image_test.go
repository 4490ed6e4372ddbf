package imageproc

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestLoadImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, solid(3, 2, color.RGBA{R: 255, A: 255})))
	require.NoError(t, f.Close())

	img, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())

	_, err = LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestToRGBDropsAlpha(t *testing.T) {
	transparent := image.NewRGBA(image.Rect(0, 0, 1, 1))
	rgb := ToRGB(transparent)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, rgb.RGBAAt(0, 0))
}

func TestResize(t *testing.T) {
	out, err := Resize(solid(10, 4, color.RGBA{B: 255, A: 255}), 5, 5)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 5, 5), out.Bounds())

	_, err = Resize(solid(1, 1, color.RGBA{}), 0, 3)
	assert.Error(t, err)
}

func TestNormalizeCHW(t *testing.T) {
	img := solid(2, 1, color.RGBA{R: 255, G: 0, B: 255, A: 255})
	out := NormalizeCHW(img, SigLIPMean, SigLIPStd)

	require.Len(t, out, 6)
	assert.InDelta(t, 1.0, out[0], 1e-6)
	assert.InDelta(t, 1.0, out[1], 1e-6)
	assert.InDelta(t, -1.0, out[2], 1e-6)
	assert.InDelta(t, 1.0, out[4], 1e-6)
}

func TestPixelValuesShape(t *testing.T) {
	p := Processor{Size: 4, Mean: SigLIPMean, Std: SigLIPStd, Workers: 2}
	images := []image.Image{
		solid(8, 8, color.RGBA{R: 255, A: 255}),
		solid(3, 9, color.RGBA{G: 255, A: 255}),
		solid(5, 5, color.RGBA{B: 255, A: 255}),
	}

	data, shape, err := p.PixelValues(images)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 3, 4, 4}, shape)
	require.Len(t, data, 3*3*4*4)

	// image order is preserved: red plane of image 0, green plane of image 1
	assert.InDelta(t, 1.0, data[0], 1e-6)
	assert.InDelta(t, 1.0, data[48+16], 1e-6)
	assert.InDelta(t, 1.0, data[96+32], 1e-6)

	_, _, err = p.PixelValues(nil)
	assert.Error(t, err)
}
