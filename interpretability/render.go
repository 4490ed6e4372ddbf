package interpretability

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/JarvisUSTC/vidore-benchmark/imageproc"
)

// HeatmapAlpha is the maximum opacity of the heatmap overlay
const HeatmapAlpha = 0.5

// RenderHeatmap upsamples the normalised map to the page size and blends it in red over the page
func RenderHeatmap(page image.Image, m Map) (*image.RGBA, error) {
	if len(m) == 0 || len(m[0]) == 0 {
		return nil, fmt.Errorf("empty similarity map")
	}
	norm := m.Normalized()
	gridH, gridW := len(norm), len(norm[0])

	small := image.NewGray(image.Rect(0, 0, gridW, gridH))
	for y, row := range norm {
		if len(row) != gridW {
			return nil, fmt.Errorf("ragged similarity map: row %d has %d cells, want %d", y, len(row), gridW)
		}
		for x, v := range row {
			small.SetGray(x, y, color.Gray{Y: uint8(v*255 + 0.5)})
		}
	}

	out := imageproc.ToRGB(page)
	bounds := out.Bounds()
	heat := image.NewGray(bounds)
	draw.BiLinear.Scale(heat, bounds, small, small.Bounds(), draw.Src, nil)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			a := float64(heat.GrayAt(x, y).Y) / 255 * HeatmapAlpha
			c := out.RGBAAt(x, y)
			out.SetRGBA(x, y, color.RGBA{
				R: blend(c.R, 255, a),
				G: blend(c.G, 0, a),
				B: blend(c.B, 0, a),
				A: 255,
			})
		}
	}
	return out, nil
}

func blend(base, over uint8, alpha float64) uint8 {
	return uint8(float64(base)*(1-alpha) + float64(over)*alpha + 0.5)
}

// TokenMapDir returns outDir/interpretability/<stem>
func TokenMapDir(outDir, stem string) string {
	return filepath.Join(outDir, "interpretability", stem)
}

// SaveTokenMaps renders every map over page and writes
// outDir/interpretability/<stem>/token_<i>.png. It returns the written paths.
func SaveTokenMaps(outDir, stem string, page image.Image, maps []Map) ([]string, error) {
	dir := TokenMapDir(outDir, stem)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	paths := make([]string, 0, len(maps))
	for i, m := range maps {
		img, err := RenderHeatmap(page, m)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("token_%d.png", i))
		if err := writePNG(path, img); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
