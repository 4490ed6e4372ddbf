// Package dataset loads a local retrieval dataset: a metadata.jsonl manifest
// next to the page images it names.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	vidore "github.com/JarvisUSTC/vidore-benchmark"
	"github.com/JarvisUSTC/vidore-benchmark/imageproc"
	"github.com/JarvisUSTC/vidore-benchmark/utils"
)

const (
	// ManifestName is the manifest file inside a dataset directory
	ManifestName = "metadata.jsonl"
	// ImagePattern selects the page images of a dataset directory
	ImagePattern = "**/*.{png,jpg,jpeg,webp}"
)

// Row is one manifest line
type Row struct {
	Query           string `json:"query"`
	ImageFilename   string `json:"image_filename"`
	TextDescription string `json:"text_description"`
}

// Dataset is an in-memory dataset with decoded images
type Dataset struct {
	Name     string
	Dir      string
	examples []vidore.Example
}

var _ vidore.Dataset = (*Dataset)(nil)

// Len returns the number of examples
func (d *Dataset) Len() int {
	return len(d.examples)
}

// Example returns example i
func (d *Dataset) Example(i int) vidore.Example {
	return d.examples[i]
}

// New builds a dataset from examples already in memory
func New(name string, examples []vidore.Example) *Dataset {
	return &Dataset{Name: name, examples: examples}
}

// LoadDir reads dir/metadata.jsonl and decodes every referenced image.
// Image names are resolved relative to dir; a row naming an image that is not
// on disk fails the load.
func LoadDir(dir string) (*Dataset, error) {
	rows, err := ReadManifest(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: dataset %s has no rows", vidore.ErrInvalidInput, dir)
	}

	index, err := IndexImages(dir)
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(rows))
	for i, row := range rows {
		key := path.Clean(filepath.ToSlash(row.ImageFilename))
		p, ok := index[key]
		if !ok {
			return nil, fmt.Errorf("%w: row %d names missing image %q", vidore.ErrInvalidInput, i+1, row.ImageFilename)
		}
		paths[i] = p
	}

	images, err := decodeAll(uniq(paths))
	if err != nil {
		return nil, err
	}

	examples := make([]vidore.Example, len(rows))
	for i, row := range rows {
		examples[i] = vidore.Example{
			Query:           strings.TrimSpace(row.Query),
			ImageFilename:   row.ImageFilename,
			Image:           images[paths[i]],
			TextDescription: row.TextDescription,
		}
	}

	return &Dataset{
		Name:     filepath.Base(filepath.Clean(dir)),
		Dir:      dir,
		examples: examples,
	}, nil
}

// ReadManifest parses a JSON-lines manifest, skipping blank lines
func ReadManifest(manifest string) ([]Row, error) {
	f, err := os.Open(manifest)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	var rows []Row
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var row Row
		if err := json.Unmarshal([]byte(text), &row); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", manifest, line, err)
		}
		if row.ImageFilename == "" {
			return nil, fmt.Errorf("%w: %s:%d: missing image_filename", vidore.ErrInvalidInput, manifest, line)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return rows, nil
}

// IndexImages maps every image under dir, by slash-separated relative path, to its file path
func IndexImages(dir string) (map[string]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), ImagePattern)
	if err != nil {
		return nil, fmt.Errorf("glob images in %s: %w", dir, err)
	}
	index := make(map[string]string, len(matches))
	for _, m := range matches {
		index[m] = filepath.Join(dir, filepath.FromSlash(m))
	}
	return index, nil
}

func uniq(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func decodeAll(paths []string) (map[string]image.Image, error) {
	decoded, err := utils.BatchProcessParallel(paths, 1, runtime.NumCPU(), func(batch []string) ([]image.Image, error) {
		img, err := imageproc.LoadImage(batch[0])
		if err != nil {
			return nil, err
		}
		return []image.Image{img}, nil
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]image.Image, len(paths))
	for i, p := range paths {
		out[p] = decoded[i]
	}
	return out, nil
}
