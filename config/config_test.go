package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"VIDORE_DEVICE", "VIDORE_MODELS_DIR", "VIDORE_OUTPUT_DIR", "ORT_SHARED_LIBRARY_PATH", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoadFromDir(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Device = "cuda:1"
	cfg.Evaluation.KValues = []int{1, 5}
	require.NoError(t, cfg.Save(filepath.Join(dir, FileName)))

	loaded, err := LoadFromDir(dir)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models_dir: /srv/models\nevaluation:\n  batch_doc: 16\n  batch_score_doc: 32\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/models", cfg.ModelsDir)
	assert.Equal(t, 16, cfg.Evaluation.BatchDoc)
	assert.Equal(t, 4, cfg.Evaluation.BatchQuery)
	assert.Equal(t, 32, cfg.Evaluation.BatchScoreDoc)
	assert.Equal(t, 4, cfg.Evaluation.BatchScoreQuery)
	assert.Equal(t, "auto", cfg.Device)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device: cpu\n"), 0644))
	t.Setenv("VIDORE_DEVICE", "cuda")
	t.Setenv("ORT_SHARED_LIBRARY_PATH", "/opt/ort/libonnxruntime.so")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "cuda", cfg.Device)
	assert.Equal(t, "/opt/ort/libonnxruntime.so", cfg.ORTLibrary)
}

func TestBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device: [unterminated\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestModelDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelsDir = "/m"
	assert.Equal(t, filepath.Join("/m", "vidore", "colpali-v1.2"), cfg.ModelDir("vidore/colpali-v1.2"))
	assert.Equal(t, filepath.Join("outputs", "results.db"), DefaultConfig().ResultsDBPath())
}
