package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up by LoadFromDir
const FileName = "vidore.yaml"

// Config holds all configuration for the benchmark CLI.
type Config struct {
	Device     string           `yaml:"device"`      // "auto", "cpu", "cuda" or "cuda:N"
	ModelsDir  string           `yaml:"models_dir"`  // <models_dir>/<identifier>/ holds exported models
	OutputDir  string           `yaml:"output_dir"`  // metrics, results db and similarity maps
	ORTLibrary string           `yaml:"ort_library"` // onnxruntime shared library; empty uses the default search
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// EvaluationConfig holds evaluation defaults.
type EvaluationConfig struct {
	BatchQuery      int   `yaml:"batch_query"`
	BatchDoc        int   `yaml:"batch_doc"`
	BatchScoreQuery int   `yaml:"batch_score_query"`
	BatchScoreDoc   int   `yaml:"batch_score_doc"`
	KValues         []int `yaml:"k_values"`
	ShowProgress    bool  `yaml:"show_progress"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Device:    "auto",
		ModelsDir: "models",
		OutputDir: "outputs",
		Evaluation: EvaluationConfig{
			BatchQuery:      4,
			BatchDoc:        4,
			BatchScoreQuery: 4,
			BatchScoreDoc:   4,
			KValues:         []int{1, 3, 5, 10, 20, 50, 100},
			ShowProgress:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadFromDir loads dir/vidore.yaml, falling back to the defaults
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ModelDir returns the directory holding the exported files for a model identifier
func (c *Config) ModelDir(identifier string) string {
	return filepath.Join(c.ModelsDir, filepath.FromSlash(identifier))
}

// ResultsDBPath returns the path of the metrics database.
func (c *Config) ResultsDBPath() string {
	return filepath.Join(c.OutputDir, "results.db")
}

// EnsureOutputDir ensures the output directory exists.
func (c *Config) EnsureOutputDir() error {
	return os.MkdirAll(c.OutputDir, 0755)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("VIDORE_DEVICE"); v != "" {
		c.Device = v
	}
	if v := os.Getenv("VIDORE_MODELS_DIR"); v != "" {
		c.ModelsDir = v
	}
	if v := os.Getenv("VIDORE_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("ORT_SHARED_LIBRARY_PATH"); v != "" {
		c.ORTLibrary = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}
