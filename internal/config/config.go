package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when the config file leaves a field unset.
const (
	DefaultMinFunctionLength = 25
	DefaultTopK              = 5
	DefaultMaxHops           = 2
	DefaultWorkers           = 4
)

// Config holds project-level settings loaded from coderag.yml, with
// environment overrides for the values that are secrets or deploy-specific.
type Config struct {
	// DBPath is the KuzuDB directory; empty means in-memory.
	DBPath string `yaml:"dbPath,omitempty"`

	// VectorDBPath is the SQLite file for embedding persistence; empty
	// means in-memory.
	VectorDBPath string `yaml:"vectorDbPath,omitempty"`

	OpenAIAPIKey   string `yaml:"openaiApiKey,omitempty"`
	EmbeddingModel string `yaml:"embeddingModel,omitempty"`

	// MinFunctionLength is the smallest code text, in bytes, worth
	// embedding as a snippet.
	MinFunctionLength int `yaml:"minFunctionLength,omitempty"`

	TopK    int `yaml:"topK,omitempty"`
	MaxHops int `yaml:"maxHops,omitempty"`
	Workers int `yaml:"workers,omitempty"`

	ExcludeDirs []string `yaml:"excludeDirs,omitempty"`
}

// Load attempts to read coderag.yml or coderag.yaml from the given
// directory. Returns a default config (not an error) if no config file
// exists. Environment variables override file values: OPENAI_API_KEY,
// OPENAI_EMBEDDING_MODEL, CODERAG_DB_PATH.
func Load(dir string) (*Config, error) {
	cfg := &Config{}
	for _, name := range []string{"coderag.yml", "coderag.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
		break
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("OPENAI_EMBEDDING_MODEL"); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := os.Getenv("CODERAG_DB_PATH"); v != "" {
		cfg.DBPath = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MinFunctionLength <= 0 {
		c.MinFunctionLength = DefaultMinFunctionLength
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.MaxHops <= 0 {
		c.MaxHops = DefaultMaxHops
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
}
