package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultMinFunctionLength, cfg.MinFunctionLength)
	assert.Equal(t, DefaultTopK, cfg.TopK)
	assert.Equal(t, DefaultMaxHops, cfg.MaxHops)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Empty(t, cfg.DBPath)
}

func TestLoad_ReadsYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coderag.yml"), []byte(`
dbPath: /tmp/graph
topK: 9
excludeDirs:
  - dist
  - build
`), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/graph", cfg.DBPath)
	assert.Equal(t, 9, cfg.TopK)
	assert.Equal(t, []string{"dist", "build"}, cfg.ExcludeDirs)
	assert.Equal(t, DefaultMaxHops, cfg.MaxHops, "unset fields keep defaults")
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coderag.yaml"), []byte(`
openaiApiKey: from-file
dbPath: from-file
`), 0o644))

	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-large")
	t.Setenv("CODERAG_DB_PATH", "/env/graph")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.OpenAIAPIKey)
	assert.Equal(t, "text-embedding-3-large", cfg.EmbeddingModel)
	assert.Equal(t, "/env/graph", cfg.DBPath)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coderag.yml"), []byte("topK: [not a number"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}
