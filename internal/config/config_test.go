package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "https://dashscope.aliyuncs.com/compatible-mode/v1", cfg.Embedding.BaseURL)
	assert.Equal(t, "DASHSCOPE_API_KEY", cfg.Embedding.APIKeyEnv)
	assert.Equal(t, "text-embedding-v4", cfg.Embedding.Model)
	assert.Equal(t, 1024, cfg.Embedding.Dimensions)
	assert.Equal(t, 4, cfg.Embedding.BatchSize)
	assert.Equal(t, 3, cfg.Embedding.MaxRetries)
	assert.Equal(t, "qwen-plus", cfg.LLM.Model)
	assert.InDelta(t, 0.1, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, 1000, cfg.Chunker.Size)
	assert.Equal(t, 200, cfg.Chunker.Overlap)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
}

func TestLoad_PartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "embedding:\n  model: custom-model\n  batch_size: 8\nchunker:\n  size: 500\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "custom-model", cfg.Embedding.Model)
	assert.Equal(t, 8, cfg.Embedding.BatchSize)
	assert.Equal(t, 500, cfg.Chunker.Size)
	// untouched fields keep their defaults
	assert.Equal(t, 1024, cfg.Embedding.Dimensions)
	assert.Equal(t, "qwen-plus", cfg.LLM.Model)
}

func TestLoad_LLMInheritsEmbeddingEndpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "embedding:\n  base_url: https://example.com/v1\n  api_key_env: MY_KEY\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "MY_KEY", cfg.LLM.APIKeyEnv)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedding: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	cfg.Embedding.Model = "round-trip-model"
	cfg.Cache.Dir = "/var/cache/paperqa"

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
