package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 384, cfg.AI.EmbeddingDim)
	assert.Equal(t, 3072, cfg.RAG.TokenBudget)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
clustering:
  k: 16
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 16, cfg.Clustering.K)
	// Untouched sections keep defaults.
	assert.Equal(t, 10, cfg.Retrieval.DefaultTopK)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, `
server:
  prot: 9090
`)

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SCHOLARQUERY_EMBEDDING_HOST", "http://embed.internal:9000")
	t.Setenv("SCHOLARQUERY_STORAGE_PATH", "/var/lib/scholarquery")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://embed.internal:9000", cfg.AI.EmbeddingHost)
	assert.Equal(t, "/var/lib/scholarquery", cfg.Storage.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 0 }},
		{"non-positive dimension", func(c *Config) { c.AI.EmbeddingDim = 0 }},
		{"max top_k below default", func(c *Config) { c.Retrieval.MaxTopK = 1 }},
		{"non-positive k", func(c *Config) { c.Clustering.K = 0 }},
		{"non-positive budget", func(c *Config) { c.RAG.TokenBudget = 0 }},
		{"missing storage path", func(c *Config) { c.Storage.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
