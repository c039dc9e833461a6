package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultCatalogPath, cfg.Catalog.Path)
	assert.Equal(t, DefaultFileBatchSize, cfg.Indexing.FileBatchSize)
	assert.Equal(t, DefaultEmbeddingBatchSize, cfg.Indexing.EmbeddingBatchSize)
	assert.Equal(t, DefaultChangeFileThreshold, cfg.Indexing.ChangeFileThreshold)
	assert.Equal(t, DefaultUpdateHistoryLimit, cfg.Indexing.UpdateHistoryLimit)
	assert.NotEmpty(t, cfg.Indexing.IncludeExtensions)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	vars := map[string]string{
		"REPOINDEXER_HOST":                  "127.0.0.1",
		"REPOINDEXER_PORT":                  "9090",
		"REPOINDEXER_CATALOG_PATH":          "/custom/catalog.json",
		"REPOINDEXER_FILE_BATCH_SIZE":       "25",
		"REPOINDEXER_EMBEDDING_BATCH_SIZE":  "50",
		"REPOINDEXER_CHANGE_FILE_THRESHOLD": "750",
		"REPOINDEXER_UPDATE_HISTORY_LIMIT":  "20",
		"REPOINDEXER_INCLUDE_EXTENSIONS":    ".go,.ts",
		"REPOINDEXER_LOG_LEVEL":             "debug",
		"REPOINDEXER_LOG_FORMAT":            "text",
		"REPOINDEXER_EMBEDDING_PROVIDER":    "http",
		"REPOINDEXER_EMBEDDING_ENDPOINT":    "http://embedder.local/v1/embeddings",
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/custom/catalog.json", cfg.Catalog.Path)
	assert.Equal(t, 25, cfg.Indexing.FileBatchSize)
	assert.Equal(t, 50, cfg.Indexing.EmbeddingBatchSize)
	assert.Equal(t, 750, cfg.Indexing.ChangeFileThreshold)
	assert.Equal(t, 20, cfg.Indexing.UpdateHistoryLimit)
	assert.Equal(t, []string{".go", ".ts"}, cfg.Indexing.IncludeExtensions)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "http", cfg.Embedding.Provider)
	assert.Equal(t, "http://embedder.local/v1/embeddings", cfg.Embedding.Endpoint)
}

func TestLoad_RenameWindowMsFromEnv(t *testing.T) {
	t.Setenv("REPOINDEXER_RENAME_WINDOW_MS", "250")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Indexing.RenameWindowMs)
	assert.Equal(t, 250*1000*1000, int(cfg.Indexing.RenameWindow()))
}

func TestLoad_FileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 10.0.0.1
  port: 7000
indexing:
  file_batch_size: 10
`), 0o644))
	t.Setenv("REPOINDEXER_CONFIG_FILE", path)

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", cfg.Server.Host)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Indexing.FileBatchSize)
}

func TestLoad_FileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"host":"10.0.0.2","port":7001}}`), 0o644))
	t.Setenv("REPOINDEXER_CONFIG_FILE", path)

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", cfg.Server.Host)
	assert.Equal(t, 7001, cfg.Server.Port)
}

func TestLoad_FileUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0o644))
	t.Setenv("REPOINDEXER_CONFIG_FILE", path)

	_, err := Load(context.Background())
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7000\n"), 0o644))
	t.Setenv("REPOINDEXER_CONFIG_FILE", path)
	t.Setenv("REPOINDEXER_PORT", "9999")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative port", func(c *Config) { c.Server.Port = -1 }},
		{"empty catalog path", func(c *Config) { c.Catalog.Path = "" }},
		{"zero file batch size", func(c *Config) { c.Indexing.FileBatchSize = 0 }},
		{"zero embedding batch size", func(c *Config) { c.Indexing.EmbeddingBatchSize = 0 }},
		{"zero change threshold", func(c *Config) { c.Indexing.ChangeFileThreshold = 0 }},
		{"zero history limit", func(c *Config) { c.Indexing.UpdateHistoryLimit = 0 }},
		{"empty include extensions", func(c *Config) { c.Indexing.IncludeExtensions = nil }},
		{"zero embedding dimensions", func(c *Config) { c.Embedding.Dimensions = 0 }},
		{"empty vector dsn", func(c *Config) { c.Vector.DSN = "" }},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"metrics enabled without path", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Path = "" }},
		{"sentry enabled without dsn", func(c *Config) { c.Sentry.Enabled = true; c.Sentry.DSN = "" }},
		{"sentry sample rate out of range", func(c *Config) {
			c.Sentry.Enabled = true
			c.Sentry.DSN = "https://example.invalid/1"
			c.Sentry.SampleRate = 2
		}},
		{"auth enabled without key paths", func(c *Config) { c.Auth.Enabled = true }},
		{"auth enabled with zero expiry", func(c *Config) {
			c.Auth.Enabled = true
			c.Auth.PrivateKeyPath = "/etc/repoindexer/private.pem"
			c.Auth.PublicKeyPath = "/etc/repoindexer/public.pem"
			c.Auth.ExpiryMinutes = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
