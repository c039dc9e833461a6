// Package config provides configuration management for the indexing
// service. Loading goes through viper, grounded on the same
// defaults-then-file-then-env precedence cortex's own config loader
// uses, with explicit env var bindings so the REPOINDEXER_* names stay
// flat (e.g. REPOINDEXER_FILE_BATCH_SIZE) rather than the dotted form
// viper's AutomaticEnv would otherwise require.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete configuration tree.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server" mapstructure:"server"`
	Catalog   CatalogConfig   `json:"catalog" yaml:"catalog" mapstructure:"catalog"`
	Indexing  IndexingConfig  `json:"indexing" yaml:"indexing" mapstructure:"indexing"`
	Forge     ForgeConfig     `json:"forge" yaml:"forge" mapstructure:"forge"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	Vector    VectorConfig    `json:"vector" yaml:"vector" mapstructure:"vector"`
	Graph     GraphConfig     `json:"graph" yaml:"graph" mapstructure:"graph"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging" mapstructure:"logging"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
	Sentry    SentryConfig    `json:"sentry" yaml:"sentry" mapstructure:"sentry"`
	Auth      AuthConfig      `json:"auth" yaml:"auth" mapstructure:"auth"`
}

// ServerConfig holds the HTTP status/healthz/metrics surface's listen
// address.
type ServerConfig struct {
	Host string `json:"host" yaml:"host" mapstructure:"host"`
	Port int    `json:"port" yaml:"port" mapstructure:"port"`
}

// CatalogConfig holds the Repository Metadata Store's backing file.
type CatalogConfig struct {
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// IndexingConfig holds the spec's Configuration list
// (fileBatchSize, embeddingBatchSize, renameWindowMs,
// changeFileThreshold, updateHistoryLimit, includeExtensions,
// excludePatterns).
type IndexingConfig struct {
	FileBatchSize       int      `json:"fileBatchSize" yaml:"file_batch_size" mapstructure:"file_batch_size"`
	EmbeddingBatchSize  int      `json:"embeddingBatchSize" yaml:"embedding_batch_size" mapstructure:"embedding_batch_size"`
	RenameWindowMs      int      `json:"renameWindowMs" yaml:"rename_window_ms" mapstructure:"rename_window_ms"`
	ChangeFileThreshold int      `json:"changeFileThreshold" yaml:"change_file_threshold" mapstructure:"change_file_threshold"`
	UpdateHistoryLimit  int      `json:"updateHistoryLimit" yaml:"update_history_limit" mapstructure:"update_history_limit"`
	IncludeExtensions   []string `json:"includeExtensions" yaml:"include_extensions" mapstructure:"include_extensions"`
	ExcludePatterns     []string `json:"excludePatterns" yaml:"exclude_patterns" mapstructure:"exclude_patterns"`
}

// RenameWindow is RenameWindowMs as a time.Duration, the unit every
// caller (the categorizer) actually wants.
func (i IndexingConfig) RenameWindow() time.Duration {
	return time.Duration(i.RenameWindowMs) * time.Millisecond
}

// ForgeConfig holds the remote code-forge client's credentials.
type ForgeConfig struct {
	BaseURL string `json:"baseUrl" yaml:"base_url" mapstructure:"base_url"`
	Token   string `json:"token" yaml:"token" mapstructure:"token"`
}

// EmbeddingConfig holds the embedding provider's dial-out settings.
type EmbeddingConfig struct {
	Provider   string `json:"provider" yaml:"provider" mapstructure:"provider"`
	Endpoint   string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	APIKey     string `json:"apiKey" yaml:"api_key" mapstructure:"api_key"`
	Model      string `json:"model" yaml:"model" mapstructure:"model"`
	Dimensions int    `json:"dimensions" yaml:"dimensions" mapstructure:"dimensions"`
}

// VectorConfig holds the vector store's DSN.
type VectorConfig struct {
	DSN string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`
}

// GraphConfig holds the optional structural graph's settings.
type GraphConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// MetricsConfig holds the Prometheus listen address.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" yaml:"host" mapstructure:"host"`
	Port    int    `json:"port" yaml:"port" mapstructure:"port"`
	Path    string `json:"path" yaml:"path" mapstructure:"path"`
}

// SentryConfig holds Sentry error monitoring configuration.
type SentryConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	DSN         string  `json:"dsn" yaml:"dsn" mapstructure:"dsn"`
	Environment string  `json:"environment" yaml:"environment" mapstructure:"environment"`
	SampleRate  float64 `json:"sampleRate" yaml:"sample_rate" mapstructure:"sample_rate"`
}

// AuthConfig holds the optional JWT bearer-auth settings for the
// status HTTP endpoint (internal/security/auth, internal/httpapi).
// Disabled by default: /status stays open until an operator supplies a
// key pair.
type AuthConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	PrivateKeyPath string `json:"privateKeyPath" yaml:"private_key_path" mapstructure:"private_key_path"`
	PublicKeyPath  string `json:"publicKeyPath" yaml:"public_key_path" mapstructure:"public_key_path"`
	Issuer         string `json:"issuer" yaml:"issuer" mapstructure:"issuer"`
	Audience       string `json:"audience" yaml:"audience" mapstructure:"audience"`
	ExpiryMinutes  int    `json:"expiryMinutes" yaml:"expiry_minutes" mapstructure:"expiry_minutes"`
}

// Default values.
const (
	DefaultHost                = "0.0.0.0"
	DefaultPort                = 8080
	DefaultCatalogPath         = "./data/catalog.json"
	DefaultFileBatchSize       = 50
	DefaultEmbeddingBatchSize  = 100
	DefaultRenameWindowMs      = 500
	DefaultChangeFileThreshold = 500
	DefaultUpdateHistoryLimit  = 10
	DefaultEmbeddingProvider   = "mock"
	DefaultEmbeddingModel      = "mock-768"
	DefaultEmbeddingDimensions = 768
	DefaultVectorDSN           = "./data/vectors.db"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "json"
	DefaultMetricsEnabled      = true
	DefaultMetricsPort         = 9091
	DefaultMetricsPath         = "/metrics"
	DefaultSentryEnabled       = false
	DefaultSentryEnvironment   = "development"
	DefaultSentrySampleRate    = 1.0
	DefaultAuthEnabled         = false
	DefaultAuthIssuer          = "repoindexer"
	DefaultAuthAudience        = "repoindexer-clients"
	DefaultAuthExpiryMinutes   = 60
)

// ValidLogLevels and ValidLogFormats are the accepted values for
// Logging.Level/Format.
var (
	ValidLogLevels  = []string{"debug", "info", "warn", "error"}
	ValidLogFormats = []string{"json", "text"}
)

// DefaultExtensions is the include-extensions default, shared with the
// ingestion and incremental pipelines.
var DefaultExtensions = []string{
	".go", ".js", ".jsx", ".ts", ".tsx", ".py", ".java", ".rb", ".rs",
	".c", ".h", ".cpp", ".hpp", ".cs", ".md", ".json", ".yaml", ".yml",
}

// Load loads configuration with viper, precedence (highest to
// lowest): REPOINDEXER_* environment variables, the file named by
// REPOINDEXER_CONFIG_FILE (if set), then the defaults below.
func Load(ctx context.Context) (*Config, error) {
	v := viper.New()
	bindDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env vars: %w", err)
	}

	if configFile := os.Getenv("REPOINDEXER_CONFIG_FILE"); configFile != "" {
		ext := strings.ToLower(filepath.Ext(configFile))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			return nil, fmt.Errorf("load config file: unsupported file extension: %s", ext)
		}
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// bindDefaults seeds v with Default()'s values, keyed the same way
// Config's mapstructure tags nest, so Unmarshal round-trips them
// untouched when nothing overrides them.
func bindDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("catalog.path", d.Catalog.Path)
	v.SetDefault("indexing.file_batch_size", d.Indexing.FileBatchSize)
	v.SetDefault("indexing.embedding_batch_size", d.Indexing.EmbeddingBatchSize)
	v.SetDefault("indexing.rename_window_ms", d.Indexing.RenameWindowMs)
	v.SetDefault("indexing.change_file_threshold", d.Indexing.ChangeFileThreshold)
	v.SetDefault("indexing.update_history_limit", d.Indexing.UpdateHistoryLimit)
	v.SetDefault("indexing.include_extensions", d.Indexing.IncludeExtensions)
	v.SetDefault("indexing.exclude_patterns", d.Indexing.ExcludePatterns)
	v.SetDefault("forge.base_url", d.Forge.BaseURL)
	v.SetDefault("forge.token", d.Forge.Token)
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.endpoint", d.Embedding.Endpoint)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("vector.dsn", d.Vector.DSN)
	v.SetDefault("graph.enabled", d.Graph.Enabled)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.host", d.Metrics.Host)
	v.SetDefault("metrics.port", d.Metrics.Port)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("sentry.enabled", d.Sentry.Enabled)
	v.SetDefault("sentry.dsn", d.Sentry.DSN)
	v.SetDefault("sentry.environment", d.Sentry.Environment)
	v.SetDefault("sentry.sample_rate", d.Sentry.SampleRate)
	v.SetDefault("auth.enabled", d.Auth.Enabled)
	v.SetDefault("auth.private_key_path", d.Auth.PrivateKeyPath)
	v.SetDefault("auth.public_key_path", d.Auth.PublicKeyPath)
	v.SetDefault("auth.issuer", d.Auth.Issuer)
	v.SetDefault("auth.audience", d.Auth.Audience)
	v.SetDefault("auth.expiry_minutes", d.Auth.ExpiryMinutes)
}

// bindEnv binds every REPOINDEXER_* environment variable the
// Configuration list (and the ambient stack) names to its
// mapstructure key, so Load's env-var precedence keeps the flat
// names operators already use.
func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"server.host":                   "REPOINDEXER_HOST",
		"server.port":                   "REPOINDEXER_PORT",
		"catalog.path":                  "REPOINDEXER_CATALOG_PATH",
		"indexing.file_batch_size":      "REPOINDEXER_FILE_BATCH_SIZE",
		"indexing.embedding_batch_size": "REPOINDEXER_EMBEDDING_BATCH_SIZE",
		"indexing.rename_window_ms":     "REPOINDEXER_RENAME_WINDOW_MS",
		"indexing.change_file_threshold": "REPOINDEXER_CHANGE_FILE_THRESHOLD",
		"indexing.update_history_limit":  "REPOINDEXER_UPDATE_HISTORY_LIMIT",
		"indexing.include_extensions":    "REPOINDEXER_INCLUDE_EXTENSIONS",
		"indexing.exclude_patterns":      "REPOINDEXER_EXCLUDE_PATTERNS",
		"forge.base_url":                 "REPOINDEXER_FORGE_BASE_URL",
		"forge.token":                    "REPOINDEXER_FORGE_TOKEN",
		"embedding.provider":             "REPOINDEXER_EMBEDDING_PROVIDER",
		"embedding.endpoint":             "REPOINDEXER_EMBEDDING_ENDPOINT",
		"embedding.api_key":              "REPOINDEXER_EMBEDDING_API_KEY",
		"embedding.model":                "REPOINDEXER_EMBEDDING_MODEL",
		"embedding.dimensions":           "REPOINDEXER_EMBEDDING_DIMENSIONS",
		"vector.dsn":                     "REPOINDEXER_VECTOR_DSN",
		"graph.enabled":                  "REPOINDEXER_GRAPH_ENABLED",
		"logging.level":                  "REPOINDEXER_LOG_LEVEL",
		"logging.format":                 "REPOINDEXER_LOG_FORMAT",
		"metrics.enabled":                "REPOINDEXER_METRICS_ENABLED",
		"metrics.port":                   "REPOINDEXER_METRICS_PORT",
		"sentry.enabled":                 "REPOINDEXER_SENTRY_ENABLED",
		"sentry.dsn":                     "REPOINDEXER_SENTRY_DSN",
		"sentry.environment":             "REPOINDEXER_SENTRY_ENVIRONMENT",
		"sentry.sample_rate":             "REPOINDEXER_SENTRY_SAMPLE_RATE",
		"auth.enabled":                   "REPOINDEXER_AUTH_ENABLED",
		"auth.private_key_path":          "REPOINDEXER_AUTH_PRIVATE_KEY_PATH",
		"auth.public_key_path":           "REPOINDEXER_AUTH_PUBLIC_KEY_PATH",
		"auth.issuer":                    "REPOINDEXER_AUTH_ISSUER",
		"auth.audience":                  "REPOINDEXER_AUTH_AUDIENCE",
		"auth.expiry_minutes":            "REPOINDEXER_AUTH_EXPIRY_MINUTES",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a Config with every default value, suitable for
// tests and documentation.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: DefaultHost, Port: DefaultPort},
		Catalog: CatalogConfig{Path: DefaultCatalogPath},
		Indexing: IndexingConfig{
			FileBatchSize:       DefaultFileBatchSize,
			EmbeddingBatchSize:  DefaultEmbeddingBatchSize,
			RenameWindowMs:      DefaultRenameWindowMs,
			ChangeFileThreshold: DefaultChangeFileThreshold,
			UpdateHistoryLimit:  DefaultUpdateHistoryLimit,
			IncludeExtensions:   append([]string(nil), DefaultExtensions...),
			ExcludePatterns:     []string{".git/**", "node_modules/**", "vendor/**"},
		},
		Embedding: EmbeddingConfig{
			Provider:   DefaultEmbeddingProvider,
			Model:      DefaultEmbeddingModel,
			Dimensions: DefaultEmbeddingDimensions,
		},
		Vector: VectorConfig{DSN: DefaultVectorDSN},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Metrics: MetricsConfig{
			Enabled: DefaultMetricsEnabled,
			Host:    DefaultHost,
			Port:    DefaultMetricsPort,
			Path:    DefaultMetricsPath,
		},
		Sentry: SentryConfig{
			Enabled:     DefaultSentryEnabled,
			Environment: DefaultSentryEnvironment,
			SampleRate:  DefaultSentrySampleRate,
		},
		Auth: AuthConfig{
			Enabled:       DefaultAuthEnabled,
			Issuer:        DefaultAuthIssuer,
			Audience:      DefaultAuthAudience,
			ExpiryMinutes: DefaultAuthExpiryMinutes,
		},
	}
}

// Validate checks every field named in the Configuration list plus the
// ambient stack's own fields.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 0-65535)", c.Server.Port)
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog path cannot be empty")
	}

	if c.Indexing.FileBatchSize < 1 {
		return fmt.Errorf("fileBatchSize must be positive: %d", c.Indexing.FileBatchSize)
	}
	if c.Indexing.EmbeddingBatchSize < 1 {
		return fmt.Errorf("embeddingBatchSize must be positive: %d", c.Indexing.EmbeddingBatchSize)
	}
	if c.Indexing.RenameWindowMs < 0 {
		return fmt.Errorf("renameWindowMs cannot be negative: %d", c.Indexing.RenameWindowMs)
	}
	if c.Indexing.ChangeFileThreshold < 1 {
		return fmt.Errorf("changeFileThreshold must be positive: %d", c.Indexing.ChangeFileThreshold)
	}
	if c.Indexing.UpdateHistoryLimit < 1 {
		return fmt.Errorf("updateHistoryLimit must be positive: %d", c.Indexing.UpdateHistoryLimit)
	}
	if len(c.Indexing.IncludeExtensions) == 0 {
		return fmt.Errorf("includeExtensions cannot be empty")
	}

	if c.Embedding.Dimensions < 1 {
		return fmt.Errorf("embedding dimensions must be positive: %d", c.Embedding.Dimensions)
	}
	if c.Vector.DSN == "" {
		return fmt.Errorf("vector DSN cannot be empty")
	}

	if !contains(ValidLogLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}
	if !contains(ValidLogFormats, c.Logging.Format) {
		return fmt.Errorf("invalid log format: %s (valid: %v)", c.Logging.Format, ValidLogFormats)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d (must be 1-65535)", c.Metrics.Port)
		}
		if c.Metrics.Path == "" {
			return fmt.Errorf("metrics path cannot be empty when metrics enabled")
		}
	}

	if c.Sentry.Enabled {
		if c.Sentry.DSN == "" {
			return fmt.Errorf("sentry DSN cannot be empty when sentry enabled")
		}
		if c.Sentry.SampleRate < 0 || c.Sentry.SampleRate > 1 {
			return fmt.Errorf("sentry sample rate must be between 0 and 1: %f", c.Sentry.SampleRate)
		}
	}

	if c.Auth.Enabled {
		if c.Auth.PrivateKeyPath == "" || c.Auth.PublicKeyPath == "" {
			return fmt.Errorf("auth privateKeyPath/publicKeyPath cannot be empty when auth enabled")
		}
		if c.Auth.ExpiryMinutes < 1 {
			return fmt.Errorf("auth expiryMinutes must be positive: %d", c.Auth.ExpiryMinutes)
		}
	}

	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
