// Package embedding provides the embedding-provider abstraction the
// ingestion and incremental-update pipelines call into. Computing an
// embedding is treated as an opaque provider call (spec.md §1); this
// package only defines the batch contract, health check, and the
// pluggable provider registry the configuration layer selects from.
package embedding

import "context"

// Vector is a dense embedding vector.
type Vector []float32

// Provider generates embeddings for text inputs (spec.md §6,
// "Embedding provider").
type Provider interface {
	// GenerateEmbeddings embeds a batch of texts in one call. The
	// pipeline's embedding-batch-size config controls how large texts
	// can be; the provider itself enforces no further splitting.
	GenerateEmbeddings(ctx context.Context, texts []string) ([]Vector, error)
	// Dimensions returns the dimensionality of vectors this provider
	// produces.
	Dimensions() int
	// HealthCheck reports whether the provider is reachable and
	// correctly configured.
	HealthCheck(ctx context.Context) error
	// Model identifies the embedding model in use, recorded for
	// observability but not part of any stored document.
	Model() string
}

// Factory instantiates a Provider from configuration. Implementations
// register a Factory under a name in a Registry; the configuration
// layer resolves the active provider by that name.
type Factory interface {
	Name() string
	Create(config map[string]any) (Provider, error)
}
