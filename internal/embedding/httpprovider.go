package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPProvider calls a remote embedding endpoint over HTTP — the shape
// common to OpenAI-compatible and self-hosted embedding servers. The
// wire format is minimal by design: computing embeddings is an opaque
// external call (spec.md §1); this type only owns the transport.
type HTTPProvider struct {
	endpoint   string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
}

// NewHTTPProvider builds an HTTPProvider targeting endpoint.
func NewHTTPProvider(endpoint, apiKey, model string, dimensions int) *HTTPProvider {
	if dimensions <= 0 {
		dimensions = 768
	}
	return &HTTPProvider{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// GenerateEmbeddings implements Provider.
func (p *HTTPProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embedding: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding: provider returned status %d", resp.StatusCode)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedding: decode response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: expected %d vectors, got %d", len(texts), len(parsed.Data))
	}

	vectors := make([]Vector, len(parsed.Data))
	for i, d := range parsed.Data {
		vectors[i] = Vector(d.Embedding)
	}
	return vectors, nil
}

// Dimensions implements Provider.
func (p *HTTPProvider) Dimensions() int { return p.dimensions }

// Model implements Provider.
func (p *HTTPProvider) Model() string { return p.model }

// HealthCheck implements Provider by embedding a one-word probe.
func (p *HTTPProvider) HealthCheck(ctx context.Context) error {
	_, err := p.GenerateEmbeddings(ctx, []string{"health"})
	return err
}

// HTTPFactory implements Factory for HTTPProvider.
type HTTPFactory struct{}

// Name implements Factory.
func (f *HTTPFactory) Name() string { return "http" }

// Create implements Factory.
func (f *HTTPFactory) Create(config map[string]any) (Provider, error) {
	endpoint, _ := config["endpoint"].(string)
	if endpoint == "" {
		return nil, fmt.Errorf("embedding: endpoint is required for http provider")
	}
	apiKey, _ := config["api_key"].(string)
	model, _ := config["model"].(string)
	if model == "" {
		model = "text-embedding-3-small"
	}
	dimensions := 768
	if dim, ok := config["dimensions"].(int); ok {
		dimensions = dim
	} else if dim, ok := config["dimensions"].(float64); ok {
		dimensions = int(dim)
	}
	return NewHTTPProvider(endpoint, apiKey, model, dimensions), nil
}
