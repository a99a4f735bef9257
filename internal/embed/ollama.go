package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	kerrors "github.com/kugutsushi/engine/internal/errors"
)

// OllamaEmbedder calls an Ollama-compatible embeddings HTTP endpoint.
// It retries transient failures with exponential backoff, following
// the teacher's embedding-client pattern, scaled down to what a
// library embedded in another process needs (no thermal/progressive
// timeout scaling, no connection-pool introspection).
type OllamaEmbedder struct {
	host       string
	model      string
	dimensions int
	client     *http.Client
	maxRetries int
}

// NewOllamaEmbedder constructs a client against host for model, which
// must produce vectors of the given dimensionality.
func NewOllamaEmbedder(host, model string, dimensions int) *OllamaEmbedder {
	return &OllamaEmbedder{
		host:       host,
		model:      model,
		dimensions: dimensions,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		maxRetries: 3,
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Dimensions reports the embedder's configured output dimensionality.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// Embed produces one vector for text, retrying transient failures.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		vec, err := e.embedOnce(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
	}
	return nil, kerrors.EmbedderError(fmt.Sprintf("embedding request failed after %d attempts", e.maxRetries+1), lastErr)
}

func (e *OllamaEmbedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embeddings endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embeddings endpoint returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(parsed.Embedding) != e.dimensions {
		return nil, fmt.Errorf("embedder returned %d dimensions, want %d", len(parsed.Embedding), e.dimensions)
	}
	return parsed.Embedding, nil
}

// EmbedBatch embeds each text in turn. The reference HTTP embedding
// endpoint takes one input per call; batching here only amortizes the
// caller's bookkeeping, not the network round trips.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// HealthCheck reports whether the embedding endpoint is reachable.
func (e *OllamaEmbedder) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.host+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return kerrors.EmbedderError("embedding endpoint health check failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return kerrors.EmbedderError(fmt.Sprintf("embedding endpoint unhealthy: status %d", resp.StatusCode), nil)
	}
	return nil
}
