package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/studyrag/internal/core"
)

const (
	ollamaDefaultBaseURL = "http://localhost:11434"
	ollamaDefaultModel   = "nomic-embed-text"
	ollamaDefaultTimeout = 30 * time.Second

	// ollamaBatchSize is not a server limit; the API has no batch call, so
	// it bounds how many per-item requests fan out concurrently.
	ollamaBatchSize = 4

	// ollamaMaxChars is the per-text truncation limit before sending.
	ollamaMaxChars = 8000
)

// OllamaEmbedder is the local per-item provider variant. Ollama has no native
// batch API, so EmbedTexts issues one request per text, at most BatchSize of
// them in flight, and collects results in input order.
type OllamaEmbedder struct {
	client  *http.Client
	baseURL string
	model   string
}

var _ core.EmbeddingProvider = (*OllamaEmbedder)(nil)

func NewOllamaEmbedder(baseURL, model string) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = ollamaDefaultBaseURL
	}
	if model == "" {
		model = ollamaDefaultModel
	}
	return &OllamaEmbedder{
		client:  &http.Client{Timeout: ollamaDefaultTimeout},
		baseURL: baseURL,
		model:   model,
	}
}

func (o *OllamaEmbedder) Name() string { return "ollama/" + o.model }

func (o *OllamaEmbedder) BatchSize() int { return ollamaBatchSize }

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (o *OllamaEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec, err := o.embedOne(ctx, text)
	if err != nil {
		return nil, &core.EmbeddingProviderError{Provider: o.Name(), Err: err}
	}
	return vec, nil
}

// EmbedTexts fans out per-item requests bounded by BatchSize and returns
// vectors in input order. Any failed request fails the whole batch.
func (o *OllamaEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ollamaBatchSize)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := o.embedOne(gctx, text)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			out[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, &core.EmbeddingProviderError{Provider: o.Name(), Err: err}
	}
	return out, nil
}

func (o *OllamaEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{
		Model:  o.model,
		Prompt: truncate(text, ollamaMaxChars),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}

	vec := make([]float32, len(parsed.Embedding))
	for i, v := range parsed.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
