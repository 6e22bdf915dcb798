// Package embed provides the embedding provider variants: a remote
// batch-capable Gemini client and a local per-item Ollama client. Both tag
// the vectors they produce with a provider name so embedding spaces are
// never mixed at query time.
package embed

import (
	"context"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/studyrag/internal/core"
)

const (
	// geminiBatchSize is the largest batch one BatchEmbedContents call takes.
	geminiBatchSize = 16

	// geminiMaxChars is the per-text truncation limit before sending.
	geminiMaxChars = 30000
)

// GeminiEmbedder is the remote batch-capable provider variant.
type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	return &GeminiEmbedder{client: cl, modelName: modelName}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiEmbedder) Name() string { return "gemini/" + g.modelName }

func (g *GeminiEmbedder) BatchSize() int { return geminiBatchSize }

func (g *GeminiEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	em := g.client.EmbeddingModel(g.modelName)
	resp, err := em.EmbedContent(ctx, genai.Text(truncate(text, geminiMaxChars)))
	if err != nil {
		return nil, &core.EmbeddingProviderError{Provider: g.Name(), Err: err}
	}
	if resp.Embedding == nil {
		return nil, &core.EmbeddingProviderError{Provider: g.Name(), Err: fmt.Errorf("empty embedding response")}
	}
	return resp.Embedding.Values, nil
}

// EmbedTexts embeds all texts in one request via BatchEmbedContents.
// Vectors come back in input order.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > geminiBatchSize {
		return nil, &core.EmbeddingProviderError{
			Provider: g.Name(),
			Err:      fmt.Errorf("batch of %d exceeds limit %d", len(texts), geminiBatchSize),
		}
	}

	em := g.client.EmbeddingModel(g.modelName)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(truncate(t, geminiMaxChars)))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, &core.EmbeddingProviderError{Provider: g.Name(), Err: err}
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, &core.EmbeddingProviderError{
			Provider: g.Name(),
			Err:      fmt.Errorf("embedding count mismatch: got %d want %d", len(resp.Embeddings), len(texts)),
		}
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}

// truncate cuts text to at most limit runes.
func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
