// Package retrieval scores a query against every stored chunk and assembles
// a citation-ready context string. It is a full linear scan with no index or
// cache, which is fine for the few thousand chunks this service targets.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/markdave123-py/studyrag/internal/core"
	"github.com/markdave123-py/studyrag/internal/models"
)

const (
	DefaultMaxChunks           = 5
	DefaultSimilarityThreshold = 0.7

	// fallbackChunks is how many best-effort chunks are returned when
	// nothing clears the threshold.
	fallbackChunks = 3
)

// ScoredChunk is one chunk and its cosine similarity to the query.
type ScoredChunk struct {
	Chunk      models.Chunk
	Similarity float64
}

// Result is the assembled retrieval output: the grounding context string and
// the chunks it cites, in descending-similarity order.
type Result struct {
	Context string
	Chunks  []ScoredChunk
}

// Engine retrieves relevant chunks for a query. The provider must be the one
// the chunks were ingested with; embedding spaces from different providers
// are not comparable, and mismatched chunks are rejected.
type Engine struct {
	store    core.ChunkStore
	provider core.EmbeddingProvider
	logger   *slog.Logger
}

func NewEngine(store core.ChunkStore, provider core.EmbeddingProvider, logger *slog.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("chunk store required")
	}
	if provider == nil {
		return nil, fmt.Errorf("embedding provider required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, provider: provider, logger: logger.With("component", "retrieval")}, nil
}

// Retrieve embeds the query, scores it against all stored chunks, applies the
// similarity threshold with a top-N fallback, and returns the top maxChunks.
// maxChunks <= 0 and threshold <= 0 select the defaults. The result is empty
// only when the store holds no chunks at all.
func (e *Engine) Retrieve(ctx context.Context, query string, maxChunks int, threshold float64) (*Result, error) {
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}

	queryVec, err := e.provider.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	chunks, err := e.store.ListAllChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, core.ErrNoChunks
	}

	scored := make([]ScoredChunk, 0, len(chunks))
	mismatched := 0
	for _, ch := range chunks {
		if ch.Provider != e.provider.Name() {
			mismatched++
			continue
		}
		scored = append(scored, ScoredChunk{
			Chunk:      ch,
			Similarity: CosineSimilarity(queryVec, ch.Embedding),
		})
	}
	if len(scored) == 0 {
		return nil, fmt.Errorf("%w: %d chunks embedded by another provider", core.ErrEmbeddingSpaceMismatch, mismatched)
	}
	if mismatched > 0 {
		e.logger.Warn("skipping chunks from another embedding space", "skipped", mismatched)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })

	var selected []ScoredChunk
	for _, sc := range scored {
		if sc.Similarity >= threshold {
			selected = append(selected, sc)
		}
	}
	if len(selected) == 0 {
		// Nothing cleared the threshold: fall back to the best few so a
		// non-empty store always yields a non-empty result.
		n := fallbackChunks
		if n > len(scored) {
			n = len(scored)
		}
		selected = scored[:n]
	}
	if len(selected) > maxChunks {
		selected = selected[:maxChunks]
	}

	return &Result{
		Context: buildContext(selected),
		Chunks:  selected,
	}, nil
}

// buildContext concatenates chunk texts with stable [Source i] markers, in
// descending-similarity order.
func buildContext(selected []ScoredChunk) string {
	var sb strings.Builder
	for i, sc := range selected {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[Source %d]\n%s", i+1, sc.Chunk.Text)
	}
	return sb.String()
}

// CosineSimilarity is dot(a,b) / (||a|| * ||b||), in [-1, 1]. It is 0 when
// either vector has zero magnitude or the dimensions differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
