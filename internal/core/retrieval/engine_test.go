package retrieval

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/studyrag/internal/core"
	"github.com/markdave123-py/studyrag/internal/core/store"
	"github.com/markdave123-py/studyrag/internal/models"
)

// axisProvider embeds known queries onto fixed unit vectors so similarity
// outcomes are exact.
type axisProvider struct {
	name    string
	vectors map[string][]float32
}

func (p *axisProvider) Name() string {
	if p.name != "" {
		return p.name
	}
	return "axis/test"
}
func (p *axisProvider) BatchSize() int { return 16 }

func (p *axisProvider) EmbedText(_ context.Context, text string) ([]float32, error) {
	if v, ok := p.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (p *axisProvider) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = p.EmbedText(nil, t)
	}
	return out, nil
}

func seedChunks(t *testing.T, s *store.MemoryStore, provider string, vecs ...[]float32) string {
	t.Helper()
	docID, err := s.CreateDocument(context.Background(), "doc", "doc.pdf", provider)
	require.NoError(t, err)

	chunks := make([]models.Chunk, len(vecs))
	for i, v := range vecs {
		chunks[i] = models.Chunk{
			ChunkIndex: i,
			Text:       string(rune('a' + i)),
			Embedding:  v,
			Provider:   provider,
		}
	}
	require.NoError(t, s.AppendChunks(context.Background(), docID, chunks))
	return docID
}

func TestCosineSimilarityBounds(t *testing.T) {
	a := []float32{0.3, -0.7, 0.2}
	b := []float32{-0.5, 0.1, 0.9}

	sim := CosineSimilarity(a, b)
	assert.GreaterOrEqual(t, sim, -1.0)
	assert.LessOrEqual(t, sim, 1.0)

	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity(a, []float32{-0.3, 0.7, -0.2}), 1e-9)
}

func TestCosineSimilarityDegenerate(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestRetrieveTopKOrdering(t *testing.T) {
	mem := store.NewMemoryStore()
	p := &axisProvider{vectors: map[string][]float32{"query": {1, 0, 0}}}

	// Similarities to the query: 1.0, ~0.95, ~0.7, 0.0, -1.0.
	seedChunks(t, mem, p.Name(),
		[]float32{1, 0, 0},
		[]float32{0.9, 0.3, 0},
		[]float32{0.7, 0.714, 0},
		[]float32{0, 1, 0},
		[]float32{-1, 0, 0},
	)

	e, err := NewEngine(mem, p, nil)
	require.NoError(t, err)

	res, err := e.Retrieve(context.Background(), "query", 2, 0.5)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2, "count never exceeds maxChunks")

	assert.InDelta(t, 1.0, res.Chunks[0].Similarity, 1e-6)
	for i := 1; i < len(res.Chunks); i++ {
		assert.GreaterOrEqual(t, res.Chunks[i-1].Similarity, res.Chunks[i].Similarity)
	}
}

func TestRetrieveThresholdFiltering(t *testing.T) {
	mem := store.NewMemoryStore()
	p := &axisProvider{vectors: map[string][]float32{"query": {1, 0, 0}}}

	seedChunks(t, mem, p.Name(),
		[]float32{1, 0, 0},     // sim 1.0
		[]float32{0.8, 0.6, 0}, // sim 0.8
		[]float32{0, 1, 0},     // sim 0.0
	)

	e, err := NewEngine(mem, p, nil)
	require.NoError(t, err)

	res, err := e.Retrieve(context.Background(), "query", 5, 0.7)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2)
	for _, sc := range res.Chunks {
		assert.GreaterOrEqual(t, sc.Similarity, 0.7)
	}
}

func TestRetrieveFallbackNeverEmpty(t *testing.T) {
	mem := store.NewMemoryStore()
	p := &axisProvider{vectors: map[string][]float32{"query": {1, 0, 0}}}

	// All orthogonal or opposed to the query: nothing clears 0.7.
	seedChunks(t, mem, p.Name(),
		[]float32{0, 1, 0},
		[]float32{0, 0, 1},
		[]float32{-1, 0, 0},
		[]float32{0, -1, 0},
	)

	e, err := NewEngine(mem, p, nil)
	require.NoError(t, err)

	res, err := e.Retrieve(context.Background(), "query", 5, 0.7)
	require.NoError(t, err)
	require.Len(t, res.Chunks, fallbackChunks)
	for i := 1; i < len(res.Chunks); i++ {
		assert.GreaterOrEqual(t, res.Chunks[i-1].Similarity, res.Chunks[i].Similarity)
	}
}

func TestRetrieveSingleChunkFallback(t *testing.T) {
	mem := store.NewMemoryStore()
	p := &axisProvider{vectors: map[string][]float32{"query": {1, 0, 0}}}
	seedChunks(t, mem, p.Name(), []float32{0, 1, 0})

	e, err := NewEngine(mem, p, nil)
	require.NoError(t, err)

	res, err := e.Retrieve(context.Background(), "query", 5, 0.7)
	require.NoError(t, err)
	assert.Len(t, res.Chunks, 1)
}

func TestRetrieveEmptyStore(t *testing.T) {
	mem := store.NewMemoryStore()
	e, err := NewEngine(mem, &axisProvider{}, nil)
	require.NoError(t, err)

	_, err = e.Retrieve(context.Background(), "query", 5, 0.7)
	assert.ErrorIs(t, err, core.ErrNoChunks)
}

func TestRetrieveProviderMismatch(t *testing.T) {
	mem := store.NewMemoryStore()
	seedChunks(t, mem, "other/model", []float32{1, 0, 0})

	e, err := NewEngine(mem, &axisProvider{}, nil)
	require.NoError(t, err)

	_, err = e.Retrieve(context.Background(), "query", 5, 0.7)
	assert.ErrorIs(t, err, core.ErrEmbeddingSpaceMismatch)
}

func TestRetrieveContextMarkers(t *testing.T) {
	mem := store.NewMemoryStore()
	p := &axisProvider{vectors: map[string][]float32{"query": {1, 0, 0}}}
	seedChunks(t, mem, p.Name(),
		[]float32{1, 0, 0},
		[]float32{0.9, float32(math.Sqrt(1 - 0.81)), 0},
	)

	e, err := NewEngine(mem, p, nil)
	require.NoError(t, err)

	res, err := e.Retrieve(context.Background(), "query", 5, 0.5)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2)
	assert.Contains(t, res.Context, "[Source 1]\na")
	assert.Contains(t, res.Context, "[Source 2]\nb")
}

func TestRetrieveDefaults(t *testing.T) {
	mem := store.NewMemoryStore()
	p := &axisProvider{vectors: map[string][]float32{"query": {1, 0, 0}}}

	vecs := make([][]float32, 8)
	for i := range vecs {
		vecs[i] = []float32{1, float32(i) * 0.01, 0}
	}
	seedChunks(t, mem, p.Name(), vecs...)

	e, err := NewEngine(mem, p, nil)
	require.NoError(t, err)

	res, err := e.Retrieve(context.Background(), "query", 0, 0)
	require.NoError(t, err)
	assert.Len(t, res.Chunks, DefaultMaxChunks)
}
