package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/studyrag/internal/core"
)

// fakeOllama answers /api/embeddings with a vector whose first component
// encodes the prompt length, so input order is observable in the output.
func fakeOllama(t *testing.T, fail bool, inflight *int32, peak *int32) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
			return
		}
		if inflight != nil {
			cur := atomic.AddInt32(inflight, 1)
			mu.Lock()
			if cur > *peak {
				*peak = cur
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(inflight, -1)
		}

		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := ollamaEmbedResponse{Embedding: []float64{float64(len(req.Prompt)), 1, 2}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestOllamaEmbedTextsPreservesOrder(t *testing.T) {
	srv := fakeOllama(t, false, nil, nil)
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "test-model")

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff", "ggggggg"}
	vecs, err := e.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, v := range vecs {
		assert.Equal(t, float32(len(texts[i])), v[0], "vector %d out of order", i)
	}
}

func TestOllamaEmbedTextsBoundsConcurrency(t *testing.T) {
	var inflight, peak int32
	srv := fakeOllama(t, false, &inflight, &peak)
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "test-model")

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = "text"
	}
	_, err := e.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, int32(ollamaBatchSize))
	assert.Greater(t, peak, int32(0))
}

func TestOllamaEmbedTextsFailsWholeBatch(t *testing.T) {
	srv := fakeOllama(t, true, nil, nil)
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "test-model")

	_, err := e.EmbedTexts(context.Background(), []string{"a", "b"})
	require.Error(t, err)

	var perr *core.EmbeddingProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "ollama/test-model", perr.Provider)
}

func TestOllamaName(t *testing.T) {
	e := NewOllamaEmbedder("", "")
	assert.Equal(t, "ollama/"+ollamaDefaultModel, e.Name())
	assert.Equal(t, ollamaBatchSize, e.BatchSize())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abc", truncate("abcdef", 3))
	assert.Equal(t, "日本語", truncate("日本語テキスト", 3))
}
