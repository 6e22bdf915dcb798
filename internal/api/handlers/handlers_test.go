package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/studyrag/internal/core/ingest"
	"github.com/markdave123-py/studyrag/internal/core/retrieval"
	"github.com/markdave123-py/studyrag/internal/core/store"
	"github.com/markdave123-py/studyrag/internal/models"
)

type stubProvider struct{}

func (stubProvider) Name() string   { return "stub/model" }
func (stubProvider) BatchSize() int { return 4 }

func (stubProvider) EmbedText(_ context.Context, text string) ([]float32, error) {
	// Length-sensitive but normalized enough for cosine to behave.
	return []float32{1, float32(len(text) % 7), 0.5}, nil
}

func (p stubProvider) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = p.EmbedText(context.Background(), t)
	}
	return out, nil
}

type stubExtractor struct{ text string }

func (s stubExtractor) Extract(context.Context, []byte, string, string) ([]string, error) {
	return []string{s.text}, nil
}

type stubGenerator struct{ answer string }

func (s stubGenerator) Generate(context.Context, string, string) (string, error) {
	return s.answer, nil
}

func newRouter(t *testing.T) (*chi.Mux, *store.MemoryStore, *ingest.Coordinator) {
	t.Helper()
	mem := store.NewMemoryStore()
	provider := stubProvider{}

	coordinator, err := ingest.NewCoordinator(mem, provider, stubExtractor{text: strings.Repeat("study material ", 30)}, ingest.Config{ChunkSize: 120, Overlap: 20}, nil)
	require.NoError(t, err)
	engine, err := retrieval.NewEngine(mem, provider, nil)
	require.NoError(t, err)

	docs := NewDocumentHandler(mem, coordinator, nil, nil)
	query := NewQueryHandler(engine, stubGenerator{answer: "42"}, mem, mem, nil)

	r := chi.NewRouter()
	r.Post("/api/documents/upload", docs.Upload)
	r.Get("/api/uploads/{uploadID}", docs.UploadStatus)
	r.Delete("/api/uploads/{uploadID}", docs.EvictUpload)
	r.Get("/api/documents", docs.List)
	r.Delete("/api/documents/{documentID}", docs.Delete)
	r.Post("/api/chat/query", query.Query)
	r.Get("/api/documents/{documentID}/usage", query.Usage)
	return r, mem, coordinator
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func uploadAndWait(t *testing.T, r *chi.Mux, c *ingest.Coordinator) string {
	t.Helper()
	body, contentType := multipartUpload(t, "notes.txt", "ignored by stub extractor")
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	uploadID := resp["upload_id"]
	require.NotEmpty(t, uploadID)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := c.Status(uploadID)
		require.True(t, ok)
		if job.Done() {
			require.Empty(t, job.Error)
			return uploadID
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("ingestion did not finish")
	return ""
}

func TestUploadAndStatus(t *testing.T) {
	r, _, c := newRouter(t)
	uploadID := uploadAndWait(t, r, c)

	req := httptest.NewRequest(http.MethodGet, "/api/uploads/"+uploadID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var job models.UploadJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "complete", job.Status)
}

func TestEvictUpload(t *testing.T) {
	r, _, c := newRouter(t)
	uploadID := uploadAndWait(t, r, c)

	req := httptest.NewRequest(http.MethodDelete, "/api/uploads/"+uploadID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, ok := c.Status(uploadID)
	assert.False(t, ok)

	req = httptest.NewRequest(http.MethodDelete, "/api/uploads/"+uploadID, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadMissingFile(t *testing.T) {
	r, _, _ := newRouter(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusUnknownUpload(t *testing.T) {
	r, _, _ := newRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/uploads/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndDeleteDocument(t *testing.T) {
	r, mem, c := newRouter(t)
	uploadAndWait(t, r, c)

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var docs []models.DocumentSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	require.Len(t, docs, 1)

	req = httptest.NewRequest(http.MethodDelete, "/api/documents/"+docs[0].ID, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	chunks, err := mem.ListAllChunks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, chunks)

	req = httptest.NewRequest(http.MethodDelete, "/api/documents/"+docs[0].ID, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueryAndUsage(t *testing.T) {
	r, _, c := newRouter(t)
	uploadAndWait(t, r, c)

	body := `{"query": "what is the material about?"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "42", resp.Answer)
	assert.NotEmpty(t, resp.CitedChunks)
	assert.Contains(t, resp.Context, "[Source 1]")
	assert.Equal(t, "notes", resp.CitedChunks[0].Title)

	docID := resp.CitedChunks[0].DocumentID
	req = httptest.NewRequest(http.MethodGet, "/api/documents/"+docID+"/usage", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []models.UsageLogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "42", entries[0].Response)
	assert.NotEmpty(t, entries[0].Chunks)
}

func TestQueryEmptyStore(t *testing.T) {
	r, _, _ := newRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/chat/query", strings.NewReader(`{"query": "anything"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueryBadBody(t *testing.T) {
	r, _, _ := newRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/chat/query", strings.NewReader(`{`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/chat/query", strings.NewReader(`{"query": "  "}`))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
