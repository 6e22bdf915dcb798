package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/studyrag/internal/core"
	"github.com/markdave123-py/studyrag/internal/core/retrieval"
	"github.com/markdave123-py/studyrag/internal/models"
)

const answerSystemPrompt = "You are a study assistant answering strictly from the provided source excerpts. " +
	"Cite the [Source n] markers you used. If the sources do not contain the answer, say so."

type QueryHandler struct {
	engine    *retrieval.Engine
	generator core.TextGenerator
	usage     core.UsageLogger
	store     core.ChunkStore
	logger    *slog.Logger
}

func NewQueryHandler(engine *retrieval.Engine, generator core.TextGenerator, usage core.UsageLogger, store core.ChunkStore, logger *slog.Logger) *QueryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryHandler{
		engine:    engine,
		generator: generator,
		usage:     usage,
		store:     store,
		logger:    logger.With("component", "query"),
	}
}

type queryRequest struct {
	Query               string  `json:"query"`
	MaxChunks           int     `json:"max_chunks,omitempty"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
}

type citedChunk struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
	Source     string  `json:"source"` // the marker used in the context string
	Text       string  `json:"text"`
}

type queryResponse struct {
	Answer      string       `json:"answer"`
	Context     string       `json:"context"`
	CitedChunks []citedChunk `json:"cited_chunks"`
}

// Query retrieves grounding chunks, generates an answer over them, and
// appends a usage log entry per cited document.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is empty", http.StatusBadRequest)
		return
	}

	res, err := h.engine.Retrieve(ctx, req.Query, req.MaxChunks, req.SimilarityThreshold)
	if errors.Is(err, core.ErrNoChunks) {
		http.Error(w, "no documents have been ingested", http.StatusNotFound)
		return
	}
	if errors.Is(err, core.ErrEmbeddingSpaceMismatch) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("retrieval failed", "err", err)
		http.Error(w, "retrieval failed", http.StatusInternalServerError)
		return
	}

	userPrompt := fmt.Sprintf("Sources:\n%s\n\nQuestion: %s", res.Context, req.Query)
	answer, err := h.generator.Generate(ctx, answerSystemPrompt, userPrompt)
	if err != nil {
		h.logger.Error("generation failed", "err", err)
		http.Error(w, "answer generation failed", http.StatusInternalServerError)
		return
	}

	cited := make([]citedChunk, len(res.Chunks))
	usedByDoc := make(map[string][]models.UsedChunk)
	for i, sc := range res.Chunks {
		title, _, err := h.store.GetChunkOwner(ctx, sc.Chunk.ID)
		if err != nil {
			// Owner lookup is best effort; the chunk itself was retrieved.
			h.logger.Warn("chunk owner lookup failed", "chunk_id", sc.Chunk.ID, "err", err)
		}
		cited[i] = citedChunk{
			DocumentID: sc.Chunk.DocumentID,
			Title:      title,
			ChunkIndex: sc.Chunk.ChunkIndex,
			Similarity: sc.Similarity,
			Source:     fmt.Sprintf("[Source %d]", i+1),
			Text:       sc.Chunk.Text,
		}
		usedByDoc[sc.Chunk.DocumentID] = append(usedByDoc[sc.Chunk.DocumentID], models.UsedChunk{
			ChunkIndex: sc.Chunk.ChunkIndex,
			Text:       sc.Chunk.Text,
		})
	}

	now := time.Now().UTC()
	for docID, used := range usedByDoc {
		if err := h.usage.Record(ctx, docID, used, answer, now); err != nil {
			h.logger.Warn("usage log write failed", "document_id", docID, "err", err)
		}
	}

	respondJSON(w, http.StatusOK, queryResponse{
		Answer:      answer,
		Context:     res.Context,
		CitedChunks: cited,
	})
}

// Usage returns the append-only audit trail for one document.
func (h *QueryHandler) Usage(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	entries, err := h.usage.ListByDocument(r.Context(), documentID)
	if err != nil {
		h.logger.Error("usage list failed", "document_id", documentID, "err", err)
		http.Error(w, "failed to list usage", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []models.UsageLogEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}
