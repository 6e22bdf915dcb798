package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/studyrag/internal/core"
	"github.com/markdave123-py/studyrag/internal/models"
)

// MemoryStore is an in-memory ChunkStore and UsageLogger. It mirrors the
// Postgres implementation's semantics, including cascade delete and chunk
// index uniqueness, and is safe for concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]*models.Document
	chunks    map[string][]models.Chunk // keyed by document id
	usage     map[string][]models.UsageLogEntry
}

var (
	_ core.ChunkStore  = (*MemoryStore)(nil)
	_ core.UsageLogger = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]*models.Document),
		chunks:    make(map[string][]models.Chunk),
		usage:     make(map[string][]models.UsageLogEntry),
	}
}

func (s *MemoryStore) CreateDocument(_ context.Context, title, originalName, provider string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.documents[id] = &models.Document{
		ID:           id,
		Title:        title,
		OriginalName: originalName,
		Provider:     provider,
		CreatedAt:    time.Now().UTC(),
	}
	return id, nil
}

func (s *MemoryStore) AppendChunks(_ context.Context, documentID string, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[documentID]; !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownDocument, documentID)
	}

	seen := make(map[int]bool, len(s.chunks[documentID]))
	for _, existing := range s.chunks[documentID] {
		seen[existing.ChunkIndex] = true
	}
	for _, ch := range chunks {
		if seen[ch.ChunkIndex] {
			return fmt.Errorf("duplicate chunk index %d for document %s", ch.ChunkIndex, documentID)
		}
		seen[ch.ChunkIndex] = true
	}

	for _, ch := range chunks {
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		ch.DocumentID = documentID
		if ch.CreatedAt.IsZero() {
			ch.CreatedAt = time.Now().UTC()
		}
		s.chunks[documentID] = append(s.chunks[documentID], ch)
	}
	return nil
}

func (s *MemoryStore) FinalizeDocument(_ context.Context, documentID string, embedding []float32, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownDocument, documentID)
	}
	doc.Embedding = embedding
	doc.FullText = text
	return nil
}

func (s *MemoryStore) ListDocuments(_ context.Context) ([]models.DocumentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.DocumentSummary, 0, len(s.documents))
	for _, d := range s.documents {
		out = append(out, models.DocumentSummary{
			ID:           d.ID,
			Title:        d.Title,
			OriginalName: d.OriginalName,
			Provider:     d.Provider,
			CreatedAt:    d.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetDocumentText(_ context.Context, documentID string) ([]float32, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", core.ErrUnknownDocument, documentID)
	}
	return doc.Embedding, doc.FullText, nil
}

func (s *MemoryStore) ListAllChunks(_ context.Context) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Chunk
	for _, chunks := range s.chunks {
		out = append(out, chunks...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out, nil
}

func (s *MemoryStore) GetChunkOwner(_ context.Context, chunkID string) (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for docID, chunks := range s.chunks {
		for _, ch := range chunks {
			if ch.ID == chunkID {
				doc := s.documents[docID]
				return doc.Title, doc.OriginalName, nil
			}
		}
	}
	return "", "", fmt.Errorf("%w: chunk %s", core.ErrUnknownDocument, chunkID)
}

func (s *MemoryStore) DeleteDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[documentID]; !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownDocument, documentID)
	}
	delete(s.documents, documentID)
	delete(s.chunks, documentID)
	return nil
}

func (s *MemoryStore) Record(_ context.Context, documentID string, chunks []models.UsedChunk, response string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if at.IsZero() {
		at = time.Now().UTC()
	}
	s.usage[documentID] = append(s.usage[documentID], models.UsageLogEntry{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Chunks:     chunks,
		Response:   response,
		CreatedAt:  at,
	})
	return nil
}

func (s *MemoryStore) ListByDocument(_ context.Context, documentID string) ([]models.UsageLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.usage[documentID]
	out := make([]models.UsageLogEntry, len(entries))
	copy(out, entries)
	return out, nil
}
