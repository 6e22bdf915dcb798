package core

import (
	"context"
	"io"
	"time"

	"github.com/markdave123-py/studyrag/internal/models"
)

// EmbeddingProvider turns text into fixed-dimensional vectors. Implementations
// must be safe for concurrent use; they perform no retries of their own, so
// retry policy belongs to the caller.
type EmbeddingProvider interface {
	// Name identifies the embedding space. Chunks are tagged with it so
	// queries embedded by a different provider can be rejected.
	Name() string

	// BatchSize is the largest slice EmbedTexts accepts in one call.
	BatchSize() int

	// EmbedText embeds a single text.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts embeds up to BatchSize texts, returning vectors in input
	// order. A failure anywhere fails the whole batch with a
	// *EmbeddingProviderError.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// TextGenerator is the narrow interface to the chat-completion collaborator.
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// TextExtractor parses an uploaded file into per-unit text (one string per
// page for PDFs, a single unit otherwise).
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, filename, contentType string) ([]string, error)
}

// ChunkStore persists documents and their chunks. A chunk can never outlive
// its document (cascade delete), and AppendChunks for the same document must
// be safe to call from concurrent batches.
type ChunkStore interface {
	// CreateDocument inserts a placeholder document with empty text and
	// embedding and returns its id.
	CreateDocument(ctx context.Context, title, originalName, provider string) (string, error)

	// AppendChunks inserts chunks for an existing document in one
	// transaction. Returns ErrUnknownDocument if the document does not exist.
	AppendChunks(ctx context.Context, documentID string, chunks []models.Chunk) error

	// FinalizeDocument fills in the document-level embedding and full text.
	// Repeated calls are last-write-wins.
	FinalizeDocument(ctx context.Context, documentID string, embedding []float32, text string) error

	// ListDocuments returns summaries, newest first.
	ListDocuments(ctx context.Context) ([]models.DocumentSummary, error)

	// GetDocumentText returns the aggregate embedding and full text, or
	// ErrUnknownDocument.
	GetDocumentText(ctx context.Context, documentID string) ([]float32, string, error)

	// ListAllChunks returns every chunk across all documents, ordered by
	// (document_id, chunk_index).
	ListAllChunks(ctx context.Context) ([]models.Chunk, error)

	// GetChunkOwner returns the owning document's title and original name,
	// or ErrUnknownDocument.
	GetChunkOwner(ctx context.Context, chunkID string) (title, originalName string, err error)

	// DeleteDocument removes the document and cascades to its chunks.
	DeleteDocument(ctx context.Context, documentID string) error
}

// UsageLogger is an append-only record of which chunks were used to answer
// which query. No update or delete operations are exposed.
type UsageLogger interface {
	Record(ctx context.Context, documentID string, chunks []models.UsedChunk, response string, at time.Time) error
	ListByDocument(ctx context.Context, documentID string) ([]models.UsageLogEntry, error)
}

// ObjectStore archives original uploads. Optional: a nil ObjectStore means
// originals are not kept.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	Delete(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}
