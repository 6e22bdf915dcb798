package models

import (
	"time"
)

// Document represents one uploaded source file and its aggregate embedding.
// A row exists from the moment ingestion starts so chunks can reference it
// before the pipeline finishes; FullText and Embedding are filled in by
// FinalizeDocument once every chunk batch has completed.
type Document struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`                 // file name with extension stripped
	OriginalName string    `db:"original_name" json:"original_name"` // as uploaded
	FullText     string    `db:"full_text" json:"-"`                 // complete extracted text
	Embedding    []float32 `db:"embedding" json:"-"`                 // document-level vector, set at finalize
	Provider     string    `db:"provider" json:"provider"`           // embedding provider that produced the vectors
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Chunk is one overlapping text window belonging to a Document.
// ChunkIndex values for a document are contiguous starting at 0, assigned in
// left-to-right text order at chunk-creation time, before any embedding work
// is dispatched.
type Chunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column
	Provider   string    `db:"provider" json:"provider"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// UploadJob is the process-lifetime progress record for one ingestion run.
// It is never persisted; poll it via the upload status endpoint.
type UploadJob struct {
	UploadID        string `json:"upload_id"`
	DocumentID      string `json:"document_id,omitempty"`
	Status          string `json:"status"`
	Progress        int    `json:"progress"` // 0-100
	Error           string `json:"error,omitempty"`
	ChunksProcessed int    `json:"chunks_processed,omitempty"`
	ChunksTotal     int    `json:"chunks_total,omitempty"`
}

// Done reports whether the job reached a terminal state.
func (j *UploadJob) Done() bool {
	return j.Progress >= 100 || j.Error != ""
}

// UsedChunk is one (index, text) pair recorded in a usage log entry.
type UsedChunk struct {
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// UsageLogEntry is an append-only audit record of which chunks grounded the
// answer to a query. Entries are never mutated or deleted.
type UsageLogEntry struct {
	ID         string      `db:"id" json:"id"`
	DocumentID string      `db:"document_id" json:"document_id"`
	Chunks     []UsedChunk `db:"chunks" json:"chunks"`
	Response   string      `db:"response" json:"response"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}

// DocumentSummary is the listing view of a Document, without the full text
// or embedding payload.
type DocumentSummary struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	OriginalName string    `db:"original_name" json:"original_name"`
	Provider     string    `db:"provider" json:"provider"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
