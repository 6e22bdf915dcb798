package core

import (
	"errors"
	"fmt"
)

var (
	// ErrExtraction indicates the uploaded file could not be parsed into text.
	// Ingestion aborts before any chunk is created.
	ErrExtraction = errors.New("text extraction failed")

	// ErrUnknownDocument indicates a store operation referenced a document id
	// that does not exist. Never retried automatically.
	ErrUnknownDocument = errors.New("unknown document")

	// ErrEmbeddingSpaceMismatch indicates a query embedding was produced by a
	// different provider than the stored chunks it would be scored against.
	// Vectors from different providers are not comparable.
	ErrEmbeddingSpaceMismatch = errors.New("embedding provider mismatch")

	// ErrInvalidChunking indicates chunk size/overlap parameters that would
	// never terminate or produce empty windows.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrNoChunks indicates the store holds no chunks at all, so retrieval
	// has nothing to score.
	ErrNoChunks = errors.New("no chunks in store")
)

// EmbeddingProviderError wraps a failed provider call. The whole batch the
// call belonged to fails with it; the ingestion coordinator decides whether
// to abort or continue.
type EmbeddingProviderError struct {
	Provider string
	Err      error
}

func (e *EmbeddingProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Provider, e.Err)
}

func (e *EmbeddingProviderError) Unwrap() error {
	return e.Err
}
