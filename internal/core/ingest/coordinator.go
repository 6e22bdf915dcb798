// Package ingest orchestrates the document ingestion pipeline: extraction,
// chunking, bounded-concurrency embedding, incremental persistence, progress
// reporting and the final document-level embedding.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/studyrag/internal/core"
	"github.com/markdave123-py/studyrag/internal/core/chunker"
	"github.com/markdave123-py/studyrag/internal/core/extract"
	"github.com/markdave123-py/studyrag/internal/models"
)

const (
	DefaultChunkSize   = 1500
	DefaultOverlap     = 200
	DefaultConcurrency = 3

	// pipelineTimeout bounds one whole background ingestion run.
	pipelineTimeout = 10 * time.Minute
)

// Config tunes the pipeline.
//
// ChunkSize/Overlap: window parameters handed to the chunker, in runes.
// Concurrency: how many embedding batches may be in flight at once.
type Config struct {
	ChunkSize   int
	Overlap     int
	Concurrency int
}

func (c *Config) applyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Overlap == 0 {
		c.Overlap = DefaultOverlap
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
}

// Coordinator runs ingestion jobs. Ingest returns as soon as the upload is
// validated and the job plus placeholder document exist; the embedding work
// proceeds in the background and is observed through Status.
type Coordinator struct {
	store     core.ChunkStore
	provider  core.EmbeddingProvider
	extractor core.TextExtractor
	tracker   *JobTracker
	cfg       Config
	logger    *slog.Logger
}

func NewCoordinator(store core.ChunkStore, provider core.EmbeddingProvider, extractor core.TextExtractor, cfg Config, logger *slog.Logger) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("chunk store required")
	}
	if provider == nil {
		return nil, fmt.Errorf("embedding provider required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("text extractor required")
	}
	cfg.applyDefaults()
	if cfg.Overlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("%w: overlap %d with chunk size %d", core.ErrInvalidChunking, cfg.Overlap, cfg.ChunkSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:     store,
		provider:  provider,
		extractor: extractor,
		tracker:   NewJobTracker(),
		cfg:       cfg,
		logger:    logger.With("component", "ingest"),
	}, nil
}

// Status returns the current state of an upload job.
func (c *Coordinator) Status(uploadID string) (models.UploadJob, bool) {
	return c.tracker.Get(uploadID)
}

// Evict drops a finished job from the tracker.
func (c *Coordinator) Evict(uploadID string) bool {
	return c.tracker.Evict(uploadID)
}

// Ingest validates the upload, creates the job and the placeholder document,
// then kicks off the pipeline and returns the upload id. Re-ingesting the
// same file always creates a new document; there are no resume semantics.
func (c *Coordinator) Ingest(ctx context.Context, filename string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty upload", core.ErrExtraction)
	}
	if strings.TrimSpace(filename) == "" {
		filename = "untitled"
	}

	title := extract.TitleFromFilename(filename)
	docID, err := c.store.CreateDocument(ctx, title, filename, c.provider.Name())
	if err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}

	uploadID := uuid.NewString()
	c.tracker.Create(uploadID, docID)

	go c.run(uploadID, docID, filename, contentType, data)

	return uploadID, nil
}

// run executes one pipeline on its own context so it outlives the upload
// request. Chunks persisted before a failure stay in the store; the partial
// document is kept, not rolled back.
func (c *Coordinator) run(uploadID, docID, filename, contentType string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), pipelineTimeout)
	defer cancel()

	logger := c.logger.With("upload_id", uploadID, "document_id", docID)

	c.tracker.SetPhase(uploadID, "extracting text", 0)
	units, err := c.extractor.Extract(ctx, data, filename, contentType)
	if err != nil {
		logger.Error("extraction failed", "err", err)
		c.tracker.Fail(uploadID, err.Error())
		return
	}

	fullText := strings.Join(units, "\n\n")
	texts, err := chunker.Split(fullText, c.cfg.ChunkSize, c.cfg.Overlap)
	if err != nil {
		logger.Error("chunking failed", "err", err)
		c.tracker.Fail(uploadID, err.Error())
		return
	}
	if len(texts) == 0 {
		c.tracker.Fail(uploadID, "document produced no chunks")
		return
	}

	c.tracker.SetTotal(uploadID, len(texts))
	c.tracker.SetPhase(uploadID, "embedding chunks", 10)
	logger.Info("chunked document", "units", len(units), "chunks", len(texts))

	// Chunk indexes are fixed here, before dispatch, so batches may persist
	// out of order and ordering is still recoverable by sorting on read.
	batchSize := c.provider.BatchSize()
	type batch struct {
		startIndex int
		texts      []string
	}
	var batches []batch
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, batch{startIndex: start, texts: texts[start:end]})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for _, b := range batches {
		g.Go(func() error {
			// A failed sibling cancels gctx; skip batches not yet started.
			if err := gctx.Err(); err != nil {
				return err
			}
			return c.runBatch(gctx, uploadID, docID, b.startIndex, b.texts)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("ingestion aborted", "err", err)
		c.tracker.Fail(uploadID, err.Error())
		return
	}

	// One aggregate embedding over the full text; the provider truncates to
	// its own limit before sending.
	c.tracker.SetPhase(uploadID, "embedding document", 90)
	docVec, err := c.provider.EmbedText(ctx, fullText)
	if err != nil {
		logger.Error("document embedding failed", "err", err)
		c.tracker.Fail(uploadID, err.Error())
		return
	}
	if err := c.store.FinalizeDocument(ctx, docID, docVec, fullText); err != nil {
		logger.Error("finalize failed", "err", err)
		c.tracker.Fail(uploadID, err.Error())
		return
	}

	c.tracker.Complete(uploadID)
	logger.Info("ingestion complete", "chunks", len(texts))
}

// runBatch embeds one batch and persists it immediately, then bumps progress.
func (c *Coordinator) runBatch(ctx context.Context, uploadID, docID string, startIndex int, texts []string) error {
	vecs, err := c.provider.EmbedTexts(ctx, texts)
	if err != nil {
		return err
	}
	if len(vecs) != len(texts) {
		return fmt.Errorf("embedding count mismatch: got %d want %d", len(vecs), len(texts))
	}

	rows := make([]models.Chunk, len(texts))
	for i := range texts {
		rows[i] = models.Chunk{
			ID:         uuid.NewString(),
			DocumentID: docID,
			ChunkIndex: startIndex + i,
			Text:       texts[i],
			Embedding:  vecs[i],
			Provider:   c.provider.Name(),
		}
	}
	if err := c.store.AppendChunks(ctx, docID, rows); err != nil {
		return fmt.Errorf("append chunks: %w", err)
	}

	c.tracker.AddProcessed(uploadID, len(texts),
		fmt.Sprintf("embedded chunks %d-%d", startIndex, startIndex+len(texts)-1))
	return nil
}
