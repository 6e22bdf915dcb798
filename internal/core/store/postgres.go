// Package store persists documents, chunks and the usage log. The Postgres
// implementation backs the service; the memory implementation backs tests
// and single-process setups.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/studyrag/internal/core"
	"github.com/markdave123-py/studyrag/internal/models"
)

// PostgresStore implements core.ChunkStore and core.UsageLogger over
// Postgres with the pgvector extension.
type PostgresStore struct {
	db *sql.DB
}

var (
	_ core.ChunkStore  = (*PostgresStore)(nil)
	_ core.UsageLogger = (*PostgresStore)(nil)
)

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, title, originalName, provider string) (string, error) {
	id := uuid.NewString()
	const q = `
		INSERT INTO documents (id, title, original_name, full_text, embedding, provider, created_at)
		VALUES ($1, $2, $3, '', NULL, $4, now())
	`
	if _, err := s.db.ExecContext(ctx, q, id, title, originalName, provider); err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

// AppendChunks inserts all chunks in a single transaction. Concurrent calls
// for the same document are safe; each call is its own unit of work.
func (s *PostgresStore) AppendChunks(ctx context.Context, documentID string, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, documentID).Scan(&exists); err != nil {
		_ = tx.Rollback()
		return err
	}
	if !exists {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %s", core.ErrUnknownDocument, documentID)
	}

	const q = `
		INSERT INTO document_chunks (id, document_id, chunk_index, text, embedding, provider, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		id := ch.ID
		if id == "" {
			id = uuid.NewString()
		}
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx, id, documentID, ch.ChunkIndex, ch.Text, vec, ch.Provider); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert chunk %d: %w", ch.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

// FinalizeDocument is last-write-wins on repeated calls.
func (s *PostgresStore) FinalizeDocument(ctx context.Context, documentID string, embedding []float32, text string) error {
	const q = `
		UPDATE documents
		SET full_text = $2, embedding = $3
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, q, documentID, text, pgvector.NewVector(embedding))
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrUnknownDocument, documentID)
	}
	return nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]models.DocumentSummary, error) {
	const q = `
		SELECT id, title, original_name, provider, created_at
		FROM documents
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentSummary
	for rows.Next() {
		var d models.DocumentSummary
		if err := rows.Scan(&d.ID, &d.Title, &d.OriginalName, &d.Provider, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetDocumentText(ctx context.Context, documentID string) ([]float32, string, error) {
	const q = `
		SELECT embedding::text, full_text
		FROM documents
		WHERE id = $1
	`
	var (
		embText sql.NullString
		text    string
	)
	err := s.db.QueryRowContext(ctx, q, documentID).Scan(&embText, &text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("%w: %s", core.ErrUnknownDocument, documentID)
	}
	if err != nil {
		return nil, "", err
	}

	var embedding []float32
	if embText.Valid && embText.String != "" {
		var vec pgvector.Vector
		if err := vec.Scan(embText.String); err != nil {
			return nil, "", fmt.Errorf("parse document embedding: %w", err)
		}
		embedding = vec.Slice()
	}
	return embedding, text, nil
}

func (s *PostgresStore) ListAllChunks(ctx context.Context) ([]models.Chunk, error) {
	const q = `
		SELECT id, document_id, chunk_index, text, embedding, provider, created_at
		FROM document_chunks
		ORDER BY document_id, chunk_index
	`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var (
			ch  models.Chunk
			vec pgvector.Vector
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.ChunkIndex, &ch.Text, &vec, &ch.Provider, &ch.CreatedAt); err != nil {
			return nil, err
		}
		ch.Embedding = vec.Slice()
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetChunkOwner(ctx context.Context, chunkID string) (string, string, error) {
	const q = `
		SELECT d.title, d.original_name
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.id = $1
	`
	var title, originalName string
	err := s.db.QueryRowContext(ctx, q, chunkID).Scan(&title, &originalName)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("%w: chunk %s", core.ErrUnknownDocument, chunkID)
	}
	if err != nil {
		return "", "", err
	}
	return title, originalName, nil
}

// DeleteDocument relies on the ON DELETE CASCADE constraint to remove the
// document's chunks with it.
func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, documentID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrUnknownDocument, documentID)
	}
	return nil
}

// Record appends a usage log entry. The log is append-only; no update or
// delete statements exist for it.
func (s *PostgresStore) Record(ctx context.Context, documentID string, chunks []models.UsedChunk, response string, at time.Time) error {
	payload, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("marshal used chunks: %w", err)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	const q = `
		INSERT INTO usage_log (id, document_id, chunks, response, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = s.db.ExecContext(ctx, q, uuid.NewString(), documentID, payload, response, at)
	return err
}

func (s *PostgresStore) ListByDocument(ctx context.Context, documentID string) ([]models.UsageLogEntry, error) {
	const q = `
		SELECT id, document_id, chunks, response, created_at
		FROM usage_log
		WHERE document_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.UsageLogEntry
	for rows.Next() {
		var (
			e       models.UsageLogEntry
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.DocumentID, &payload, &e.Response, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &e.Chunks); err != nil {
			return nil, fmt.Errorf("unmarshal used chunks: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
