package ingest

import (
	"sync"

	"github.com/markdave123-py/studyrag/internal/models"
)

// JobTracker holds the process-lifetime UploadJob entries for ingestion runs.
// Multiple batch completions mutate the same job concurrently: progress only
// ever moves forward, and chunksProcessed is accumulated, never overwritten.
// The last batch to finish wins on the status message.
type JobTracker struct {
	mu   sync.Mutex
	jobs map[string]*models.UploadJob
}

func NewJobTracker() *JobTracker {
	return &JobTracker{jobs: make(map[string]*models.UploadJob)}
}

// Create registers a new job in its initial state.
func (t *JobTracker) Create(uploadID, documentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[uploadID] = &models.UploadJob{
		UploadID:   uploadID,
		DocumentID: documentID,
		Status:     "accepted",
	}
}

// Get returns a snapshot of the job, or false if it does not exist
// (never created, or already evicted).
func (t *JobTracker) Get(uploadID string) (models.UploadJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[uploadID]
	if !ok {
		return models.UploadJob{}, false
	}
	return *job, true
}

// SetPhase updates the status message and moves progress forward to at
// least p. Progress never decreases.
func (t *JobTracker) SetPhase(uploadID, status string, p int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[uploadID]
	if !ok {
		return
	}
	job.Status = status
	if p > job.Progress {
		job.Progress = p
	}
}

// SetTotal records the progress denominator before batches are dispatched.
func (t *JobTracker) SetTotal(uploadID string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[uploadID]; ok {
		job.ChunksTotal = total
	}
}

// AddProcessed accumulates completed chunks from one batch and recomputes
// progress as 10 + 80*processed/total.
func (t *JobTracker) AddProcessed(uploadID string, delta int, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[uploadID]
	if !ok {
		return
	}
	job.ChunksProcessed += delta
	job.Status = status
	if job.ChunksTotal > 0 {
		p := 10 + 80*job.ChunksProcessed/job.ChunksTotal
		if p > job.Progress {
			job.Progress = p
		}
	}
}

// Fail puts the job in its terminal error state.
func (t *JobTracker) Fail(uploadID, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[uploadID]; ok {
		job.Status = "failed"
		job.Error = msg
	}
}

// Complete marks the job finished.
func (t *JobTracker) Complete(uploadID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[uploadID]; ok {
		job.Status = "complete"
		job.Progress = 100
	}
}

// Evict drops a terminal job. Jobs still in flight are kept.
func (t *JobTracker) Evict(uploadID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[uploadID]
	if !ok || !job.Done() {
		return false
	}
	delete(t.jobs, uploadID)
	return true
}
