// Package chunker splits extracted document text into overlapping fixed-size
// windows. Splitting is a pure function of its inputs: the same text and
// parameters always produce the same boundaries.
package chunker

import (
	"fmt"

	"github.com/markdave123-py/studyrag/internal/core"
)

// Split cuts text into windows of size runes, each advancing size-overlap
// runes past the previous one. The final window may be shorter than size.
// Empty windows are dropped. size <= 0, overlap < 0 or overlap >= size is a
// configuration error: the walk would not terminate.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d", core.ErrInvalidChunking, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d with chunk size %d", core.ErrInvalidChunking, overlap, size)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := size - overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if end > start {
			chunks = append(chunks, string(runes[start:end]))
		}
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}
