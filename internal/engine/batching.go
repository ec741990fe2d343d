package engine

import (
	"strings"

	"subtrans/backend/internal/subtitle"
)

// workBatch is a contiguous slice of entries dispatched in one provider
// call. outerIndex identifies which batch of the initial partition this
// came from, for batch-context purposes; a negative outerIndex marks a
// sub-chunk produced by token-budget auto-chunking, which never carries
// context (spec.md §4.4.4).
type workBatch struct {
	startIndex int
	entries    []subtitle.Entry
	outerIndex int
}

func (b workBatch) len() int { return len(b.entries) }

// lightModelMarkers identifies "lighter" model variants that default to a
// smaller batch size; anything else uses the fast-variant default.
var lightModelMarkers = []string{"mini", "flash", "lite", "haiku", "nano"}

func isLightModel(model string) bool {
	lower := strings.ToLower(model)
	for _, marker := range lightModelMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// defaultBatchSize derives the default entry-count batch size from the
// target model name, overridable by configuration.
func defaultBatchSize(cfg Config, model string) int {
	if cfg.BatchSizeOverride > 0 {
		return cfg.BatchSizeOverride
	}
	if isLightModel(model) {
		return cfg.DefaultBatchSizeLight
	}
	return cfg.DefaultBatchSizeFast
}

// partitionByCount splits doc into contiguous batches of at most size
// entries each, tagging each with its position in the initial partition.
func partitionByCount(doc subtitle.Document, size int) []workBatch {
	if size <= 0 {
		size = len(doc.Entries)
	}
	var batches []workBatch
	for start := 0; start < len(doc.Entries); start += size {
		end := start + size
		if end > len(doc.Entries) {
			end = len(doc.Entries)
		}
		batches = append(batches, workBatch{
			startIndex: start,
			entries:    doc.Entries[start:end],
			outerIndex: len(batches),
		})
	}
	return batches
}

// partitionIntoChunks splits the whole document into `chunks` contiguous,
// near-equal pieces for single-batch-mode token splitting.
func partitionIntoChunks(doc subtitle.Document, chunks int) []workBatch {
	total := len(doc.Entries)
	if chunks < 1 {
		chunks = 1
	}
	if chunks > total {
		chunks = total
	}
	if chunks <= 1 {
		return []workBatch{{startIndex: 0, entries: doc.Entries, outerIndex: 0}}
	}

	base := total / chunks
	remainder := total % chunks

	var batches []workBatch
	start := 0
	for i := 0; i < chunks; i++ {
		size := base
		if i < remainder {
			size++
		}
		if size == 0 {
			continue
		}
		end := start + size
		batches = append(batches, workBatch{
			startIndex: start,
			entries:    doc.Entries[start:end],
			outerIndex: i,
		})
		start = end
	}
	return batches
}

// splitInHalf divides a batch into two contiguous sub-chunks that carry no
// batch context, preserving document order. Used by the iterative
// token-budget auto-chunking worklist (spec.md §9: iterative, not
// recursive).
func splitInHalf(b workBatch) (workBatch, workBatch) {
	mid := b.len() / 2
	if mid < 1 {
		mid = 1
	}
	first := workBatch{
		startIndex: b.startIndex,
		entries:    b.entries[:mid],
		outerIndex: -1,
	}
	second := workBatch{
		startIndex: b.startIndex + mid,
		entries:    b.entries[mid:],
		outerIndex: -1,
	}
	return first, second
}
