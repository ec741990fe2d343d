// Package engine implements the Translation Engine: batching, token-budget
// auto-chunking, prompt construction, retry/fallback dispatch, streaming
// aggregation, and response reconciliation described by the core spec.
// Grounded on the teacher's internal/service/ai package for provider
// wiring idioms and on adrianmusante-subtitle-tools/internal/translate for
// the batch/retry/rate-limiter shape, generalized to the Provider Port.
package engine

import (
	"fmt"

	"subtrans/backend/internal/provider"
)

// PromptStyle selects how a batch is rendered for the model and how the
// response is parsed back.
type PromptStyle int

const (
	// PromptNumbered renders "1. text\n\n2. text\n\n..." and expects the
	// same numbered shape back. This is the default.
	PromptNumbered PromptStyle = iota
	// PromptTimestamp renders the batch as a subtitle document and expects
	// a subtitle document back.
	PromptTimestamp
)

// RunOptions mirrors the spec's TranslationRequest.options, constructed
// explicitly at the HTTP boundary from the session's opaque config blob —
// never the raw blob itself (see SPEC_FULL.md §3 and spec.md §9).
type RunOptions struct {
	TargetLanguage     string
	CustomPrompt       string
	SingleBatchMode    bool
	SendTimestampsToAI bool
	EnableBatchContext bool
	ContextSize        int
	Streaming          bool
	PromptStyle        PromptStyle
	Model              string
}

// Config holds the engine's tunable defaults, sourced from
// internal/config and held constant for the process lifetime.
type Config struct {
	// MaxTokensPerBatch is the per-batch ceiling that triggers auto-chunking
	// on the multi-batch path.
	MaxTokensPerBatch int
	// SingleBatchMaxTokensPerChunk is the per-chunk ceiling used by
	// single-batch mode; the soft limit is ~90% of this value.
	SingleBatchMaxTokensPerChunk int
	// DefaultBatchSizeFast/DefaultBatchSizeLight are the default entry
	// counts per batch, chosen by model name.
	DefaultBatchSizeFast   int
	DefaultBatchSizeLight  int
	BatchSizeOverride      int
	CacheEnabled           bool
	EntryCacheSize         int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokensPerBatch:            8000,
		SingleBatchMaxTokensPerChunk: 8000,
		DefaultBatchSizeFast:         250,
		DefaultBatchSizeLight:        200,
		CacheEnabled:                 true,
		EntryCacheSize:               5000,
	}
}

// singleBatchSoftLimitFactor is the tuning constant from spec.md §9,
// preserved verbatim rather than exposed as a knob.
const singleBatchSoftLimitFactor = 0.9

// ProgressEvent is emitted to the caller's onProgress callback as the run
// proceeds.
type ProgressEvent struct {
	TotalEntries     int
	CompletedEntries int
	CurrentBatch     int
	TotalBatches     int
	PartialDocument  string
	Streaming        bool
	// HasStreamSequence reports whether StreamSequence is meaningful; only
	// streaming progress events carry one.
	HasStreamSequence bool
	StreamSequence    int
}

// BatchError is the typed, classified error the engine raises when a
// batch exhausts retry and fallback.
type BatchError struct {
	Kind       provider.Kind
	Retryable  bool
	BatchIndex int
	Cause      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("translation failed at batch %d: %v", e.BatchIndex, e.Cause)
}

func (e *BatchError) Unwrap() error {
	return e.Cause
}
