package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"subtrans/backend/internal/cache"
	"subtrans/backend/internal/logger"
	"subtrans/backend/internal/provider"
	"subtrans/backend/internal/snowflake"
	"subtrans/backend/internal/subtitle"
)

// interBatchDelay is the pacing pause between dispatches, per spec.md §5.
const interBatchDelay = time.Second

// defaultContextSize is used when RunOptions.ContextSize is unset.
const defaultContextSize = 2

// Engine transforms a SubtitleDocument into a translated SubtitleDocument
// by delegating to a Provider Port, preserving structure and emitting
// progress. Each call to Translate is a self-contained scope; the Engine
// holds no long-lived state beyond its configured options.
type Engine struct {
	primary  provider.Capabilities
	fallback *provider.Capabilities
	cache    *cache.Cache
	cfg      Config
	limiter  *rate.Limiter
}

// New constructs an Engine. fallback may be nil. cacheStore may be nil, in
// which case caching is skipped entirely regardless of cfg.CacheEnabled.
func New(primary provider.Translator, fallback provider.Translator, cacheStore *cache.Cache, cfg Config) *Engine {
	e := &Engine{
		primary: provider.Discover(primary),
		cache:   cacheStore,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(interBatchDelay), 1),
	}
	if fallback != nil {
		caps := provider.Discover(fallback)
		e.fallback = &caps
	}
	return e
}

// Translate runs a full translation pass over doc and returns the
// serialized output document.
func (e *Engine) Translate(ctx context.Context, doc subtitle.Document, opts RunOptions, onProgress func(ProgressEvent) error) (string, error) {
	runID := snowflake.NextID()
	totalEntries := len(doc.Entries)

	logger.Info("translation run started",
		"module", "engine", "action", "translate", "resource", "run", "result", "ok",
		"run_id", runID, "entries", totalEntries, "target_language", opts.TargetLanguage,
		"single_batch_mode", opts.SingleBatchMode, "streaming", opts.Streaming)

	if totalEntries == 0 {
		return subtitle.Serialize(doc), nil
	}

	queue, err := e.initialPartition(doc, opts)
	if err != nil {
		return "", err
	}

	finalized := make([]subtitle.Entry, totalEntries)
	completedEntries := 0
	processedCount := 0
	streamSeq := 0

	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]

		tokens := e.estimateBatchTokens(b, opts)
		if tokens > e.cfg.MaxTokensPerBatch && b.len() > 1 {
			first, second := splitInHalf(b)
			queue = append([]workBatch{first, second}, queue...)
			continue
		}

		batchNumber := processedCount + 1
		totalBatches := processedCount + 1 + len(queue)

		refOriginal, refTranslated := e.buildContext(doc, finalized, b, opts)

		results, err := e.processBatch(ctx, b, batchNumber, totalBatches, opts, refOriginal, refTranslated, &streamSeq, completedEntries, totalEntries, finalized, onProgress)
		if err != nil {
			var batchErr *BatchError
			if errors.As(err, &batchErr) {
				return "", batchErr
			}
			return "", &BatchError{Kind: provider.Other, BatchIndex: batchNumber, Cause: err}
		}

		for i, res := range results {
			global := b.startIndex + i
			timecode := doc.Entries[global].Timecode
			if opts.SendTimestampsToAI && res.HasTime && res.Timecode != "" {
				timecode = res.Timecode
			}
			sanitized := sanitize(res.Text, opts.TargetLanguage)
			finalized[global] = subtitle.Entry{
				ID:       doc.Entries[global].ID,
				Timecode: timecode,
				Text:     sanitized,
			}
			e.cachePut(doc.Entries[global].Text, opts, sanitized)
		}

		completedEntries += b.len()
		processedCount++

		if onProgress != nil {
			ev := ProgressEvent{
				TotalEntries:     totalEntries,
				CompletedEntries: completedEntries,
				CurrentBatch:     batchNumber,
				TotalBatches:     totalBatches,
				PartialDocument:  subtitle.Serialize(subtitle.Document{Entries: finalized[:completedEntries]}),
				Streaming:        false,
			}
			if err := onProgress(ev); err != nil {
				return "", err
			}
		}

		if len(queue) > 0 {
			if err := e.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
	}

	logger.Info("translation run completed",
		"module", "engine", "action", "translate", "resource", "run", "result", "ok",
		"run_id", runID, "entries", totalEntries, "batches", processedCount)

	return subtitle.Serialize(subtitle.Document{Entries: finalized}), nil
}

func (e *Engine) initialPartition(doc subtitle.Document, opts RunOptions) ([]workBatch, error) {
	if !opts.SingleBatchMode {
		size := defaultBatchSize(e.cfg, opts.Model)
		return partitionByCount(doc, size), nil
	}

	whole := workBatch{startIndex: 0, entries: doc.Entries, outerIndex: 0}
	tokens := e.estimateBatchTokens(whole, opts)
	softLimit := int(float64(e.cfg.SingleBatchMaxTokensPerChunk) * singleBatchSoftLimitFactor)
	if softLimit <= 0 {
		softLimit = 1
	}
	if tokens <= softLimit {
		return []workBatch{whole}, nil
	}

	chunks := (tokens + softLimit - 1) / softLimit
	if chunks < 1 {
		chunks = 1
	}
	if chunks > len(doc.Entries) {
		chunks = len(doc.Entries)
	}
	return partitionIntoChunks(doc, chunks), nil
}

func (e *Engine) estimateBatchTokens(b workBatch, opts RunOptions) int {
	body := buildNumberedBody(b)
	if opts.PromptStyle == PromptTimestamp {
		body = buildTimestampBody(b)
	}

	if e.primary.Tokens != nil {
		if n, ok := e.primary.Tokens.CountTokensForTranslation(body, opts.TargetLanguage, opts.CustomPrompt); ok {
			return n
		}
	}
	if e.primary.PromptBuilder != nil {
		if up, err := e.primary.PromptBuilder.BuildUserPrompt(body, opts.TargetLanguage, opts.CustomPrompt); err == nil {
			return provider.EstimateTokens(up.UserPrompt)
		}
	}
	return provider.EstimateTokens(body)
}

// buildContext resolves the batch-context reference section: the last
// ContextSize original entries preceding the batch and the last
// ContextSize translated entries produced so far. Only applies to batches
// from the initial partition (outerIndex >= 0), never to sub-chunks
// produced by token-budget auto-chunking.
func (e *Engine) buildContext(doc subtitle.Document, finalized []subtitle.Entry, b workBatch, opts RunOptions) ([]string, []string) {
	if !opts.EnableBatchContext || b.outerIndex <= 0 {
		return nil, nil
	}
	size := opts.ContextSize
	if size <= 0 {
		size = defaultContextSize
	}

	start := b.startIndex - size
	if start < 0 {
		start = 0
	}

	var original []string
	for _, e := range doc.Entries[start:b.startIndex] {
		original = append(original, e.Text)
	}

	var translated []string
	for i := start; i < b.startIndex; i++ {
		translated = append(translated, finalized[i].Text)
	}

	return original, translated
}

func (e *Engine) cachePut(sourceText string, opts RunOptions, translated string) {
	if e.cache == nil || !e.cfg.CacheEnabled {
		return
	}
	key := cache.Key(sourceText, opts.TargetLanguage, opts.CustomPrompt)
	e.cache.Put(key, translated)
}

func (e *Engine) cacheGet(sourceText string, opts RunOptions) (string, bool) {
	if e.cache == nil || !e.cfg.CacheEnabled {
		return "", false
	}
	key := cache.Key(sourceText, opts.TargetLanguage, opts.CustomPrompt)
	return e.cache.Get(key)
}

// allCached reports whether every entry in b already has a cached
// translation, and if so returns the cached texts in batch order.
func (e *Engine) allCached(b workBatch, opts RunOptions) ([]reconcileResult, bool) {
	results := make([]reconcileResult, b.len())
	for i, entry := range b.entries {
		text, ok := e.cacheGet(entry.Text, opts)
		if !ok {
			return nil, false
		}
		results[i] = reconcileResult{Text: text}
	}
	return results, true
}

func logBatchEvent(level slog.Level, msg string, batchIndex int, attrs ...any) {
	base := []any{"module", "engine", "action", "dispatch", "resource", "batch", "batch_index", batchIndex}
	base = append(base, attrs...)
	switch level {
	case slog.LevelWarn:
		logger.Warn(msg, base...)
	case slog.LevelError:
		logger.Error(msg, base...)
	default:
		logger.Info(msg, base...)
	}
}
