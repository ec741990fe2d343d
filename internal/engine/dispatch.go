package engine

import (
	"context"
	"errors"
	"log/slog"

	"subtrans/backend/internal/provider"
	"subtrans/backend/internal/subtitle"
)

// processBatch runs the per-batch pipeline: cache short-circuit, prompt
// construction, dispatch with retry/fallback, response parsing and
// reconciliation. It never fails on under/over-produced responses
// (reconciliation always succeeds); it only returns an error when the
// provider call itself is unrecoverable.
func (e *Engine) processBatch(
	ctx context.Context,
	b workBatch,
	batchNumber, totalBatches int,
	opts RunOptions,
	refOriginal, refTranslated []string,
	streamSeq *int,
	completedBefore, totalEntries int,
	finalized []subtitle.Entry,
	onProgress func(ProgressEvent) error,
) ([]reconcileResult, error) {
	if results, ok := e.allCached(b, opts); ok {
		logBatchEvent(slog.LevelInfo, "batch served from cache", batchNumber)
		return results, nil
	}

	instructions := buildInstructions(b, batchNumber, totalBatches, opts, refOriginal, refTranslated, false)
	body := batchBody(b, opts)

	raw, err := e.dispatchWithPolicy(ctx, b, body, instructions, opts, batchNumber, totalBatches, streamSeq, completedBefore, totalEntries, finalized, onProgress)
	if err != nil {
		return nil, err
	}

	var parsed []parsedEntry
	if opts.PromptStyle == PromptTimestamp {
		parsed = parseTimestampResponse(raw)
	} else {
		parsed = parseNumberedResponse(raw, b.len())
	}

	return reconcile(b, parsed), nil
}

// dispatchWithPolicy implements the per-batch retry/fallback ladder from
// spec.md §4.4.5.
func (e *Engine) dispatchWithPolicy(
	ctx context.Context,
	b workBatch,
	body, instructions string,
	opts RunOptions,
	batchNumber, totalBatches int,
	streamSeq *int,
	completedBefore, totalEntries int,
	finalized []subtitle.Entry,
	onProgress func(ProgressEvent) error,
) (string, error) {
	useStreaming := opts.Streaming && e.primary.Stream != nil

	raw, err := e.attempt(ctx, e.primary, b, body, instructions, opts, useStreaming, batchNumber, totalBatches, streamSeq, completedBefore, totalEntries, finalized, onProgress)
	if err == nil {
		return raw, nil
	}

	var perr *provider.Error
	if errors.As(err, &perr) {
		switch perr.Kind {
		case provider.MaxTokens:
			raw, retryErr := e.attempt(ctx, e.primary, b, body, instructions, opts, false, batchNumber, totalBatches, streamSeq, completedBefore, totalEntries, finalized, onProgress)
			if retryErr == nil {
				return raw, nil
			}
			err = retryErr
		case provider.ProhibitedContent:
			disclaimed := buildInstructions(b, batchNumber, totalBatches, opts, nil, nil, true)
			raw, retryErr := e.attempt(ctx, e.primary, b, body, disclaimed, opts, useStreaming, batchNumber, totalBatches, streamSeq, completedBefore, totalEntries, finalized, onProgress)
			if retryErr == nil {
				return raw, nil
			}
			err = retryErr
		case provider.NoContent:
			raw, retryErr := e.attempt(ctx, e.primary, b, body, instructions, opts, false, batchNumber, totalBatches, streamSeq, completedBefore, totalEntries, finalized, onProgress)
			if retryErr == nil {
				return raw, nil
			}
			err = retryErr
		}
	}

	if e.fallback == nil {
		return "", &BatchError{Kind: kindOf(err), Retryable: retryableOf(err), BatchIndex: batchNumber, Cause: err}
	}

	fallbackRaw, fallbackErr := e.fallback.Provider.Translate(ctx, body, "", opts.TargetLanguage, instructions)
	if fallbackErr == nil {
		logBatchEvent(slog.LevelInfo, "fallback provider succeeded", batchNumber, "provider", e.fallback.Provider.Name())
		return fallbackRaw, nil
	}

	multi := &provider.MultiProviderError{Primary: err, Fallback: fallbackErr}
	return "", &BatchError{Kind: kindOf(err), Retryable: false, BatchIndex: batchNumber, Cause: multi}
}

func (e *Engine) attempt(
	ctx context.Context,
	caps provider.Capabilities,
	b workBatch,
	body, instructions string,
	opts RunOptions,
	streaming bool,
	batchNumber, totalBatches int,
	streamSeq *int,
	completedBefore, totalEntries int,
	finalized []subtitle.Entry,
	onProgress func(ProgressEvent) error,
) (string, error) {
	if streaming && caps.Stream != nil {
		return e.streamingAttempt(ctx, caps, b, body, instructions, opts, batchNumber, totalBatches, streamSeq, completedBefore, totalEntries, finalized, onProgress)
	}
	return caps.Provider.Translate(ctx, body, "", opts.TargetLanguage, instructions)
}

func kindOf(err error) provider.Kind {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return provider.Other
}

func retryableOf(err error) bool {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr.Retryable
	}
	return false
}
