package engine

import (
	"context"
	"strings"

	"subtrans/backend/internal/provider"
	"subtrans/backend/internal/subtitle"
)

// streamingAttempt dispatches one streaming provider call, parsing the
// accumulated partial text after every chunk and emitting a ProgressEvent
// each time at least one new complete entry becomes available. streamSeq
// is the run-wide monotonic counter shared across all batches.
func (e *Engine) streamingAttempt(
	ctx context.Context,
	caps provider.Capabilities,
	b workBatch,
	body, instructions string,
	opts RunOptions,
	batchNumber, totalBatches int,
	streamSeq *int,
	completedBefore, totalEntries int,
	finalized []subtitle.Entry,
	onProgress func(ProgressEvent) error,
) (string, error) {
	var accumulated strings.Builder
	lastEmittedCount := 0
	var callbackErr error

	onPartial := func(chunk string) {
		if callbackErr != nil {
			return
		}
		accumulated.WriteString(chunk)
		if onProgress == nil {
			return
		}

		var parsed []parsedEntry
		if opts.PromptStyle == PromptTimestamp {
			parsed = parseTimestampResponse(accumulated.String())
		} else {
			parsed = parseNumberedResponse(accumulated.String(), b.len())
		}
		if len(parsed) <= lastEmittedCount {
			return
		}
		lastEmittedCount = len(parsed)

		partialEntries := make([]subtitle.Entry, 0, completedBefore+len(parsed))
		partialEntries = append(partialEntries, finalized[:completedBefore]...)
		for _, p := range parsed {
			localIdx := p.Index - 1
			if localIdx < 0 || localIdx >= b.len() {
				continue
			}
			timecode := b.entries[localIdx].Timecode
			partialEntries = append(partialEntries, subtitle.Entry{
				Timecode: timecode,
				Text:     sanitize(p.Text, opts.TargetLanguage),
			})
		}
		for i := range partialEntries {
			partialEntries[i].ID = i + 1
		}

		*streamSeq++
		ev := ProgressEvent{
			TotalEntries:      totalEntries,
			CompletedEntries:  completedBefore + len(parsed),
			CurrentBatch:      batchNumber,
			TotalBatches:      totalBatches,
			PartialDocument:   subtitle.Serialize(subtitle.Document{Entries: partialEntries}),
			Streaming:         true,
			HasStreamSequence: true,
			StreamSequence:    *streamSeq,
		}
		if err := onProgress(ev); err != nil {
			callbackErr = err
		}
	}

	raw, err := caps.Stream.StreamTranslate(ctx, body, "", opts.TargetLanguage, instructions, onPartial)
	if callbackErr != nil {
		return "", callbackErr
	}
	if err != nil {
		return "", err
	}
	return raw, nil
}
