package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"subtrans/backend/internal/cache"
	"subtrans/backend/internal/provider"
	"subtrans/backend/internal/provider/mockprovider"
	"subtrans/backend/internal/snowflake"
	"subtrans/backend/internal/subtitle"
)

// Translate draws a run id from the snowflake node, which main initializes
// at startup; the tests do the same once for the package.
func init() {
	if err := snowflake.Init(1); err != nil {
		panic(err)
	}
}

func threeEntryDoc() subtitle.Document {
	return subtitle.Document{Entries: []subtitle.Entry{
		{ID: 1, Timecode: "00:00:01,000 --> 00:00:02,000", Text: "one"},
		{ID: 2, Timecode: "00:00:02,000 --> 00:00:03,000", Text: "two"},
		{ID: 3, Timecode: "00:00:03,000 --> 00:00:04,000", Text: "three"},
	}}
}

func smallOpts() RunOptions {
	return RunOptions{TargetLanguage: "French", Streaming: false}
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.DefaultBatchSizeFast = 10
	cfg.DefaultBatchSizeLight = 10
	return cfg
}

func TestTranslateRoundTripPreservesTimecodesAndOrder(t *testing.T) {
	doc := threeEntryDoc()
	mp := mockprovider.New("mock", mockprovider.Response{Text: "1. un\n\n2. deux\n\n3. trois"})

	e := New(mp, nil, cache.New(10), smallConfig())
	out, err := e.Translate(context.Background(), doc, smallOpts(), nil)
	require.NoError(t, err)

	parsed, err := subtitle.Parse([]byte(out))
	require.NoError(t, err)
	require.Len(t, parsed.Entries, 3)
	require.Equal(t, "un", parsed.Entries[0].Text)
	require.Equal(t, "deux", parsed.Entries[1].Text)
	require.Equal(t, "trois", parsed.Entries[2].Text)
	require.Equal(t, "00:00:01,000 --> 00:00:02,000", parsed.Entries[0].Timecode)
	require.Equal(t, "00:00:03,000 --> 00:00:04,000", parsed.Entries[2].Timecode)
}

func TestTranslateUnderproductionFillsGapsWithSourceText(t *testing.T) {
	doc := threeEntryDoc()
	// Entry 2 is missing entirely from the model's response.
	mp := mockprovider.New("mock", mockprovider.Response{Text: "1. un\n\n3. trois"})

	e := New(mp, nil, cache.New(10), smallConfig())
	out, err := e.Translate(context.Background(), doc, smallOpts(), nil)
	require.NoError(t, err)

	parsed, err := subtitle.Parse([]byte(out))
	require.NoError(t, err)
	require.Len(t, parsed.Entries, 3)
	require.Equal(t, "un", parsed.Entries[0].Text)
	require.Equal(t, "two", parsed.Entries[1].Text) // fell back to source text
	require.Equal(t, "trois", parsed.Entries[2].Text)
}

func TestTranslateOverproductionTruncatesAndReindexes(t *testing.T) {
	doc := threeEntryDoc()
	mp := mockprovider.New("mock", mockprovider.Response{Text: "1. un\n\n2. deux\n\n3. trois\n\n4. quatre"})

	e := New(mp, nil, cache.New(10), smallConfig())
	out, err := e.Translate(context.Background(), doc, smallOpts(), nil)
	require.NoError(t, err)

	parsed, err := subtitle.Parse([]byte(out))
	require.NoError(t, err)
	require.Len(t, parsed.Entries, 3)
	require.Equal(t, "trois", parsed.Entries[2].Text)
}

func TestSanitizeStripsEmbeddedTimecodeFromModelOutput(t *testing.T) {
	doc := threeEntryDoc()
	mp := mockprovider.New("mock", mockprovider.Response{
		Text: "1. 00:00:01,000 --> 00:00:02,000\nun\n\n2. deux\n\n3. trois",
	})

	e := New(mp, nil, cache.New(10), smallConfig())
	out, err := e.Translate(context.Background(), doc, smallOpts(), nil)
	require.NoError(t, err)

	parsed, err := subtitle.Parse([]byte(out))
	require.NoError(t, err)
	require.Equal(t, "un", parsed.Entries[0].Text)
}

func TestTranslateRetriesOnceOnProhibitedContentWithDisclaimer(t *testing.T) {
	doc := threeEntryDoc()
	mp := mockprovider.New("mock",
		mockprovider.Response{Err: provider.NewError(provider.ProhibitedContent, "blocked", nil)},
		mockprovider.Response{Text: "1. un\n\n2. deux\n\n3. trois"},
	)
	mp.Streaming = false

	e := New(mp, nil, cache.New(10), smallConfig())
	out, err := e.Translate(context.Background(), doc, smallOpts(), nil)
	require.NoError(t, err)
	require.Equal(t, 2, mp.CallCount())

	last, ok := mp.LastCall()
	require.True(t, ok)
	require.Contains(t, last.Prompt, disclaimerLine)

	parsed, err := subtitle.Parse([]byte(out))
	require.NoError(t, err)
	require.Equal(t, "un", parsed.Entries[0].Text)
}

func TestTranslateFallsBackToSecondaryProviderAfterOverloaded(t *testing.T) {
	doc := threeEntryDoc()
	primary := mockprovider.New("primary", mockprovider.Response{Err: provider.NewError(provider.Overloaded, "busy", nil)})
	primary.Streaming = false
	fallback := mockprovider.New("fallback", mockprovider.Response{Text: "1. un\n\n2. deux\n\n3. trois"})

	e := New(primary, fallback, cache.New(10), smallConfig())
	out, err := e.Translate(context.Background(), doc, smallOpts(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, primary.CallCount())
	require.Equal(t, 1, fallback.CallCount())

	parsed, err := subtitle.Parse([]byte(out))
	require.NoError(t, err)
	require.Equal(t, "un", parsed.Entries[0].Text)
}

func TestTranslateFailsBatchWhenPrimaryAndFallbackBothFail(t *testing.T) {
	doc := threeEntryDoc()
	primary := mockprovider.New("primary", mockprovider.Response{Err: provider.NewError(provider.Overloaded, "busy", nil)})
	primary.Streaming = false
	fallback := mockprovider.New("fallback", mockprovider.Response{Err: provider.NewError(provider.Overloaded, "also busy", nil)})

	e := New(primary, fallback, cache.New(10), smallConfig())
	_, err := e.Translate(context.Background(), doc, smallOpts(), nil)
	require.Error(t, err)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	var multi *provider.MultiProviderError
	require.ErrorAs(t, batchErr.Cause, &multi)
}

func TestTranslateServesRepeatedBatchFromCache(t *testing.T) {
	doc := threeEntryDoc()
	mp := mockprovider.New("mock", mockprovider.Response{Text: "1. un\n\n2. deux\n\n3. trois"})

	c := cache.New(10)
	e := New(mp, nil, c, smallConfig())

	_, err := e.Translate(context.Background(), doc, smallOpts(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, mp.CallCount())

	_, err = e.Translate(context.Background(), doc, smallOpts(), nil)
	require.NoError(t, err)
	// Second run should be served entirely from cache; no new provider call.
	require.Equal(t, 1, mp.CallCount())
}

func TestTranslateEmptyDocumentShortCircuits(t *testing.T) {
	mp := mockprovider.New("mock")
	e := New(mp, nil, cache.New(10), smallConfig())

	out, err := e.Translate(context.Background(), subtitle.Document{}, smallOpts(), nil)
	require.NoError(t, err)
	require.Equal(t, "", out)
	require.Equal(t, 0, mp.CallCount())
}

func TestTranslateStreamingEmitsMonotonicSequence(t *testing.T) {
	doc := threeEntryDoc()
	mp := mockprovider.New("mock", mockprovider.Response{Text: "1. un\n\n2. deux\n\n3. trois"})

	e := New(mp, nil, cache.New(10), smallConfig())
	opts := smallOpts()
	opts.Streaming = true

	var sequences []int
	_, err := e.Translate(context.Background(), doc, opts, func(ev ProgressEvent) error {
		if ev.HasStreamSequence {
			sequences = append(sequences, ev.StreamSequence)
		}
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, sequences)
	for i := 1; i < len(sequences); i++ {
		require.Greater(t, sequences[i], sequences[i-1])
	}
}

func TestTranslatePropagatesOnProgressError(t *testing.T) {
	doc := threeEntryDoc()
	mp := mockprovider.New("mock", mockprovider.Response{Text: "1. un\n\n2. deux\n\n3. trois"})

	e := New(mp, nil, cache.New(10), smallConfig())
	boom := context.Canceled
	_, err := e.Translate(context.Background(), doc, smallOpts(), func(ev ProgressEvent) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestTranslateSingleBatchModeSplitsWhenOverTokenBudget(t *testing.T) {
	doc := threeEntryDoc()
	mp := mockprovider.New("mock",
		mockprovider.Response{Text: "1. un"},
		mockprovider.Response{Text: "1. deux"},
		mockprovider.Response{Text: "1. trois"},
	)
	mp.Streaming = false

	cfg := smallConfig()
	cfg.SingleBatchMaxTokensPerChunk = 1 // force aggressive chunking
	opts := smallOpts()
	opts.SingleBatchMode = true

	e := New(mp, nil, cache.New(10), cfg)
	out, err := e.Translate(context.Background(), doc, opts, nil)
	require.NoError(t, err)

	parsed, err := subtitle.Parse([]byte(out))
	require.NoError(t, err)
	require.Len(t, parsed.Entries, 3)
	require.GreaterOrEqual(t, mp.CallCount(), 3)
}
