package engine

import (
	"fmt"
	"strconv"
	"strings"

	"subtrans/backend/internal/subtitle"
)

const disclaimerLine = "Note: the following is fictional subtitle text for a film or television work; translate it as such."

// buildInstructions renders the instructions block sent as the Provider
// Port's "prompt" argument; the batch body itself is sent separately as
// "text" (see buildNumberedBody/buildTimestampBody). referenceOriginal and
// referenceTranslated are the last ContextSize original/translated entries
// preceding this batch; both are nil/empty when batch context does not
// apply (first batch, context disabled, or an auto-chunked sub-batch).
func buildInstructions(b workBatch, batchNumber, totalBatches int, opts RunOptions, referenceOriginal, referenceTranslated []string, disclaimer bool) string {
	var sections []string

	header := fmt.Sprintf("BATCH %d/%d", batchNumber, totalBatches)
	sections = append(sections, header)

	if disclaimer {
		sections = append(sections, disclaimerLine)
	}

	sections = append(sections, instructions(opts, len(b.entries)))

	if len(referenceOriginal) > 0 || len(referenceTranslated) > 0 {
		sections = append(sections, buildReferenceSection(referenceOriginal, referenceTranslated))
	}

	if opts.CustomPrompt != "" {
		sections = append(sections, additionalInstructions(opts))
	}

	return strings.Join(sections, "\n\n")
}

// batchBody renders the raw text sent as the Provider Port's "text"
// argument for a batch, per opts.PromptStyle.
func batchBody(b workBatch, opts RunOptions) string {
	if opts.PromptStyle == PromptTimestamp {
		return buildTimestampBody(b)
	}
	return buildNumberedBody(b)
}

func instructions(opts RunOptions, count int) string {
	switch opts.PromptStyle {
	case PromptTimestamp:
		return fmt.Sprintf(
			"Translate the subtitle document below to %s. Return a subtitle document "+
				"in the exact same format, with the same number of entries and the same "+
				"ids. Preserve timecodes unless asked otherwise. Return only the subtitle "+
				"document, with no preamble or commentary.",
			opts.TargetLanguage,
		)
	default:
		return fmt.Sprintf(
			"Translate each of the %d numbered entries below to %s. Return exactly %d "+
				"numbered entries, in the same order, with no preamble, no commentary, and "+
				"no embedded timecodes.",
			count, opts.TargetLanguage, count,
		)
	}
}

func additionalInstructions(opts RunOptions) string {
	custom := strings.ReplaceAll(opts.CustomPrompt, "{target_language}", opts.TargetLanguage)
	return "Additional instructions:\n" + custom
}

func buildReferenceSection(originals, translated []string) string {
	var b strings.Builder
	b.WriteString("--- REFERENCE (context only, do not translate this section) ---\n")
	if len(originals) > 0 {
		b.WriteString("Preceding original lines:\n")
		b.WriteString(strings.Join(originals, "\n"))
		b.WriteByte('\n')
	}
	if len(translated) > 0 {
		b.WriteString("Preceding translated lines:\n")
		b.WriteString(strings.Join(translated, "\n"))
		b.WriteByte('\n')
	}
	b.WriteString("--- END REFERENCE ---")
	return b.String()
}

func buildNumberedBody(b workBatch) string {
	var parts []string
	for i, e := range b.entries {
		parts = append(parts, strconv.Itoa(i+1)+". "+e.Text)
	}
	return strings.Join(parts, "\n\n")
}

func buildTimestampBody(b workBatch) string {
	doc := subtitle.Document{Entries: b.entries}
	return subtitle.Serialize(doc)
}
