package engine

import (
	"regexp"
	"strconv"
	"strings"

	"subtrans/backend/internal/subtitle"
)

// parsedEntry is a single translated unit recovered from a raw model
// response, in the order it appeared in that response.
type parsedEntry struct {
	Index    int
	Text     string
	Timecode string
	HasTime  bool
}

var doubleNewlineSplit = regexp.MustCompile(`\r?\n\r?\n+`)
var numberedPrefix = regexp.MustCompile(`^\s*(\d+)[.)\s:\-]+(.*)$`)

// parseNumberedResponse parses a numbered-mode response, preferring the
// double-newline block parser; if it underproduces relative to expected,
// the single-newline parser is also tried and the larger result wins.
func parseNumberedResponse(raw string, expected int) []parsedEntry {
	double := parseNumberedDoubleNewline(raw)
	if len(double) >= expected {
		return double
	}

	single := parseNumberedSingleNewline(raw)
	if len(single) > len(double) {
		return single
	}
	return double
}

func parseNumberedDoubleNewline(raw string) []parsedEntry {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	blocks := doubleNewlineSplit.Split(normalized, -1)

	var out []parsedEntry
	for _, block := range blocks {
		block = strings.Trim(block, "\n")
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		m := numberedPrefix.FindStringSubmatch(lines[0])
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		textLines := append([]string{m[2]}, lines[1:]...)
		out = append(out, parsedEntry{Index: idx, Text: strings.Join(textLines, "\n")})
	}
	return out
}

func parseNumberedSingleNewline(raw string) []parsedEntry {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(normalized, "\n")

	var out []parsedEntry
	var current *parsedEntry
	var textLines []string

	flush := func() {
		if current != nil {
			current.Text = strings.Join(textLines, "\n")
			out = append(out, *current)
		}
	}

	for _, line := range lines {
		if m := numberedPrefix.FindStringSubmatch(line); m != nil {
			flush()
			idx, err := strconv.Atoi(m[1])
			if err != nil {
				current = nil
				continue
			}
			current = &parsedEntry{Index: idx}
			textLines = []string{m[2]}
			continue
		}
		if current == nil {
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		textLines = append(textLines, line)
	}
	flush()

	return out
}

// parseTimestampResponse reuses the subtitle codec to parse a timestamp-mode
// response, returning entries in document order.
func parseTimestampResponse(raw string) []parsedEntry {
	doc, err := subtitle.Parse([]byte(raw))
	if err != nil {
		return nil
	}
	out := make([]parsedEntry, 0, len(doc.Entries))
	for i, e := range doc.Entries {
		out = append(out, parsedEntry{
			Index:    i + 1,
			Text:     e.Text,
			Timecode: e.Timecode,
			HasTime:  true,
		})
	}
	return out
}

// reconcileResult is the per-entry outcome of matching parsed entries
// against the dispatched batch.
type reconcileResult struct {
	Text     string
	Timecode string
	HasTime  bool
}

// reconcile applies the entry-count reconciliation rules: overproduction
// truncates positionally and reindexes; underproduction fills gaps (keyed
// by the parser's own index) with the original source text. This never
// fails the batch.
func reconcile(b workBatch, parsed []parsedEntry) []reconcileResult {
	expected := b.len()
	out := make([]reconcileResult, expected)

	if len(parsed) > expected {
		parsed = parsed[:expected]
		for i, p := range parsed {
			out[i] = reconcileResult{Text: p.Text, Timecode: p.Timecode, HasTime: p.HasTime}
		}
		return out
	}

	byIndex := make(map[int]parsedEntry, len(parsed))
	for _, p := range parsed {
		byIndex[p.Index] = p
	}

	for i := 0; i < expected; i++ {
		if p, ok := byIndex[i+1]; ok {
			out[i] = reconcileResult{Text: p.Text, Timecode: p.Timecode, HasTime: p.HasTime}
			continue
		}
		out[i] = reconcileResult{Text: b.entries[i].Text}
	}
	return out
}
