// Package subtitle implements the timed-subtitle wire format the
// translation engine reads and writes: parsing tolerates garbage blocks,
// serialization is byte-exact for timecodes and strips CR from text.
package subtitle

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedInput is returned by Parse when the input cannot be
// interpreted as a subtitle document at all (currently unused by the
// tolerant block scanner below, kept for callers that want a sentinel to
// errors.Is against as the format gains stricter modes).
var ErrMalformedInput = errors.New("subtitle: malformed input")

// Entry is a single timed subtitle block.
type Entry struct {
	ID       int
	Timecode string
	Text     string
}

// Document is an ordered, immutable-to-consumers sequence of entries.
type Document struct {
	Entries []Entry
}

// Len returns the number of entries in the document.
func (d Document) Len() int {
	return len(d.Entries)
}

// blockSplit matches runs of two or more newlines, tolerating CRLF.
var blockSplit = regexp.MustCompile(`\r?\n\r?\n+`)

// Parse splits raw bytes into a Document. Blocks are separated by runs of
// two-or-more newlines; within a block, line 1 must be a positive integer
// id, line 2 is the timecode kept verbatim, and the remaining lines are
// joined with LF to form the entry text. Blocks whose first line is not a
// positive integer are skipped silently. An empty result is a valid
// outcome; it is for the caller to decide whether that is an error.
func Parse(data []byte) (Document, error) {
	normalized := strings.ReplaceAll(string(data), "\r\n", "\n")
	blocks := blockSplit.Split(normalized, -1)

	doc := Document{}
	for _, block := range blocks {
		block = strings.Trim(block, "\n")
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		if len(lines) < 2 {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil || id <= 0 {
			continue
		}

		timecode := lines[1]
		text := ""
		if len(lines) > 2 {
			text = strings.Join(lines[2:], "\n")
		}

		doc.Entries = append(doc.Entries, Entry{
			ID:       id,
			Timecode: timecode,
			Text:     text,
		})
	}

	return doc, nil
}

// Serialize renders a Document back to the wire format: each entry as
// "id\ntimecode\ntext", entries separated by a blank line, with a
// trailing newline. All CR characters in entry text are stripped first.
func Serialize(doc Document) string {
	var b strings.Builder
	for i, e := range doc.Entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strconv.Itoa(e.ID))
		b.WriteByte('\n')
		b.WriteString(e.Timecode)
		b.WriteByte('\n')
		b.WriteString(stripCR(e.Text))
	}
	if len(doc.Entries) > 0 {
		b.WriteByte('\n')
	}
	return b.String()
}

func stripCR(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	return strings.ReplaceAll(s, "\r", "")
}
