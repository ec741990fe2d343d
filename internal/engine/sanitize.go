package engine

import (
	"regexp"
	"strings"
)

// timecodePattern matches a full SRT timecode pair anywhere in text.
var timecodePattern = regexp.MustCompile(`\d{2}:\d{2}:\d{2},\d{3}\s*-->\s*\d{2}:\d{2}:\d{2},\d{3}`)

// bracketedTimestamp matches a bare timestamp wrapped in brackets or
// parens, e.g. "[00:00:01,000]" or "(00:01,000)".
var bracketedTimestamp = regexp.MustCompile(`[\[(]\s*\d{1,2}:\d{2}(:\d{2})?[,.]?\d{0,3}\s*[\])]`)

var multiBlankLines = regexp.MustCompile(`\n{3,}`)

// rtlLanguages is the closed set of right-to-left target languages/codes
// that receive bidi wrapping.
var rtlLanguages = map[string]bool{
	"ar": true, "arabic": true,
	"he": true, "hebrew": true,
	"fa": true, "farsi": true, "persian": true,
	"ur": true, "urdu": true,
	"yi": true, "yiddish": true,
	"ps": true, "pashto": true,
	"sd": true, "sindhi": true,
}

const (
	rle = "‫" // right-to-left embedding
	pdf = "‬" // pop directional formatting
)

var bidiControlChars = "‪‫‬‭‮⁦⁧⁨⁩"

// sanitize applies the text-cleanup pipeline to a single translated
// entry's text: embedded-timecode stripping, line-ending normalization,
// stray-timestamp removal, blank-line collapsing, and RTL wrapping.
func sanitize(text string, targetLanguage string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	text = timecodePattern.ReplaceAllString(text, "")
	text = bracketedTimestamp.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if isStrayTimestampLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	text = strings.Join(kept, "\n")

	text = multiBlankLines.ReplaceAllString(text, "\n\n")
	text = strings.Trim(text, "\n")
	text = strings.TrimSpace(text)

	if isRTLTarget(targetLanguage) {
		text = wrapRTL(text)
	}

	return text
}

func isStrayTimestampLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	return timecodePattern.MatchString(trimmed) && len(strings.TrimSpace(timecodePattern.ReplaceAllString(trimmed, ""))) == 0
}

func isRTLTarget(targetLanguage string) bool {
	return rtlLanguages[strings.ToLower(strings.TrimSpace(targetLanguage))]
}

func wrapRTL(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line == "" || strings.ContainsAny(line, bidiControlChars) {
			continue
		}
		lines[i] = rle + line + pdf
	}
	return strings.Join(lines, "\n")
}
