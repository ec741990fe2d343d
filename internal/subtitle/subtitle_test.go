package subtitle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const threeEntryDoc = "1\n00:00:01,000 --> 00:00:02,000\nHello.\n\n2\n00:00:02,500 --> 00:00:03,500\nHow are you?\n\n3\n00:00:04,000 --> 00:00:05,000\nGoodbye.\n"

func TestParseThreeEntries(t *testing.T) {
	doc, err := Parse([]byte(threeEntryDoc))
	require.NoError(t, err)
	require.Len(t, doc.Entries, 3)

	require.Equal(t, 1, doc.Entries[0].ID)
	require.Equal(t, "00:00:01,000 --> 00:00:02,000", doc.Entries[0].Timecode)
	require.Equal(t, "Hello.", doc.Entries[0].Text)

	require.Equal(t, 2, doc.Entries[1].ID)
	require.Equal(t, "How are you?", doc.Entries[1].Text)

	require.Equal(t, 3, doc.Entries[2].ID)
	require.Equal(t, "Goodbye.", doc.Entries[2].Text)
}

func TestParseToleratesCRLF(t *testing.T) {
	crlf := "1\r\n00:00:01,000 --> 00:00:02,000\r\nHello.\r\n\r\n2\r\n00:00:02,500 --> 00:00:03,500\r\nBye.\r\n"
	doc, err := Parse([]byte(crlf))
	require.NoError(t, err)
	require.Len(t, doc.Entries, 2)
	require.Equal(t, "Hello.", doc.Entries[0].Text)
}

func TestParseSkipsGarbageBlocks(t *testing.T) {
	input := "not a number\nsome junk\n\n1\n00:00:01,000 --> 00:00:02,000\nReal entry.\n"
	doc, err := Parse([]byte(input))
	require.NoError(t, err)
	require.Len(t, doc.Entries, 1)
	require.Equal(t, "Real entry.", doc.Entries[0].Text)
}

func TestParseEmptyIsValid(t *testing.T) {
	doc, err := Parse([]byte(""))
	require.NoError(t, err)
	require.Empty(t, doc.Entries)
}

func TestParseMultilineText(t *testing.T) {
	input := "1\n00:00:01,000 --> 00:00:02,000\nLine one\nLine two\n"
	doc, err := Parse([]byte(input))
	require.NoError(t, err)
	require.Equal(t, "Line one\nLine two", doc.Entries[0].Text)
}

func TestSerializeStripsCR(t *testing.T) {
	doc := Document{Entries: []Entry{
		{ID: 1, Timecode: "00:00:01,000 --> 00:00:02,000", Text: "hi\r\nthere"},
	}}
	out := Serialize(doc)
	require.NotContains(t, out, "\r")
	require.Equal(t, "1\n00:00:01,000 --> 00:00:02,000\nhi\nthere\n", out)
}

func TestRoundTrip(t *testing.T) {
	doc, err := Parse([]byte(threeEntryDoc))
	require.NoError(t, err)

	serialized := Serialize(doc)
	reparsed, err := Parse([]byte(serialized))
	require.NoError(t, err)

	require.Equal(t, doc, reparsed)
}

func TestSerializeEmptyDocument(t *testing.T) {
	out := Serialize(Document{})
	require.Equal(t, "", out)
}
