package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetMissOnEmpty(t *testing.T) {
	c := New(10)
	_, ok := c.Get(Key("hello", "fr", ""))
	require.False(t, ok)
}

func TestPutThenGet(t *testing.T) {
	c := New(10)
	key := Key("Hello world", "fr", "")
	c.Put(key, "Bonjour le monde")

	v, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, "Bonjour le monde", v)
}

func TestKeyNormalizesCaseAndWhitespace(t *testing.T) {
	a := Key("  Hello  ", "fr", "")
	b := Key("hello", "fr", "")
	require.Equal(t, a, b)
}

func TestKeyDistinguishesPrompt(t *testing.T) {
	a := Key("hello", "fr", "formal tone")
	b := Key("hello", "fr", "casual tone")
	require.NotEqual(t, a, b)
}

func TestKeyDistinguishesLanguage(t *testing.T) {
	a := Key("hello", "fr", "")
	b := Key("hello", "de", "")
	require.NotEqual(t, a, b)
}

func TestDisabledCacheNeverStores(t *testing.T) {
	c := NewDisabled()
	key := Key("hello", "fr", "")
	c.Put(key, "bonjour")

	_, ok := c.Get(key)
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestEvictsOldestTenPercentWhenFull(t *testing.T) {
	c := New(10)
	for i := 0; i < 10; i++ {
		c.Put(Key(string(rune('a'+i)), "fr", ""), "v")
	}
	require.Equal(t, 10, c.Len())

	// Inserting one more entry should trigger eviction of the oldest entry
	// (10% of 10 == 1) before the new entry is added.
	c.Put(Key("overflow", "fr", ""), "v")
	require.Equal(t, 10, c.Len())

	_, ok := c.Get(Key("a", "fr", ""))
	require.False(t, ok, "oldest entry should have been evicted")

	_, ok = c.Get(Key("overflow", "fr", ""))
	require.True(t, ok)
}

func TestPutIsIdempotentForSameKey(t *testing.T) {
	c := New(10)
	key := Key("hello", "fr", "")
	c.Put(key, "v1")
	c.Put(key, "v2")

	require.Equal(t, 1, c.Len())
	v, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, "v2", v)
}
