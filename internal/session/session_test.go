package session

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateGetRoundTrip(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "sessions.json"), 10, time.Hour)
	require.NoError(t, err)

	token, err := store.Create(map[string]any{"targetLanguage": "French"})
	require.NoError(t, err)
	require.Regexp(t, "^[a-f0-9]{32}$", token)

	cfg, ok := store.Get(token)
	require.True(t, ok)
	require.Equal(t, "French", cfg["targetLanguage"])
}

func TestGetMissingTokenIsMiss(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "sessions.json"), 10, time.Hour)
	require.NoError(t, err)

	_, ok := store.Get("deadbeef00000000000000000000000")
	require.False(t, ok)
}

func TestUpdatePreservesCreatedAt(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "sessions.json"), 10, time.Hour)
	require.NoError(t, err)

	token, err := store.Create(map[string]any{"targetLanguage": "French"})
	require.NoError(t, err)

	store.mu.Lock()
	v, _ := store.lru.Peek(token)
	createdAt := v.(*Session).CreatedAt
	store.mu.Unlock()

	time.Sleep(time.Millisecond)
	require.NoError(t, store.Update(token, map[string]any{"targetLanguage": "German"}))

	cfg, ok := store.Get(token)
	require.True(t, ok)
	require.Equal(t, "German", cfg["targetLanguage"])

	store.mu.Lock()
	v, _ = store.lru.Peek(token)
	require.Equal(t, createdAt, v.(*Session).CreatedAt)
	store.mu.Unlock()
}

func TestUpdateUnknownTokenIsNotFound(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "sessions.json"), 10, time.Hour)
	require.NoError(t, err)

	err = store.Update("deadbeef00000000000000000000000", map[string]any{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteReportsExistence(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "sessions.json"), 10, time.Hour)
	require.NoError(t, err)

	token, err := store.Create(map[string]any{})
	require.NoError(t, err)

	require.True(t, store.Delete(token))
	require.False(t, store.Delete(token))
}

func TestSaveAndReloadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	store, err := Open(path, 10, time.Hour)
	require.NoError(t, err)

	token, err := store.Create(map[string]any{"targetLanguage": "Spanish"})
	require.NoError(t, err)

	require.NoError(t, store.Save())

	reopened, err := Open(path, 10, time.Hour)
	require.NoError(t, err)

	cfg, ok := reopened.Get(token)
	require.True(t, ok)
	require.Equal(t, "Spanish", cfg["targetLanguage"])
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "does-not-exist.json"), 10, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 0, store.Len())
}

func TestOpenCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, writeFileAtomic(path, []byte("not json")))

	store, err := Open(path, 10, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 0, store.Len())
}

func TestOpenDropsEntriesOlderThanMaxAge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	old := time.Now().Add(-2 * time.Hour)
	pf := persistedFile{
		Version: persistedVersion,
		SavedAt: time.Now().Unix(),
		Sessions: map[string]persistedSession{
			"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa": {
				Config:         map[string]any{"targetLanguage": "Stale"},
				CreatedAt:      old.Unix(),
				LastAccessedAt: old.Unix(),
			},
		},
	}
	data, err := json.Marshal(pf)
	require.NoError(t, err)
	require.NoError(t, writeFileAtomic(path, data))

	store, err := Open(path, 10, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 0, store.Len())
}

func TestSaveIsNoopWhenNotDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	store, err := Open(path, 10, time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.Save())
}

func TestCreateRespectsCapacityByEvictingOldest(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "sessions.json"), 2, time.Hour)
	require.NoError(t, err)

	t1, err := store.Create(map[string]any{"n": 1})
	require.NoError(t, err)
	_, err = store.Create(map[string]any{"n": 2})
	require.NoError(t, err)
	_, err = store.Create(map[string]any{"n": 3})
	require.NoError(t, err)

	require.Equal(t, 2, store.Len())
	_, ok := store.Get(t1)
	require.False(t, ok)
}
