// Package session implements the Session Store: a bounded, LRU-touched,
// sliding-TTL set of opaque configuration blobs keyed by a 32-hex token,
// persisted atomically to a single file. Grounded on the teacher's
// repository layer for the atomic-write idiom and on the pack's
// hashicorp/golang-lru usage for the bounded touch index.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"subtrans/backend/internal/logger"
)

// ErrNotFound is returned by Update for an unknown token.
var ErrNotFound = errors.New("session: not found")

const (
	// DefaultCapacity is the default bound on concurrently-tracked sessions.
	DefaultCapacity = 1000
	// DefaultMaxAge is the default sliding TTL.
	DefaultMaxAge = 90 * 24 * time.Hour
	// persistedVersion is the schema version written to disk.
	persistedVersion = "1.0"
	filePerm         = 0o600
)

// Session is a single stored configuration record.
type Session struct {
	Token          string
	Config         map[string]any
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// Store is the Session Store: an in-memory LRU index backed by a single
// atomically-written file.
type Store struct {
	mu     sync.Mutex
	lru    *lru.Cache
	path   string
	maxAge time.Duration
	dirty  bool
}

// Open constructs a Store bounded to capacity entries (DefaultCapacity if
// <= 0) with the given sliding TTL (DefaultMaxAge if <= 0), loading any
// existing file at path. A missing or corrupt file is treated as "start
// empty"; entries older than maxAge are dropped on load.
func Open(path string, capacity int, maxAge time.Duration) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	s := &Store{path: path, maxAge: maxAge}
	cache, err := lru.NewWithEvict(capacity, s.evicted)
	if err != nil {
		return nil, err
	}
	s.lru = cache

	s.load()
	return s, nil
}

func (s *Store) evicted(key, value any) {
	logger.Warn("session evicted at capacity", "module", "session", "action", "evict", "resource", "session", "result", "ok", "token", key)
}

// Create generates a random 32-hex token and stores config under it.
func (s *Store) Create(config map[string]any) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}

	now := time.Now()
	sess := &Session{Token: token, Config: config, CreatedAt: now, LastAccessedAt: now}

	s.mu.Lock()
	s.lru.Add(token, sess)
	s.dirty = true
	s.mu.Unlock()

	logger.Info("session created", "module", "session", "action", "create", "resource", "session", "result", "ok", "token", token)
	return token, nil
}

// Get returns the session's config, refreshing its sliding TTL and LRU
// position on hit.
func (s *Store) Get(token string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.lru.Get(token)
	if !ok {
		return nil, false
	}
	sess := v.(*Session)
	sess.LastAccessedAt = time.Now()
	s.dirty = true
	return sess.Config, true
}

// Update replaces the stored config for token, preserving CreatedAt. It
// reports ErrNotFound if the token is unknown.
func (s *Store) Update(token string, newConfig map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.lru.Get(token)
	if !ok {
		return ErrNotFound
	}
	sess := v.(*Session)
	sess.Config = newConfig
	sess.LastAccessedAt = time.Now()
	s.dirty = true
	return nil
}

// Delete removes token, reporting whether it existed.
func (s *Store) Delete(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existed := s.lru.Remove(token)
	if existed {
		s.dirty = true
	}
	return existed
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// persistedSession/persistedFile mirror the on-disk schema from spec.md §6.
type persistedSession struct {
	Config         map[string]any `json:"config"`
	CreatedAt      int64          `json:"createdAt"`
	LastAccessedAt int64          `json:"lastAccessedAt"`
}

type persistedFile struct {
	Version  string                      `json:"version"`
	SavedAt  int64                       `json:"savedAt"`
	Sessions map[string]persistedSession `json:"sessions"`
}

// load reads the persisted file, if any, dropping entries older than
// maxAge. Any read/parse failure is treated as "start empty".
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("session store file unreadable, starting empty", "module", "session", "action", "load", "resource", "store", "result", "failed", "error", err)
		}
		return
	}

	var pf persistedFile
	if err := json.Unmarshal(data, &pf); err != nil {
		logger.Warn("session store file corrupt, starting empty", "module", "session", "action", "load", "resource", "store", "result", "failed", "error", err)
		return
	}

	now := time.Now()
	loaded := 0
	dropped := 0
	for token, ps := range pf.Sessions {
		lastAccessed := time.Unix(ps.LastAccessedAt, 0)
		if now.Sub(lastAccessed) > s.maxAge {
			dropped++
			continue
		}
		sess := &Session{
			Token:          token,
			Config:         ps.Config,
			CreatedAt:      time.Unix(ps.CreatedAt, 0),
			LastAccessedAt: lastAccessed,
		}
		s.lru.Add(token, sess)
		loaded++
	}

	logger.Info("session store loaded", "module", "session", "action", "load", "resource", "store", "result", "ok", "loaded", loaded, "dropped_stale", dropped)
}

// Save serializes the store to path atomically: write to path.tmp, then
// rename over path. It never blocks callers on failure; errors are logged.
func (s *Store) Save() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}

	pf := persistedFile{
		Version:  persistedVersion,
		SavedAt:  time.Now().Unix(),
		Sessions: make(map[string]persistedSession, s.lru.Len()),
	}
	for _, key := range s.lru.Keys() {
		v, ok := s.lru.Peek(key)
		if !ok {
			continue
		}
		sess := v.(*Session)
		pf.Sessions[sess.Token] = persistedSession{
			Config:         sess.Config,
			CreatedAt:      sess.CreatedAt.Unix(),
			LastAccessedAt: sess.LastAccessedAt.Unix(),
		}
	}
	s.dirty = false
	s.mu.Unlock()

	data, err := json.Marshal(pf)
	if err != nil {
		logger.Error("session store marshal failed", "module", "session", "action", "save", "resource", "store", "result", "failed", "error", err)
		return err
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		logger.Error("session store save failed, will retry", "module", "session", "action", "save", "resource", "store", "result", "failed", "error", err)
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return err
	}

	logger.Info("session store saved", "module", "session", "action", "save", "resource", "store", "result", "ok", "count", len(pf.Sessions))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := path + ".tmp"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return err
	}
	if err := os.Chmod(tmp, filePerm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Len reports the number of sessions currently tracked.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}
