package credentials

import (
	"crypto/sha256"
	"crypto/subtle"
	"strconv"
	"sync"
)

// entry is a cached TokenPair plus an integrity digest over its fields.
type entry struct {
	pair   TokenPair
	digest [sha256.Size]byte
}

// Store is an in-memory credential cache keyed by the authenticating
// principal's username. Entries carry a SHA-256 digest of their fields;
// a mismatch on read is treated as corruption and the entry is evicted.
// Process-lifetime scoped, never persisted.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewStore creates an empty credential store.
func NewStore() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Put stores a token pair under key, computing the integrity digest.
func (s *Store) Put(key string, pair TokenPair) {
	s.mu.Lock()
	s.entries[key] = entry{pair: pair, digest: digest(pair)}
	s.mu.Unlock()
}

// Get returns the cached token pair for key. A missing entry or a digest
// mismatch both report a cache miss; corrupted entries are evicted.
func (s *Store) Get(key string) (TokenPair, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return TokenPair{}, false
	}

	want := digest(e.pair)
	if subtle.ConstantTimeCompare(want[:], e.digest[:]) != 1 {
		s.Delete(key)
		return TokenPair{}, false
	}
	return e.pair, true
}

// Delete removes a single entry.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Clear removes all entries. Called whenever a refresh fails, so a clean
// re-login happens rather than propagating a revoked credential.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]entry)
	s.mu.Unlock()
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func digest(pair TokenPair) [sha256.Size]byte {
	h := sha256.New()
	h.Write([]byte(pair.AccessToken))
	h.Write([]byte{0})
	h.Write([]byte(pair.RefreshToken))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(pair.ExpiresAt.UnixMilli(), 10)))

	var d [sha256.Size]byte
	copy(d[:], h.Sum(nil))
	return d
}
