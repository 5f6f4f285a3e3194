package cache

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Store is a bounded in-memory cache with per-entry TTL, backed by ristretto.
// Alongside ristretto it keeps an index of live keys grouped by end-user so
// pattern and per-user invalidation do not need to enumerate the cache.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	rc         *ristretto.Cache
	defaultTTL time.Duration
	hooks      Hooks

	mu      sync.RWMutex
	entries map[string]*entry
	owners  map[string]map[string]struct{}
}

type Options struct {
	// MaxSize bounds the number of entries.
	MaxSize int
	// DefaultTTL is used when Set is called with ttl <= 0.
	// If DefaultTTL <= 0 such items never expire.
	DefaultTTL time.Duration
	// Hooks receives diagnostic events. Defaults to NopHooks.
	Hooks Hooks
}

var (
	ErrNotFound = errors.New("cache: not found")
	ErrExpired  = errors.New("cache: expired")
)

type entry struct {
	key       string
	owner     string
	value     []byte
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// New creates a Store holding at most opts.MaxSize entries.
func New(opts Options) (*Store, error) {
	if opts.MaxSize <= 0 {
		return nil, errors.New("cache: MaxSize must be positive")
	}
	s := &Store{
		defaultTTL: opts.DefaultTTL,
		hooks:      opts.Hooks,
		entries:    make(map[string]*entry),
		owners:     make(map[string]map[string]struct{}),
	}
	if s.hooks == nil {
		s.hooks = NopHooks{}
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        int64(opts.MaxSize) * 10,
		MaxCost:            int64(opts.MaxSize),
		BufferItems:        64,
		IgnoreInternalCost: true,
		OnEvict:            s.onEvict,
		OnReject:           s.onReject,
	})
	if err != nil {
		return nil, err
	}
	s.rc = rc
	return s, nil
}

// Close stops the background goroutines of the underlying cache.
func (s *Store) Close() {
	if s == nil || s.rc == nil {
		return
	}
	s.rc.Close()
}

// Get returns the cached value if present and not expired.
func (s *Store) Get(key string) ([]byte, error) {
	v, ok := s.rc.Get(key)
	if !ok {
		s.mu.RLock()
		e, indexed := s.entries[key]
		s.mu.RUnlock()
		if indexed && e.expired(time.Now()) {
			s.unindex(e)
			s.hooks.Expired(key)
			return nil, ErrExpired
		}
		s.hooks.Miss(key)
		return nil, ErrNotFound
	}
	e := v.(*entry)
	if e.expired(time.Now()) {
		s.rc.Del(key)
		s.unindex(e)
		s.hooks.Expired(key)
		return nil, ErrExpired
	}
	s.hooks.Hit(key)
	return append([]byte(nil), e.value...), nil
}

// Set stores value with an expiration of now+ttl. The write is visible to
// Get as soon as Set returns.
func (s *Store) Set(key string, value []byte, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	e := &entry{key: key, owner: ownerOf(key), value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	} else {
		ttl = 0
	}

	s.mu.Lock()
	if prev, ok := s.entries[key]; ok {
		s.unindexLocked(prev)
	}
	s.entries[key] = e
	if e.owner != "" {
		keys := s.owners[e.owner]
		if keys == nil {
			keys = make(map[string]struct{})
			s.owners[e.owner] = keys
		}
		keys[key] = struct{}{}
	}
	s.mu.Unlock()

	if !s.rc.SetWithTTL(key, e, 1, ttl) {
		s.unindex(e)
		return false
	}
	// Callbacks run on ristretto's goroutine; never hold s.mu across Wait.
	s.rc.Wait()

	s.mu.RLock()
	admitted := s.entries[key] == e
	s.mu.RUnlock()
	if admitted {
		s.hooks.Stored(key)
	}
	return admitted
}

// Delete removes a key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		s.unindexLocked(e)
	}
	s.mu.Unlock()
	s.rc.Del(key)
}

// InvalidatePattern removes every entry whose key contains pattern.
func (s *Store) InvalidatePattern(pattern string) int {
	s.mu.Lock()
	var keys []string
	for k, e := range s.entries {
		if strings.Contains(k, pattern) {
			keys = append(keys, k)
			s.unindexLocked(e)
		}
	}
	s.mu.Unlock()
	return s.purge(pattern, keys)
}

// InvalidateEndUser removes every entry whose key was generated for endUserID.
func (s *Store) InvalidateEndUser(endUserID string) int {
	if endUserID == "" {
		return 0
	}
	s.mu.Lock()
	owned := s.owners[endUserID]
	keys := make([]string, 0, len(owned))
	for k := range owned {
		keys = append(keys, k)
		if e, ok := s.entries[k]; ok {
			s.unindexLocked(e)
		}
	}
	delete(s.owners, endUserID)
	s.mu.Unlock()
	return s.purge(endUserID+KeySeparator, keys)
}

// Clear empties the cache.
func (s *Store) Clear() {
	s.rc.Clear()
	s.mu.Lock()
	n := len(s.entries)
	s.entries = make(map[string]*entry)
	s.owners = make(map[string]map[string]struct{})
	s.mu.Unlock()
	s.hooks.Invalidated("*", n)
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) purge(pattern string, keys []string) int {
	for _, k := range keys {
		s.rc.Del(k)
	}
	s.hooks.Invalidated(pattern, len(keys))
	return len(keys)
}

func (s *Store) unindex(e *entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unindexLocked(e)
}

// unindexLocked drops e only if it is still the current entry for its key,
// so a late callback for a replaced value leaves the new one alone.
func (s *Store) unindexLocked(e *entry) bool {
	if s.entries[e.key] != e {
		return false
	}
	delete(s.entries, e.key)
	if keys, ok := s.owners[e.owner]; ok {
		delete(keys, e.key)
		if len(keys) == 0 {
			delete(s.owners, e.owner)
		}
	}
	return true
}

func (s *Store) onEvict(item *ristretto.Item) {
	e, ok := item.Value.(*entry)
	if !ok || !s.unindex(e) {
		return
	}
	if e.expired(time.Now()) {
		s.hooks.Expired(e.key)
		return
	}
	s.hooks.Evicted(e.key)
}

func (s *Store) onReject(item *ristretto.Item) {
	if e, ok := item.Value.(*entry); ok {
		s.unindex(e)
	}
}
