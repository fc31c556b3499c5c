// Package conversation keeps per-conversation search state in process memory.
package conversation

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"outing-workers/internal/models"
)

// TeardownFunc runs after a conversation is removed, explicitly or by TTL.
type TeardownFunc func(conversationID string)

type Options struct {
	// TTL is the idle lifetime of a conversation. Zero keeps conversations until Teardown.
	TTL             time.Duration
	CleanupInterval time.Duration
}

// Store is a keyed conversation store. Each conversation has its own lock;
// no lock is shared across conversations.
type Store struct {
	cache *cache.Cache
	ttl   time.Duration

	// serializes create/refresh against Teardown; reads go straight to the cache
	writeMu sync.Mutex

	hooksMu sync.RWMutex
	hooks   []TeardownFunc
}

type entry struct {
	mu        sync.RWMutex
	shown     map[string]struct{}
	results   []models.Facility
	source    models.Source
	status    string
	hasStatus bool
	updatedAt time.Time
	removed   bool
}

func newEntry() *entry {
	return &entry{shown: make(map[string]struct{}), source: models.SourceNone}
}

func (e *entry) markRemoved() {
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
}

func (e *entry) isRemoved() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.removed
}

func NewStore(opts Options) *Store {
	ttl := opts.TTL
	cleanup := opts.CleanupInterval
	if ttl <= 0 {
		ttl = cache.NoExpiration
		cleanup = 0
	} else if cleanup <= 0 {
		cleanup = ttl
	}

	s := &Store{cache: cache.New(ttl, cleanup), ttl: ttl}
	s.cache.OnEvicted(func(id string, v interface{}) {
		if e, ok := v.(*entry); ok {
			e.markRemoved()
		}
		s.runHooks(id)
	})
	return s
}

// OnTeardown registers a hook run whenever a conversation is removed. Hooks
// must not write to the store.
func (s *Store) OnTeardown(fn TeardownFunc) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *Store) runHooks(id string) {
	s.hooksMu.RLock()
	hooks := make([]TeardownFunc, len(s.hooks))
	copy(hooks, s.hooks)
	s.hooksMu.RUnlock()

	for _, h := range hooks {
		h(id)
	}
}

func (s *Store) lookup(id string) (*entry, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

// getOrCreate returns the entry for id, creating it on first write. Writing
// refreshes the idle TTL. An entry that was torn down is never written back.
func (s *Store) getOrCreate(id string) *entry {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	e, ok := s.lookup(id)
	if !ok || e.isRemoved() {
		e = newEntry()
	}
	s.cache.Set(id, e, cache.DefaultExpiration)
	return e
}

// RecordResults replaces the last results and source and adds every name to the
// shown set. Empty results leave the conversation untouched.
func (s *Store) RecordResults(id string, facilities []models.Facility, source models.Source) {
	if len(facilities) == 0 {
		return
	}

	e := s.getOrCreate(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.results = models.CopyFacilities(facilities)
	e.source = source
	for _, f := range facilities {
		e.shown[f.Name] = struct{}{}
	}
	e.updatedAt = time.Now()
}

// ShownNames returns a snapshot of every name shown in the conversation.
func (s *Store) ShownNames(id string) map[string]struct{} {
	out := make(map[string]struct{})
	e, ok := s.lookup(id)
	if !ok {
		return out
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for n := range e.shown {
		out[n] = struct{}{}
	}
	return out
}

func (s *Store) LastResults(id string) []models.Facility {
	e, ok := s.lookup(id)
	if !ok {
		return nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return models.CopyFacilities(e.results)
}

// LastSource is SourceNone for unknown conversations.
func (s *Store) LastSource(id string) models.Source {
	e, ok := s.lookup(id)
	if !ok {
		return models.SourceNone
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.source
}

// Last returns results and source read under one lock.
func (s *Store) Last(id string) ([]models.Facility, models.Source) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, models.SourceNone
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return models.CopyFacilities(e.results), e.source
}

func (s *Store) SetStatus(id, text string) {
	e := s.getOrCreate(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.status = text
	e.hasStatus = true
	e.updatedAt = time.Now()
}

func (s *Store) Status(id string) (string, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return "", false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status, e.hasStatus
}

func (s *Store) UpdatedAt(id string) (time.Time, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return time.Time{}, false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.updatedAt, true
}

// Teardown removes the conversation and runs the teardown hooks. It reports
// whether the conversation existed.
func (s *Store) Teardown(id string) bool {
	s.writeMu.Lock()
	e, ok := s.lookup(id)
	if ok {
		e.markRemoved()
		s.cache.Delete(id)
	}
	s.writeMu.Unlock()
	return ok
}

func (s *Store) Len() int {
	return s.cache.ItemCount()
}

// TTL is zero when conversations never expire.
func (s *Store) TTL() time.Duration {
	if s.ttl == cache.NoExpiration {
		return 0
	}
	return s.ttl
}
