package playback

import (
	"sync"
	"sync/atomic"
)

// Store is the process-wide source of truth for the current playback session.
// Writes replace the whole session atomically (copy-on-write snapshot) so
// readers always see a consistent view without blocking. Subscribers are
// notified synchronously on every Set: the commit happens-before anything the
// caller does afterwards, such as navigating the UI to the player.
type Store struct {
	current atomic.Pointer[Session]

	mu   sync.RWMutex
	subs []func(Session)
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&Session{Source: SourceInfo{Subtitle: SubtitleInfo{TrackIndex: NoSubtitleTrack}}})
	return s
}

// Get returns the current session snapshot, or the zero session when nothing
// has played yet.
func (s *Store) Get() Session {
	return *s.current.Load()
}

// Set atomically replaces the session and notifies all subscribers before
// returning.
func (s *Store) Set(session Session) {
	snapshot := session
	s.current.Store(&snapshot)

	s.mu.RLock()
	subs := s.subs
	s.mu.RUnlock()
	for _, fn := range subs {
		fn(snapshot)
	}
}

// Update applies fn to a copy of the current session and commits the result.
// This is the read-modify-replace path for partial updates such as subtitle
// changes; field-by-field mutation of the live session is never exposed.
func (s *Store) Update(fn func(*Session)) Session {
	session := s.Get()
	fn(&session)
	s.Set(session)
	return session
}

// Subscribe registers fn to be called synchronously on every Set.
func (s *Store) Subscribe(fn func(Session)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// LoadingStore holds the single "playback data loading" boolean, owned by the
// resolver's request lifecycle: true at request start, false at request end
// regardless of outcome.
type LoadingStore struct {
	loading atomic.Bool

	mu   sync.RWMutex
	subs []func(bool)
}

// NewLoadingStore creates a loading indicator store.
func NewLoadingStore() *LoadingStore {
	return &LoadingStore{}
}

// Get reports whether a resolution is in flight.
func (l *LoadingStore) Get() bool {
	return l.loading.Load()
}

// Set updates the indicator and notifies subscribers.
func (l *LoadingStore) Set(loading bool) {
	l.loading.Store(loading)

	l.mu.RLock()
	subs := l.subs
	l.mu.RUnlock()
	for _, fn := range subs {
		fn(loading)
	}
}

// Subscribe registers fn to be called synchronously on every Set.
func (l *LoadingStore) Subscribe(fn func(bool)) {
	l.mu.Lock()
	l.subs = append(l.subs, fn)
	l.mu.Unlock()
}
