package session

import (
	"context"
	"sync"
	"time"
)

// Registry keeps one Session per front-end key (chat id, HTTP session id).
type Registry[K comparable] struct {
	mu       sync.RWMutex
	sessions map[K]*Session
	factory  func(K) *Session
	onChange func(n int)
	now      func() time.Time
}

// NewRegistry creates an empty registry. factory builds the session for a new key.
func NewRegistry[K comparable](factory func(K) *Session) *Registry[K] {
	return &Registry[K]{
		sessions: make(map[K]*Session),
		factory:  factory,
		now:      time.Now,
	}
}

// OnChange registers a callback that receives the session count after every change.
func (r *Registry[K]) OnChange(f func(n int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = f
}

func (r *Registry[K]) GetOrCreate(key K) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		return s
	}
	s := r.factory(key)
	r.sessions[key] = s
	r.changed()
	return s
}

func (r *Registry[K]) Get(key K) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	return s, ok
}

// Delete drops the session for key and reports whether it existed.
func (r *Registry[K]) Delete(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[key]; !ok {
		return false
	}
	delete(r.sessions, key)
	r.changed()
	return true
}

func (r *Registry[K]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Cleanup drops sessions idle for longer than idle. Sessions with a call in
// flight are kept. It returns the number of dropped sessions.
func (r *Registry[K]) Cleanup(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	removed := 0
	for key, s := range r.sessions {
		if s.LastActivity().Before(cutoff) && !s.Busy() {
			delete(r.sessions, key)
			removed++
		}
	}
	if removed > 0 {
		r.changed()
	}
	return removed
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (r *Registry[K]) StartCleanup(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Cleanup(idle)
			}
		}
	}()
}

func (r *Registry[K]) changed() {
	if r.onChange != nil {
		r.onChange(len(r.sessions))
	}
}
