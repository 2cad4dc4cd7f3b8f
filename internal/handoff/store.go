package handoff

import (
	"sync"
	"time"

	"resume-renderer/internal/render"
)

const DefaultTTL = 10 * time.Minute

type entry struct {
	result  render.Result
	expires time.Time
}

// Store parks successful render results for a later retrieval step, keyed by
// request id. Entries expire after the store's TTL.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// New starts a store with a janitor that evicts expired entries every ttl/2.
// Close must be called to stop the janitor.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		entries: map[string]entry{},
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.janitor(ttl / 2)
	return s
}

func (s *Store) Put(key string, res render.Result) {
	s.mu.Lock()
	s.entries[key] = entry{result: res, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
}

// Get returns the result parked under key without removing it.
func (s *Store) Get(key string) (render.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || s.now().After(e.expires) {
		return render.Result{}, false
	}
	return e.result, true
}

// Take returns and removes the result parked under key.
func (s *Store) Take(key string) (render.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return render.Result{}, false
	}
	delete(s.entries, key)
	if s.now().After(e.expires) {
		return render.Result{}, false
	}
	return e.result, true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops every expired entry and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for k, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Close stops the janitor. It is safe to call more than once.
func (s *Store) Close() {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
	})
}

func (s *Store) janitor(every time.Duration) {
	defer close(s.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}
