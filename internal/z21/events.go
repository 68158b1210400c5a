package z21

import (
	"sync"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// subscription is one registered observer.
type subscription[T any] struct {
	id uint64
	fn func(T)
}

// subscribers is an ordered observer list with token-based removal.
type subscribers[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription[T]
}

// add registers fn and returns a function that removes it.
// The returned function is safe to call more than once.
func (s *subscribers[T]) add(fn func(T)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription[T]{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *subscribers[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// snapshot returns the current observers in subscription order.
func (s *subscribers[T]) snapshot() []func(T) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fns := make([]func(T), len(s.subs))
	for i, sub := range s.subs {
		fns[i] = sub.fn
	}
	return fns
}

func (s *subscribers[T]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
