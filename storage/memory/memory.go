// Package memory implements the storage port (C2) in process memory.
//
// It is used for single-instance deployments and for tests that exercise
// the distributed CAS protocol without a network dependency.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pallabcodes/distributed-ratelimiter/storage"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Store is an in-memory storage.Store backed by a mutex-guarded map and a
// background sweep goroutine that reclaims expired entries.
type Store struct {
	mu     sync.Mutex
	data   map[string]entry
	stopCh chan struct{}
	once   sync.Once
}

// New creates a Store and starts its TTL sweep goroutine.
func New() *Store {
	s := &Store{
		data:   make(map[string]entry),
		stopCh: make(chan struct{}),
	}
	go s.sweep(time.Minute)
	return s
}

func (s *Store) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for k, e := range s.data {
				if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
					delete(s.data, k)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *Store) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok {
		return "", false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(s.data, key)
		return "", false
	}
	return e.value, true
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, key string) (storage.State, bool, error) {
	raw, ok := s.get(key)
	if !ok {
		return storage.State{}, false, nil
	}
	state, decoded := storage.DecodeState(raw)
	if !decoded {
		return storage.State{}, false, storage.ErrPermanent
	}
	return state, true, nil
}

// CompareAndSet implements storage.Store.
func (s *Store) CompareAndSet(ctx context.Context, key string, expected storage.State, expectedOK bool, next storage.State, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.data[key]
	if !exists || (!current.expiresAt.IsZero() && time.Now().After(current.expiresAt)) {
		if expectedOK {
			return false, nil
		}
	} else if !expectedOK {
		return false, nil
	} else {
		currentState, decoded := storage.DecodeState(current.value)
		if !decoded || currentState != expected {
			return false, nil
		}
	}

	e := entry{value: storage.EncodeState(next)}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.data[key] = e
	return true, nil
}

// Close stops the TTL sweep goroutine.
func (s *Store) Close() error {
	s.once.Do(func() { close(s.stopCh) })
	return nil
}
