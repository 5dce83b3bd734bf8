package token

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// memoryEntry holds a token along with its consumption flag,
// the flag is flipped by compare-and-swap
type memoryEntry struct {
	consumed int32
	mu       sync.RWMutex
	token    Token
}

func (e *memoryEntry) snapshot() Token {
	e.mu.RLock()
	t := e.token
	e.mu.RUnlock()

	return t
}

type memoryStore struct {
	tokens map[Hash]*memoryEntry
	sync.RWMutex
}

// NewMemoryStore initializes an in-memory token store
func NewMemoryStore() Store {
	return &memoryStore{
		tokens: make(map[Hash]*memoryEntry),
	}
}

func (s *memoryStore) Put(ctx context.Context, t Token) error {
	if t.Hash.IsZero() {
		return ErrEmptyTokenHash
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.tokens[t.Hash]; ok {
		return ErrDuplicateToken
	}

	e := &memoryEntry{token: t}
	if t.IsConsumed() {
		e.consumed = 1
	}

	s.tokens[t.Hash] = e

	return nil
}

func (s *memoryStore) entry(hash Hash) (*memoryEntry, error) {
	s.RLock()
	e, ok := s.tokens[hash]
	s.RUnlock()

	if !ok {
		return nil, ErrTokenNotFound
	}

	return e, nil
}

func (s *memoryStore) Get(ctx context.Context, hash Hash) (t Token, err error) {
	e, err := s.entry(hash)
	if err != nil {
		return t, err
	}

	return e.snapshot(), nil
}

func (s *memoryStore) Consume(ctx context.Context, hash Hash, now time.Time, fn RedeemFunc) (t Token, err error) {
	e, err := s.entry(hash)
	if err != nil {
		return t, err
	}

	t = e.snapshot()

	// expiry is immutable, so checking it before the swap is race-free
	if !now.Before(t.ExpireAt) {
		return t, ErrTokenExpired
	}

	if !atomic.CompareAndSwapInt32(&e.consumed, 0, 1) {
		return t, ErrTokenAlreadyUsed
	}

	t.ConsumedAt = now

	if fn != nil {
		if t, err = fn(ctx, t); err != nil {
			// releasing the claim, nothing has been created
			atomic.StoreInt32(&e.consumed, 0)
			return t, err
		}
	}

	e.mu.Lock()
	e.token = t
	e.mu.Unlock()

	return t, nil
}
