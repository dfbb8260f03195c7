package booking

import (
	"context"
	"sync"
	"time"
)

// MemoryChallengeStore keeps challenges in process. It backs tests and
// single-instance development setups.
type MemoryChallengeStore struct {
	mu    sync.Mutex
	items []*Challenge
}

func NewMemoryChallengeStore() *MemoryChallengeStore { return &MemoryChallengeStore{} }

func (m *MemoryChallengeStore) Create(_ context.Context, c *Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, old := range m.items {
		if old.Phone == c.Phone && !old.Verified && old.SupersededAt == nil {
			at := c.CreatedAt
			old.SupersededAt = &at
		}
	}
	cp := *c
	m.items = append(m.items, &cp)
	return nil
}

func (m *MemoryChallengeStore) Verify(_ context.Context, phone, code string, now time.Time) (*Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest *Challenge
	for _, c := range m.items {
		if c.Phone != phone || !c.Live(now) {
			continue
		}
		if newest == nil || c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}
	if newest == nil {
		return nil, ErrNoActiveChallenge
	}
	if !newest.Matches(code) {
		newest.miss(now)
		return nil, ErrNoActiveChallenge
	}
	newest.Verified = true
	at := now
	newest.VerifiedAt = &at
	cp := *newest
	return &cp, nil
}

func (m *MemoryChallengeStore) Invalidate(_ context.Context, c *Challenge, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.ID == c.ID && item.SupersededAt == nil {
			at := now
			item.SupersededAt = &at
		}
	}
	return nil
}

func (m *MemoryChallengeStore) Purge(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.items[:0]
	var n int64
	for _, c := range m.items {
		if c.ExpiresAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	m.items = kept
	return n, nil
}

// Len returns the number of stored challenges.
func (m *MemoryChallengeStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
