package cache

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
)

// MemoryProfiles caches redacted profiles per process. Invalidate leaves a tombstone for the
// id so a lookup that loaded the row before the delete cannot write it back.
type MemoryProfiles struct {
	mu         sync.Mutex
	profiles   *Cache[user.Profile]
	tombstones *Cache[struct{}]
}

func NewMemoryProfiles(ttl time.Duration) *MemoryProfiles {
	return &MemoryProfiles{
		profiles:   New[user.Profile](ttl),
		tombstones: New[struct{}](tombstoneTTL(ttl)),
	}
}

func (m *MemoryProfiles) Get(_ context.Context, id string) (user.Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.profiles.Get(profileKey(id))
}

func (m *MemoryProfiles) Set(_ context.Context, p user.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dead := m.tombstones.Get(tombstoneKey(p.ID)); dead {
		return
	}
	m.profiles.Set(profileKey(p.ID), p)
}

func (m *MemoryProfiles) Invalidate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tombstones.Set(tombstoneKey(id), struct{}{})
	m.profiles.Delete(profileKey(id))
	return nil
}

func profileKey(id string) string {
	return "accounthub:profile:" + id
}

func tombstoneKey(id string) string {
	return "accounthub:profile-deleted:" + id
}

// A tombstone must outlive any lookup that was already in flight when the user was deleted.
func tombstoneTTL(ttl time.Duration) time.Duration {
	if ttl < minTombstoneTTL {
		return minTombstoneTTL
	}
	return ttl
}

const minTombstoneTTL = 30 * time.Second
