package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/redis/go-redis/v9"
)

// set the profile unless the id carries a tombstone
var setUnlessDeleted = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// tombstone the id and drop the profile in one step
var invalidateProfile = redis.NewScript(`
redis.call("SET", KEYS[2], "1", "PX", ARGV[1])
redis.call("DEL", KEYS[1])
return 1
`)

// RedisProfiles shares the profile cache across API instances. Redis failures are logged and
// treated as misses; the database stays the source of truth. When an invalidation cannot reach
// redis the id is also tombstoned locally, so this instance stops serving it.
type RedisProfiles struct {
	rdb   *redis.Client
	ttl   time.Duration
	log   *slog.Logger
	local *Cache[struct{}]
}

func NewRedisProfiles(rdb *redis.Client, ttl time.Duration, log *slog.Logger) *RedisProfiles {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisProfiles{rdb: rdb, ttl: ttl, log: log, local: New[struct{}](tombstoneTTL(ttl))}
}

func (r *RedisProfiles) Get(ctx context.Context, id string) (user.Profile, bool) {
	if _, dead := r.local.Get(id); dead {
		return user.Profile{}, false
	}

	raw, err := r.rdb.Get(ctx, profileKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.WarnContext(ctx, "profile cache get failed", "err", err)
		}
		return user.Profile{}, false
	}

	var p user.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		r.log.WarnContext(ctx, "profile cache entry corrupt", "err", err)
		return user.Profile{}, false
	}
	return p, true
}

func (r *RedisProfiles) Set(ctx context.Context, p user.Profile) {
	if _, dead := r.local.Get(p.ID); dead {
		return
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return
	}

	keys := []string{profileKey(p.ID), tombstoneKey(p.ID)}
	if err := setUnlessDeleted.Run(ctx, r.rdb, keys, raw, r.ttl.Milliseconds()).Err(); err != nil {
		r.log.WarnContext(ctx, "profile cache set failed", "err", err)
	}
}

func (r *RedisProfiles) Invalidate(ctx context.Context, id string) error {
	keys := []string{profileKey(id), tombstoneKey(id)}
	if err := invalidateProfile.Run(ctx, r.rdb, keys, tombstoneTTL(r.ttl).Milliseconds()).Err(); err != nil {
		r.local.Set(id, struct{}{})
		return err
	}
	return nil
}
