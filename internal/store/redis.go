package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/wager-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for market rows. Entries are keyed by a per-market version. Writes
// go to the primary store and then bump the version; reads check Redis first
// then fall back to the primary. Wagers, users and aggregates are never
// cached.
type CachedStore struct {
	Store
	rdb *redis.Client
	ttl time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store: primary,
		rdb:   rdb,
		ttl:   ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.Store.CreateMarket(ctx, m); err != nil {
		return err
	}
	if ver, err := s.version(ctx, m.ID); err == nil {
		s.cacheMarket(ctx, m, ver)
	}
	return nil
}

func (s *CachedStore) SetMarketImage(ctx context.Context, id int64, url string) error {
	defer s.invalidate(ctx, id)
	return s.Store.SetMarketImage(ctx, id, url)
}

func (s *CachedStore) CloseMarket(ctx context.Context, id int64) (*model.Market, error) {
	defer s.invalidate(ctx, id)
	return s.Store.CloseMarket(ctx, id)
}

func (s *CachedStore) ResolveMarket(ctx context.Context, id int64, fn SettleFunc) (*Settlement, error) {
	defer s.invalidate(ctx, id)
	return s.Store.ResolveMarket(ctx, id, fn)
}

func (s *CachedStore) ApplyWager(ctx context.Context, wagerID int64, volumeSince time.Time, fn ApplyFunc) (*model.Market, bool, error) {
	m, applied, err := s.Store.ApplyWager(ctx, wagerID, volumeSince, fn)
	if err != nil {
		return nil, false, err
	}
	if applied {
		s.invalidate(ctx, m.ID)
	}
	return m, applied, nil
}

// --- Read-through (check cache first) ---

// GetMarket reads the market's cache version before touching the primary
// and caches under that version only. A write that lands mid-read bumps the
// version, so the stale copy is written to a key no reader will look up.
func (s *CachedStore) GetMarket(ctx context.Context, id int64) (*model.Market, error) {
	ver, err := s.version(ctx, id)
	if err != nil {
		return s.Store.GetMarket(ctx, id)
	}
	data, err := s.rdb.Get(ctx, marketKey(id, ver)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.Store.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheMarket(ctx, m, ver)
	return m, nil
}

// --- Cache helpers ---

// version returns the market's current cache version; zero when unset.
func (s *CachedStore) version(ctx context.Context, id int64) (int64, error) {
	ver, err := s.rdb.Get(ctx, versionKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market, ver int64) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID, ver), data, s.ttl)
	}
}

// invalidate retires every entry cached under the previous version.
func (s *CachedStore) invalidate(ctx context.Context, id int64) {
	s.rdb.Incr(ctx, versionKey(id))
}

func versionKey(id int64) string { return fmt.Sprintf("market:ver:%d", id) }

func marketKey(id, ver int64) string { return fmt.Sprintf("market:%d:v%d", id, ver) }

// ErrLockHeld is returned when a distributed lock is owned by someone else.
var ErrLockHeld = errors.New("store: lock already held")

// unlockLua deletes a lock key only if its value matches the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// RedisLocker is a distributed per-key lock using SET NX with a TTL.
type RedisLocker struct {
	rdb      *redis.Client
	ttl      time.Duration
	unlockSc *redis.Script
}

// NewRedisLocker creates a RedisLocker whose locks expire after ttl.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		rdb:      rdb,
		ttl:      ttl,
		unlockSc: redis.NewScript(unlockLua),
	}
}

// Lock acquires key or fails with ErrLockHeld. The returned release func
// is safe to call more than once.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	lk := "lock:" + key

	ok, err := l.rdb.SetNX(ctx, lk, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// Background context: release must succeed after the caller's
		// request context is done.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.unlockSc.Run(unlockCtx, l.rdb, []string{lk}, token).Err()
	}, nil
}
