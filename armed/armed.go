// Package armed stores whether each tenant's alerting is armed. Disarmed
// tenants still upload, but their images are discarded without detection.
package armed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cyberinferno/camingest/cacher"
	"github.com/cyberinferno/camingest/logger"
	"github.com/cyberinferno/camingest/safemap"
	"github.com/cyberinferno/camingest/tenant"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix prefixes the redis key holding a tenant's state.
const DefaultKeyPrefix = "user_armed_status:"

// Store reads and writes armed state. A tenant with no stored state uses its
// configured default.
type Store interface {
	IsArmed(ctx context.Context, t tenant.Config) (bool, error)
	SetArmed(ctx context.Context, t tenant.Config, armed bool) error
}

// RedisStore keeps armed state in redis as "true"/"false" strings under
// <prefix><tenant id>. Reads are cached briefly.
type RedisStore struct {
	client *redis.Client
	prefix string
	cache  *cacher.MemoryCacher[bool]
	logger logger.Logger
}

// NewRedisStore creates a redis-backed store.
//
// Parameters:
//   - client: Connected redis client
//   - prefix: Key prefix, DefaultKeyPrefix when empty
//   - cacheTTL: How long a read is served from memory
//   - log: Logger
//
// Returns:
//   - The store
func NewRedisStore(client *redis.Client, prefix string, cacheTTL time.Duration, log logger.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
		cache:  cacher.NewMemoryCacher[bool](cacheTTL),
		logger: log.With(logger.Field{Key: "component", Value: "armed"}),
	}
}

func (s *RedisStore) key(t tenant.Config) string {
	return s.prefix + t.ID
}

// IsArmed returns the stored state, or t.Armed when none is stored.
func (s *RedisStore) IsArmed(ctx context.Context, t tenant.Config) (bool, error) {
	key := s.key(t)

	return s.cache.GetOrFetch(ctx, key, func(ctx context.Context) (bool, error) {
		val, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			s.logger.Debug("armed state not stored, using default",
				logger.Field{Key: "tenant", Value: t.ID},
				logger.Field{Key: "armed", Value: t.Armed})
			return t.Armed, nil
		}
		if err != nil {
			return false, fmt.Errorf("get armed state for %s: %w", t.ID, err)
		}

		return strings.EqualFold(val, "true"), nil
	})
}

// SetArmed stores the state and updates the local cache.
func (s *RedisStore) SetArmed(ctx context.Context, t tenant.Config, armed bool) error {
	key := s.key(t)
	if err := s.client.Set(ctx, key, strconv.FormatBool(armed), 0).Err(); err != nil {
		s.cache.Invalidate(key)
		return fmt.Errorf("set armed state for %s: %w", t.ID, err)
	}

	s.cache.Set(key, armed)
	s.logger.Info("armed state changed",
		logger.Field{Key: "tenant", Value: t.ID},
		logger.Field{Key: "armed", Value: armed})
	return nil
}

// InitDefaults writes each tenant's configured default unless a state is
// already stored, so restarts keep states set at runtime.
//
// Parameters:
//   - ctx: Context for the redis calls
//   - tenants: Every configured tenant
//
// Returns:
//   - An error if any write fails
func (s *RedisStore) InitDefaults(ctx context.Context, tenants []tenant.Config) error {
	for _, t := range tenants {
		set, err := s.client.SetNX(ctx, s.key(t), strconv.FormatBool(t.Armed), 0).Result()
		if err != nil {
			return fmt.Errorf("init armed state for %s: %w", t.ID, err)
		}
		if set {
			s.logger.Info("initialized armed state",
				logger.Field{Key: "tenant", Value: t.ID},
				logger.Field{Key: "armed", Value: t.Armed})
		}
	}

	return nil
}

// StaticStore keeps armed state in process memory. It is used when no redis
// address is configured; states reset to the defaults on restart.
type StaticStore struct {
	states *safemap.SafeMap[string, bool]
}

// NewStaticStore creates an empty in-memory store.
func NewStaticStore() *StaticStore {
	return &StaticStore{states: safemap.NewSafeMap[string, bool]()}
}

// IsArmed implements Store.
func (s *StaticStore) IsArmed(_ context.Context, t tenant.Config) (bool, error) {
	if v, ok := s.states.Load(t.ID); ok {
		return v, nil
	}

	return t.Armed, nil
}

// SetArmed implements Store.
func (s *StaticStore) SetArmed(_ context.Context, t tenant.Config, armed bool) error {
	s.states.Store(t.ID, armed)
	return nil
}
