package caching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "cravebiz"

// CacheService holds short-lived coordination state shared by workers.
type CacheService interface {
	// AcquireLock takes name for ttl. ok is false when another holder has it.
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error)
	// ReleaseLock frees name if token still holds it.
	ReleaseLock(ctx context.Context, name, token string) error
	// IsRateLimited counts one hit against key and reports whether the
	// window's limit is exceeded.
	IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

type redisCacheService struct {
	client redisClient
	log    zerolog.Logger
}

// releaseScript deletes the lock only when it still carries our token.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

func NewRedisCacheService(addr, password string, db int, log zerolog.Logger) CacheService {
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsedAddr = strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Warn().Err(err).Str("addr", parsedAddr).Msg("redis ping failed on initialization")
	} else {
		log.Debug().Str("addr", parsedAddr).Msg("redis connection established")
	}
	return newRedisCacheService(client, log)
}

func newRedisCacheService(client redisClient, log zerolog.Logger) *redisCacheService {
	return &redisCacheService{client: client, log: log}
}

func lockKey(name string) string {
	return fmt.Sprintf("%s:lock:%s", keyPrefix, name)
}

func (r *redisCacheService) AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, lockKey(name), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *redisCacheService) ReleaseLock(ctx context.Context, name, token string) error {
	err := r.client.Eval(ctx, releaseScript, []string{lockKey(name)}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

func (r *redisCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	cacheKey := fmt.Sprintf("%s:ratelimit:%s", keyPrefix, key)
	count, err := r.client.Incr(ctx, cacheKey).Result()
	if err != nil {
		return true, err
	}

	// Set expiry on first request
	if count == 1 {
		if err := r.client.Expire(ctx, cacheKey, window).Err(); err != nil {
			r.log.Warn().Err(err).Str("key", cacheKey).Msg("failed to set rate limit window")
		}
	}
	return count > int64(limit), nil
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisCacheService) Close() error {
	return r.client.Close()
}
