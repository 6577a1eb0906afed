package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	redis "github.com/ivanros02/los4Fantasticos/service/storage/redis"
)

// presence key: family:presence:<uid>
// Value: relay node id, TTL bounds how stale a crashed relay can leave it.
func presenceKey(uid string) string { return "family:presence:" + uid }

// RedisPresence mirrors which members are online into redis. It is a
// convenience for sibling services; the relay's in-memory registry stays the
// single source of truth, and every call here is fail-soft.
type RedisPresence struct{}

func NewRedisPresence() *RedisPresence { return &RedisPresence{} }

func (p *RedisPresence) Online(ctx context.Context, uid, nodeID string, ttl time.Duration) error {
	rdb, ok := redis.TryGetRedis()
	if !ok {
		return errors.New("redis not initialized")
	}
	return rdb.Set(ctx, presenceKey(uid), nodeID, ttl).Err()
}

func (p *RedisPresence) Offline(ctx context.Context, uid string) error {
	rdb, ok := redis.TryGetRedis()
	if !ok {
		return errors.New("redis not initialized")
	}
	return rdb.Del(ctx, presenceKey(uid)).Err()
}

// Lookup reports whether the member has a live session and on which node.
func (p *RedisPresence) Lookup(ctx context.Context, uid string) (nodeID string, online bool, err error) {
	rdb, ok := redis.TryGetRedis()
	if !ok {
		return "", false, errors.New("redis not initialized")
	}
	val, err := rdb.Get(ctx, presenceKey(uid)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
