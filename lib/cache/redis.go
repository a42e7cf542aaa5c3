package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

func NewRedisClient(addr, password string, db int) *redis.Client {
	opts := &redis.Options{
		Addr: addr,
		DB:   db,
	}

	if password != "" {
		opts.Password = password
	}

	return redis.NewClient(opts)
}

// addIfExists returns -1 when the key is absent, otherwise the SADD reply.
var addIfExists = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return redis.call('SADD', KEYS[1], ARGV[1])
end
return -1
`)

// RedisBackend keeps sets and feed indices in Redis. Multi-command writes run
// inside MULTI/EXEC so that, for example, an insert and its trim are observed
// together.
type RedisBackend struct {
	rdb *redis.Client
}

func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func (rb *RedisBackend) SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	_, err := rb.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, toArgs(members)...)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return mapErr(err)
}

func (rb *RedisBackend) SetAddIfExists(ctx context.Context, key, member string) (bool, error) {
	res, err := addIfExists.Run(ctx, rb.rdb, []string{key}, member).Int64()
	if err != nil {
		return false, mapErr(err)
	}
	return res >= 0, nil
}

func (rb *RedisBackend) SetRemove(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return mapErr(rb.rdb.SRem(ctx, key, toArgs(members)...).Err())
}

func (rb *RedisBackend) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := rb.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	return members, nil
}

func (rb *RedisBackend) IndexAdd(ctx context.Context, key string, opts IndexOptions, entries ...IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	zs := make([]*redis.Z, len(entries))
	for i, e := range entries {
		zs[i] = &redis.Z{Score: e.Score, Member: e.Member}
	}

	_, err := rb.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, zs...)
		if opts.Cap > 0 {
			pipe.ZRemRangeByRank(ctx, key, 0, -opts.Cap-1)
		}
		if opts.TTL > 0 {
			pipe.Expire(ctx, key, opts.TTL)
		}
		return nil
	})
	return mapErr(err)
}

func (rb *RedisBackend) IndexRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	members, err := rb.rdb.ZRevRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	return members, nil
}

func (rb *RedisBackend) IndexRemove(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return mapErr(rb.rdb.ZRem(ctx, key, toArgs(members)...).Err())
}

func (rb *RedisBackend) IndexLen(ctx context.Context, key string) (int64, error) {
	n, err := rb.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

func (rb *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := rb.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, mapErr(err)
	}
	return n > 0, nil
}

func (rb *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return rb.rdb.Del(ctx, keys...).Err()
}

func (rb *RedisBackend) Ping(ctx context.Context) error {
	return rb.rdb.Ping(ctx).Err()
}

func (rb *RedisBackend) Close() error {
	return rb.rdb.Close()
}

func toArgs(members []string) []interface{} {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}

// mapErr turns Redis' WRONGTYPE reply, also when raised inside a script,
// into ErrWrongType.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "WRONGTYPE") {
		return fmt.Errorf("%w: %v", ErrWrongType, err)
	}
	return err
}
