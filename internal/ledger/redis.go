package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "market_watch:posted:"

// Redis implements Ledger on top of Redis keys. Each pair is one key written
// with SETNX, so the first writer wins and later writes are no-ops.
type Redis struct {
	rdb *redis.Client
}

// NewRedis returns a Redis ledger using an existing client.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(rdb), nil
}

// Ping implements Ledger.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

// WasPosted checks whether the pair key exists.
func (r *Redis) WasPosted(ctx context.Context, query, itemID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, redisKey(query, itemID)).Result()
	if err != nil {
		return false, fmt.Errorf("check posted: %w", err)
	}
	return n > 0, nil
}

// MarkPosted stores the posting time under the pair key if it is absent.
func (r *Redis) MarkPosted(ctx context.Context, query, itemID string, at time.Time) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, redisKey(query, itemID), strconv.FormatInt(at.Unix(), 10), 0).Result()
	if err != nil {
		return false, fmt.Errorf("mark posted: %w", err)
	}
	return ok, nil
}

func redisKey(query, itemID string) string {
	return redisKeyPrefix + strconv.Quote(query) + ":" + itemID
}
