package serverstate

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yohi/antigravity-mcp-bridge/core/redisx"
)

// RedisKey holds the JSON encoded state.
const RedisKey = "agbridge:state"

const redisTimeout = 2 * time.Second

// RedisStore implements Store backed by a Redis instance.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore connects to the given Redis URL and returns a Store.
// The key is initialized to a default state if it does not exist.
func NewRedisStore(addr string) (*RedisStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	c, err := redisx.Connect(ctx, addr)
	if err != nil {
		return nil, err
	}
	rs := &RedisStore{client: c, key: RedisKey}
	b, _ := json.Marshal(State{Status: StatusNotReady})
	_ = c.SetNX(ctx, rs.key, b, 0).Err()
	return rs, nil
}

func (r *RedisStore) Load() State {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	b, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{Status: StatusNotReady}
		}
		return State{Status: "unknown"}
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{Status: "unknown"}
	}
	return st
}

func (r *RedisStore) Store(s State) {
	b, err := json.Marshal(s)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	_ = r.client.Set(ctx, r.key, b, 0).Err()
}

// Close releases the client.
func (r *RedisStore) Close() error { return r.client.Close() }
