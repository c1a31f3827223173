package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/hal9000y/workspace-agent/internal/agent"
)

const defaultPrefix = "workspace-agent:thread:"

// Redis keeps each thread in a list of JSON encoded messages.
type Redis struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type RedisOption func(*Redis)

// WithTTL expires idle threads. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// NewRedis connects to addr and checks the connection.
func NewRedis(ctx context.Context, addr, password string, db int, opts ...RedisOption) (*Redis, error) {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisFromClient(client, opts...), nil
}

func NewRedisFromClient(client *backend.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *Redis) key(threadID string) string {
	return r.prefix + threadID
}

func (r *Redis) Load(ctx context.Context, threadID string) ([]agent.Message, error) {
	vals, err := r.client.LRange(ctx, r.key(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis LRANGE failed: %w", err)
	}

	out := make([]agent.Message, 0, len(vals))
	for _, v := range vals {
		var msg agent.Message
		if err := json.Unmarshal([]byte(v), &msg); err != nil {
			return nil, fmt.Errorf("json.Unmarshal failed: %w", err)
		}
		out = append(out, msg)
	}

	return out, nil
}

func (r *Redis) Append(ctx context.Context, threadID string, messages []agent.Message) error {
	if len(messages) == 0 {
		return nil
	}

	vals := make([]any, 0, len(messages))
	for _, msg := range messages {
		b, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("json.Marshal failed: %w", err)
		}
		vals = append(vals, b)
	}

	key := r.key(threadID)
	_, err := r.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.RPush(ctx, key, vals...)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append failed: %w", err)
	}

	return nil
}

func (r *Redis) Delete(ctx context.Context, threadID string) error {
	n, err := r.client.Del(ctx, r.key(threadID)).Result()
	if err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
