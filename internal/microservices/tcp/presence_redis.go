package tcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceStore mirrors which connections are currently registered, so other
// processes can see who is online without talking to this server.
type PresenceStore interface {
	Join(ctx context.Context, connID, remoteAddr string) error
	Leave(ctx context.Context, connID string) error
}

const DefaultPresenceKey = "eventcast:presence"

// RedisPresence keeps presence in a single Redis hash:
// field = connection ID, value = "remote_addr|connected_at".
type RedisPresence struct {
	client *redis.Client
	key    string
}

// NewRedisPresence connects to Redis and verifies the connection.
// redisAddr may carry a redis:// or rediss:// prefix.
func NewRedisPresence(redisAddr, password, key string) (*RedisPresence, error) {
	redisAddr = strings.TrimPrefix(redisAddr, "redis://")
	redisAddr = strings.TrimPrefix(redisAddr, "rediss://")
	if key == "" {
		key = DefaultPresenceKey
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisPresence{client: rdb, key: key}, nil
}

// NewRedisPresenceFromClient uses an existing client (tests, shared pools).
func NewRedisPresenceFromClient(client *redis.Client, key string) *RedisPresence {
	if key == "" {
		key = DefaultPresenceKey
	}
	return &RedisPresence{client: client, key: key}
}

func (r *RedisPresence) Join(ctx context.Context, connID, remoteAddr string) error {
	if r == nil || r.client == nil {
		return nil
	}
	value := remoteAddr + "|" + time.Now().UTC().Format(time.RFC3339Nano)
	return r.client.HSet(ctx, r.key, connID, value).Err()
}

func (r *RedisPresence) Leave(ctx context.Context, connID string) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.HDel(ctx, r.key, connID).Err()
}

// Members returns connection ID -> remote address for every present connection.
func (r *RedisPresence) Members(ctx context.Context) (map[string]string, error) {
	if r == nil || r.client == nil {
		return map[string]string{}, nil
	}
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	members := make(map[string]string, len(fields))
	for id, value := range fields {
		addr, _, _ := strings.Cut(value, "|")
		members[id] = addr
	}
	return members, nil
}

// Reset drops all presence entries, e.g. ones left behind by a crashed process.
func (r *RedisPresence) Reset(ctx context.Context) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Del(ctx, r.key).Err()
}

func (r *RedisPresence) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
