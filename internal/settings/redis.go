package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces settings keys in Redis.
const DefaultRedisPrefix = "shakegestures:settings:"

// Redis is a Backend that keeps each setting in a Redis string key and
// announces writes on a pub/sub channel. Payloads on the channel are the
// unprefixed key names.
type Redis struct {
	rdb    *goredis.Client
	prefix string
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewRedis connects to redisURL (e.g. "redis://localhost:6379/0") and
// verifies the connection with a PING.
func NewRedis(ctx context.Context, redisURL, prefix string, logger *slog.Logger) (*Redis, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisFromClient(rdb, prefix, logger), nil
}

// NewRedisFromClient wraps an existing client. Close closes the client.
func NewRedisFromClient(rdb *goredis.Client, prefix string, logger *slog.Logger) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		rdb:     rdb,
		prefix:  prefix,
		logger:  logger,
		closeCh: make(chan struct{}),
	}
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

func (r *Redis) channel() string {
	return strings.TrimSuffix(r.prefix, ":") + ":changed"
}

func (r *Redis) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Redis) GetInt(ctx context.Context, key string, def int) (int, error) {
	if r.isClosed() {
		return 0, ErrClosed
	}
	raw, err := r.rdb.Get(ctx, r.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return def, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	v, err := ParseString(raw)
	if err != nil {
		return 0, fmt.Errorf("key %s: %w", key, err)
	}
	return v, nil
}

// GetInts reads every key in defaults with one MGET.
func (r *Redis) GetInts(ctx context.Context, defaults map[string]int) (map[string]int, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(defaults))
	redisKeys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
		redisKeys = append(redisKeys, r.key(k))
	}
	if len(keys) == 0 {
		return map[string]int{}, nil
	}

	raw, err := r.rdb.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	out := make(map[string]int, len(keys))
	for i, k := range keys {
		if raw[i] == nil {
			out[k] = defaults[k]
			continue
		}
		v, err := parseValue(raw[i])
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Set writes the value and publishes the key name on the change channel.
func (r *Redis) Set(ctx context.Context, key string, value int) error {
	if r.isClosed() {
		return ErrClosed
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, r.key(key), strconv.Itoa(value), 0)
	pipe.Publish(ctx, r.channel(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Subscribe forwards change announcements for keys. Writes made directly
// with redis-cli SET are not announced; publish the key name on the channel
// afterwards, or use shakectl set.
func (r *Redis) Subscribe(ctx context.Context, keys ...string) (<-chan struct{}, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	sub := r.rdb.Subscribe(ctx, r.channel())
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		r.wg.Done()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer r.wg.Done()
		defer close(ch)
		defer sub.Close()

		msgCh := sub.Channel()
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				if matches(keys, msg.Payload) {
					notify(ch)
				}
			case <-ctx.Done():
				return
			case <-r.closeCh:
				return
			}
		}
	}()

	return ch, nil
}

// Close stops subscriptions and closes the client.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.closeCh)
	r.mu.Unlock()

	r.wg.Wait()
	return r.rdb.Close()
}
