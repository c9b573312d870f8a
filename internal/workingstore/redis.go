package workingstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"

	"cms-go/internal/cms"
)

// redisKeyPrefix namespaces working copies inside a shared Redis database.
const redisKeyPrefix = "cms:working:"

// RedisStore keeps working copies as plain Redis strings.
type RedisStore struct {
	pool *redis.Pool
}

var _ cms.ConditionalWorkingStore = (*RedisStore)(nil)

// NewRedisPool returns a pool dialing addr and selecting db.
func NewRedisPool(addr string, db int) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 5 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr, redis.DialDatabase(db))
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// NewRedisStore takes ownership of pool; Close closes it.
func NewRedisStore(pool *redis.Pool) *RedisStore {
	return &RedisStore{pool: pool}
}

func (s *RedisStore) Close() error {
	return s.pool.Close()
}

func (s *RedisStore) conn(ctx context.Context) (redis.Conn, error) {
	c, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis connection: %w", err)
	}
	return c, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	body, err := redis.Bytes(redis.DoContext(c, ctx, "GET", redisKeyPrefix+key))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return nil, notFound(key)
		}
		return nil, fmt.Errorf("redis GET: %w", err)
	}
	return body, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, body []byte) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := redis.DoContext(c, ctx, "SET", redisKeyPrefix+key, body); err != nil {
		return fmt.Errorf("redis SET: %w", err)
	}
	return nil
}

// PutIfAbsent uses SET NX, which replies nil when the key exists.
func (s *RedisStore) PutIfAbsent(ctx context.Context, key string, body []byte) (bool, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	defer c.Close()

	_, err = redis.String(redis.DoContext(c, ctx, "SET", redisKeyPrefix+key, body, "NX"))
	switch {
	case errors.Is(err, redis.ErrNil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("redis SET NX: %w", err)
	}
	return true, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := redis.DoContext(c, ctx, "DEL", redisKeyPrefix+key); err != nil {
		return fmt.Errorf("redis DEL: %w", err)
	}
	return nil
}

// List walks the keyspace with SCAN so a large store never blocks the server.
func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	pattern := globEscape(redisKeyPrefix+prefix) + "*"
	seen := map[string]struct{}{}
	cursor := 0
	for {
		values, err := redis.Values(redis.DoContext(c, ctx, "SCAN", cursor, "MATCH", pattern, "COUNT", 100))
		if err != nil {
			return nil, fmt.Errorf("redis SCAN: %w", err)
		}
		var batch []string
		if _, err := redis.Scan(values, &cursor, &batch); err != nil {
			return nil, fmt.Errorf("redis SCAN reply: %w", err)
		}
		for _, k := range batch {
			seen[strings.TrimPrefix(k, redisKeyPrefix)] = struct{}{}
		}
		if cursor == 0 {
			break
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// globEscape quotes the characters SCAN MATCH treats as pattern syntax.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
