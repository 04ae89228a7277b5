package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient implementa Client usando Redis.
type redisClient struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedis crea un cliente Redis y verifica la conexión.
func NewRedis(ctx context.Context, cfg Config) (Client, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	} else if !strings.Contains(addr, ":") {
		addr += ":6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}
	return NewRedisFromClient(rdb, cfg.Prefix), nil
}

// NewRedisFromClient envuelve un cliente ya creado (cluster, sentinel, tests).
func NewRedisFromClient(rdb redis.UniversalClient, prefix string) Client {
	return &redisClient{rdb: rdb, prefix: prefix}
}

func (c *redisClient) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, prefixed(c.prefix, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

func (c *redisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, prefixed(c.prefix, key), value, ttl).Err()
}

// Incr usa INCR + EXPIRE en la primera escritura de la ventana.
func (c *redisClient) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	k := prefixed(c.prefix, key)
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	ttl := pipe.TTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	if incr.Val() == 1 && window > 0 {
		if err := c.rdb.Expire(ctx, k, window).Err(); err != nil {
			return 0, 0, err
		}
		return 1, window, nil
	}
	return incr.Val(), ttl.Val(), nil
}

func (c *redisClient) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, prefixed(c.prefix, key)).Err()
}

func (c *redisClient) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, prefixed(c.prefix, key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *redisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *redisClient) Close() error {
	return c.rdb.Close()
}

func (c *redisClient) Stats(ctx context.Context) (Stats, error) {
	mem, err := c.rdb.Info(ctx, "memory").Result()
	if err != nil {
		return Stats{}, err
	}
	keys, err := c.rdb.DBSize(ctx).Result()
	if err != nil {
		return Stats{}, err
	}
	// hits/misses son best effort
	st, _ := c.rdb.Info(ctx, "stats").Result()
	hits, _ := strconv.ParseInt(infoField(st, "keyspace_hits"), 10, 64)
	misses, _ := strconv.ParseInt(infoField(st, "keyspace_misses"), 10, 64)

	return Stats{
		Driver:     "redis",
		Keys:       keys,
		UsedMemory: infoField(mem, "used_memory_human"),
		Hits:       hits,
		Misses:     misses,
	}, nil
}

// infoField extrae "name:value" de la salida de INFO.
func infoField(info, name string) string {
	for _, line := range strings.Split(info, "\r\n") {
		if v, ok := strings.CutPrefix(line, name+":"); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
