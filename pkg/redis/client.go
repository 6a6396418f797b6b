package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Nil is returned by Get when the key does not exist
const Nil = redis.Nil

// Pipeliner is the batch interface handed to Pipelined callbacks
type Pipeliner = redis.Pipeliner

type Client struct {
	rdb        *redis.Client
	KeyBuilder *KeyBuilder
	log        *zap.Logger
	breaker    *gobreaker.CircuitBreaker[any]
}

// NewClient creates a new Redis client.
// The connection is not verified here; callers decide whether an unreachable
// store at startup is fatal (see Ping).
func NewClient(redisURL string, environment string, log *zap.Logger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 50
	opts.MinIdleConns = 5
	opts.MaxRetries = 1
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = 500 * time.Millisecond
	opts.WriteTimeout = 500 * time.Millisecond

	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		rdb:        redis.NewClient(opts),
		KeyBuilder: NewKeyBuilder(environment),
		log:        log,
		breaker:    newBreaker(log),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Ping verifies the connection, bypassing the circuit breaker
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Health checks the Redis connection
func (c *Client) Health(ctx context.Context) error {
	_, err := c.execute("redis_ping", "", func() (any, error) {
		return nil, c.rdb.Ping(ctx).Err()
	})
	return err
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Get retrieves a value from Redis
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	res, err := c.execute("redis_get", key, func() (any, error) {
		return c.rdb.Get(ctx, key).Result()
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

// Incr increments a counter
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	res, err := c.execute("redis_incr", key, func() (any, error) {
		return c.rdb.Incr(ctx, key).Result()
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// SCard returns the cardinality of a set
func (c *Client) SCard(ctx context.Context, key string) (int64, error) {
	res, err := c.execute("redis_scard", key, func() (any, error) {
		return c.rdb.SCard(ctx, key).Result()
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// Exists checks if a key exists
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	key := ""
	if len(keys) > 0 {
		key = keys[0]
	}
	res, err := c.execute("redis_exists", key, func() (any, error) {
		return c.rdb.Exists(ctx, keys...).Result()
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// Pipelined queues the commands added by fn and sends them in one round trip.
// The returned error is the first failed command's error; redis.Nil from a
// missing key is returned but does not count against the breaker.
func (c *Client) Pipelined(ctx context.Context, name string, fn func(Pipeliner) error) ([]redis.Cmder, error) {
	var cmds []redis.Cmder
	_, err := c.execute("redis_pipeline_"+name, "", func() (any, error) {
		var execErr error
		cmds, execErr = c.rdb.Pipelined(ctx, fn)
		return nil, execErr
	})
	return cmds, err
}

// TxPipelined is Pipelined wrapped in MULTI/EXEC, so the queued commands are
// applied together or not at all
func (c *Client) TxPipelined(ctx context.Context, name string, fn func(Pipeliner) error) ([]redis.Cmder, error) {
	var cmds []redis.Cmder
	_, err := c.execute("redis_tx_"+name, "", func() (any, error) {
		var execErr error
		cmds, execErr = c.rdb.TxPipelined(ctx, fn)
		return nil, execErr
	})
	return cmds, err
}

// execute runs fn through the circuit breaker and logs the outcome
func (c *Client) execute(op, key string, fn func() (any, error)) (any, error) {
	start := time.Now()
	res, err := c.breaker.Execute(fn)
	dur := time.Since(start)

	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Info(op,
			zap.String("key_prefix", prefixForLog(key)),
			zap.Duration("duration", dur),
			zap.Error(err))
	} else {
		c.log.Debug(op,
			zap.String("key_prefix", prefixForLog(key)),
			zap.Duration("duration", dur))
	}
	return res, err
}

// prefixForLog returns a safe prefix of a key to avoid logging PII
func prefixForLog(key string) string {
	if len(key) <= 24 {
		return key
	}
	return key[:24] + "…"
}
