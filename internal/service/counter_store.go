package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"techblog/internal/domain"
	"techblog/pkg/redis"
)

// redisCounterStore keeps per-date counters in Redis:
//
//	<env>:visitors:daily:<date>  INCR, refreshed TTL
//	<env>:visitors:set:<date>    SADD client IP, refreshed TTL
//	<env>:visitors:total         INCR, no TTL
type redisCounterStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCounterStore creates a Redis backed counter store whose per-date keys
// expire ttl after their last write
func NewCounterStore(client *redis.Client, ttl time.Duration) CounterStore {
	return &redisCounterStore{
		client: client,
		ttl:    ttl,
	}
}

// RecordHit applies the five writes of a hit in one MULTI/EXEC round trip.
// Without an IP the hit still counts but joins no unique set.
func (s *redisCounterStore) RecordHit(ctx context.Context, date time.Time, ip string) error {
	day := domain.FormatDate(date)
	kb := s.client.KeyBuilder
	dailyKey := kb.KeyVisitorsDaily(day)
	setKey := kb.KeyVisitorsSet(day)

	_, err := s.client.TxPipelined(ctx, "record_hit", func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, dailyKey)
		pipe.Expire(ctx, dailyKey, s.ttl)
		pipe.Incr(ctx, kb.KeyVisitorsTotal())
		if ip != "" {
			pipe.SAdd(ctx, setKey, ip)
			pipe.Expire(ctx, setKey, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record hit for %s: %w", day, err)
	}

	return nil
}

// DailyCounts reads both keys of a date in one pipeline
func (s *redisCounterStore) DailyCounts(ctx context.Context, date time.Time) (*domain.DailyCounts, error) {
	day := domain.FormatDate(date)
	dailyKey := s.client.KeyBuilder.KeyVisitorsDaily(day)
	setKey := s.client.KeyBuilder.KeyVisitorsSet(day)

	var (
		hitsCmd   *goredis.StringCmd
		uniqueCmd *goredis.IntCmd
		existsCmd *goredis.IntCmd
	)
	_, err := s.client.Pipelined(ctx, "daily_counts", func(pipe redis.Pipeliner) error {
		hitsCmd = pipe.Get(ctx, dailyKey)
		uniqueCmd = pipe.SCard(ctx, setKey)
		existsCmd = pipe.Exists(ctx, dailyKey, setKey)
		return nil
	})
	// Commands are never queued while the breaker is open
	if hitsCmd == nil {
		return nil, fmt.Errorf("failed to read counters for %s: %w", day, err)
	}

	// The pipeline error is only the first failed command and a missing daily
	// key (redis.Nil) would mask a later failure, so each command is checked
	hits, err := hitsCmd.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read hit counter for %s: %w", day, err)
	}
	unique, err := uniqueCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read unique visitors for %s: %w", day, err)
	}
	exists, err := existsCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check counters for %s: %w", day, err)
	}

	return &domain.DailyCounts{
		Date:    date,
		Hits:    hits,
		Unique:  unique,
		Present: exists > 0,
	}, nil
}

// TotalHits reads the global counter; a missing key is zero
func (s *redisCounterStore) TotalHits(ctx context.Context) (int64, error) {
	val, err := s.client.Get(ctx, s.client.KeyBuilder.KeyVisitorsTotal())
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read total hits: %w", err)
	}

	total, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse total hits: %w", err)
	}
	return total, nil
}
