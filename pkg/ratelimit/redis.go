package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRedisKey is the sorted set holding the shared request log.
const DefaultRedisKey = "nivaasika:ratelimit:vision"

// RedisLimiter shares one quota between processes. Each call attempt is a
// sorted-set member scored by its Unix-millisecond timestamp.
type RedisLimiter struct {
	client *redis.Client
	key    string
	cfg    Config
	clock  Clock
	logger *zap.Logger
}

var _ RequestLimiter = (*RedisLimiter)(nil)

// acquireScript prunes the log, then either adds the caller (returning -1) or
// returns the oldest score so the caller knows how long to sleep.
//
// KEYS[1] log key
// ARGV[1] now (ms), ARGV[2] window (ms), ARGV[3] max requests,
// ARGV[4] member, ARGV[5] ttl (ms)
var acquireScript = redis.NewScript(`
local now = tonumber(ARGV[1])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - tonumber(ARGV[2]))
if redis.call('ZCARD', KEYS[1]) < tonumber(ARGV[3]) then
	redis.call('ZADD', KEYS[1], now, ARGV[4])
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
	return -1
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return tonumber(oldest[2])
`)

// NewRedisLimiter creates a limiter backed by client. An empty key uses DefaultRedisKey.
func NewRedisLimiter(client *redis.Client, key string, cfg Config, clock Clock, logger *zap.Logger) *RedisLimiter {
	if key == "" {
		key = DefaultRedisKey
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &RedisLimiter{
		client: client,
		key:    key,
		cfg:    cfg.withDefaults(),
		clock:  clock,
		logger: logger.Named("redis-rate-limiter"),
	}
}

func (l *RedisLimiter) prune(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-l.cfg.Window).UnixMilli()
	if err := l.client.ZRemRangeByScore(ctx, l.key, "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return fmt.Errorf("prune request log: %w", err)
	}
	return nil
}

func (l *RedisLimiter) count(ctx context.Context, now time.Time) (int64, error) {
	if err := l.prune(ctx, now); err != nil {
		return 0, err
	}
	n, err := l.client.ZCard(ctx, l.key).Result()
	if err != nil {
		return 0, fmt.Errorf("count request log: %w", err)
	}
	return n, nil
}

func (l *RedisLimiter) Remaining(ctx context.Context) (int, error) {
	n, err := l.count(ctx, l.clock.Now())
	if err != nil {
		return 0, err
	}
	remaining := l.cfg.MaxRequests - int(n)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

func (l *RedisLimiter) Record(ctx context.Context) error {
	now := l.clock.Now()
	member := strconv.FormatInt(now.UnixMilli(), 10) + ":" + uuid.NewString()

	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, l.key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
		pipe.Expire(ctx, l.key, l.cfg.Window+l.cfg.SafetyBuffer)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record request: %w", err)
	}
	return nil
}

func (l *RedisLimiter) CanMakeRequest(ctx context.Context) (bool, error) {
	n, err := l.Remaining(ctx)
	return n > 0, err
}

func (l *RedisLimiter) TimeUntilReset(ctx context.Context) (time.Duration, error) {
	now := l.clock.Now()
	if err := l.prune(ctx, now); err != nil {
		return 0, err
	}
	oldest, err := l.client.ZRangeWithScores(ctx, l.key, 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("read oldest request: %w", err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}
	resetAt := time.UnixMilli(int64(oldest[0].Score)).Add(l.cfg.Window)
	d := resetAt.Sub(now)
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

func (l *RedisLimiter) Status(ctx context.Context) (Status, error) {
	remaining, err := l.Remaining(ctx)
	if err != nil {
		return Status{}, err
	}
	reset, err := l.TimeUntilReset(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{Limit: l.cfg.MaxRequests, Remaining: remaining, ResetIn: reset}, nil
}

func (l *RedisLimiter) WaitIfNeeded(ctx context.Context) (time.Duration, error) {
	var waited time.Duration
	for {
		remaining, err := l.Remaining(ctx)
		if err != nil {
			return waited, err
		}
		if remaining > 0 {
			return waited, nil
		}
		reset, err := l.TimeUntilReset(ctx)
		if err != nil {
			return waited, err
		}
		wait := reset + l.cfg.SafetyBuffer

		l.logger.Info("Shared rate limit reached, waiting",
			zap.String("key", l.key),
			zap.Duration("wait", wait))

		if err := l.clock.Sleep(ctx, wait); err != nil {
			return waited, err
		}
		waited += wait
	}
}

// Acquire runs the check and the insert as one script so processes sharing
// the key cannot both take the last slot.
func (l *RedisLimiter) Acquire(ctx context.Context) (time.Duration, error) {
	var waited time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return waited, err
		}
		now := l.clock.Now()
		member := strconv.FormatInt(now.UnixMilli(), 10) + ":" + uuid.NewString()
		oldest, err := acquireScript.Run(ctx, l.client, []string{l.key},
			now.UnixMilli(),
			l.cfg.Window.Milliseconds(),
			l.cfg.MaxRequests,
			member,
			(l.cfg.Window + l.cfg.SafetyBuffer).Milliseconds(),
		).Int64()
		if err != nil {
			return waited, fmt.Errorf("acquire request slot: %w", err)
		}
		if oldest < 0 {
			return waited, nil
		}

		reset := time.UnixMilli(oldest).Add(l.cfg.Window).Sub(now)
		if reset < 0 {
			reset = 0
		}
		wait := reset + l.cfg.SafetyBuffer

		l.logger.Info("Shared rate limit reached, waiting",
			zap.String("key", l.key),
			zap.Duration("wait", wait))

		if err := l.clock.Sleep(ctx, wait); err != nil {
			return waited, err
		}
		waited += wait
	}
}
