// Package ratelimit throttles calls to the vision provider with a sliding window.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds limiter settings.
type Config struct {
	MaxRequests  int           // Requests allowed per window (default: 10)
	Window       time.Duration // Window length (default: 60s)
	SafetyBuffer time.Duration // Extra wait added after the oldest entry expires (default: 1s)
}

// DefaultConfig stays below the provider's free tier of 15 requests per minute.
func DefaultConfig() Config {
	return Config{
		MaxRequests:  10,
		Window:       60 * time.Second,
		SafetyBuffer: time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRequests <= 0 {
		c.MaxRequests = d.MaxRequests
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.SafetyBuffer < 0 {
		c.SafetyBuffer = 0
	}
	return c
}

// Status is a point-in-time view of the quota.
type Status struct {
	Limit     int           `json:"limit"`
	Remaining int           `json:"remaining"`
	ResetIn   time.Duration `json:"reset_in"`
}

// RequestLimiter is implemented by the in-process and Redis-backed limiters.
type RequestLimiter interface {
	// Remaining returns how many calls may still be issued in the current window.
	Remaining(ctx context.Context) (int, error)
	// Record logs one call attempt at the current time.
	Record(ctx context.Context) error
	CanMakeRequest(ctx context.Context) (bool, error)
	// WaitIfNeeded blocks until a slot is free and returns the time slept.
	// It does not take the slot; concurrent callers should use Acquire.
	WaitIfNeeded(ctx context.Context) (time.Duration, error)
	// Acquire blocks until a slot is free and records the call in the same
	// step, so concurrent callers never share one free slot.
	Acquire(ctx context.Context) (time.Duration, error)
	TimeUntilReset(ctx context.Context) (time.Duration, error)
	Status(ctx context.Context) (Status, error)
}

// Limiter keeps the request log in process memory.
type Limiter struct {
	mu     sync.Mutex
	cfg    Config
	clock  Clock
	log    []time.Time // ascending
	logger *zap.Logger
}

var _ RequestLimiter = (*Limiter)(nil)

// New creates an in-process limiter. A nil clock uses RealClock.
func New(cfg Config, clock Clock, logger *zap.Logger) *Limiter {
	if clock == nil {
		clock = RealClock{}
	}
	return &Limiter{
		cfg:    cfg.withDefaults(),
		clock:  clock,
		logger: logger.Named("rate-limiter"),
	}
}

// prune drops entries that have left the window. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.cfg.Window)
	i := 0
	for i < len(l.log) && !l.log[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.log = append(l.log[:0], l.log[i:]...)
	}
}

func (l *Limiter) remainingLocked(now time.Time) int {
	l.prune(now)
	remaining := l.cfg.MaxRequests - len(l.log)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (l *Limiter) resetLocked(now time.Time) time.Duration {
	l.prune(now)
	if len(l.log) == 0 {
		return 0
	}
	d := l.log[0].Add(l.cfg.Window).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func (l *Limiter) Remaining(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remainingLocked(l.clock.Now()), nil
}

func (l *Limiter) Record(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	l.prune(now)
	l.log = append(l.log, now)
	return nil
}

func (l *Limiter) CanMakeRequest(ctx context.Context) (bool, error) {
	n, err := l.Remaining(ctx)
	return n > 0, err
}

func (l *Limiter) TimeUntilReset(ctx context.Context) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resetLocked(l.clock.Now()), nil
}

func (l *Limiter) Status(ctx context.Context) (Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	return Status{
		Limit:     l.cfg.MaxRequests,
		Remaining: l.remainingLocked(now),
		ResetIn:   l.resetLocked(now),
	}, nil
}

// WaitIfNeeded returns 0 immediately while under quota. Otherwise it sleeps
// until the oldest entry leaves the window plus the safety buffer. The lock is
// not held while sleeping.
func (l *Limiter) WaitIfNeeded(ctx context.Context) (time.Duration, error) {
	return l.waitForSlot(ctx, false)
}

// Acquire is WaitIfNeeded followed by Record under a single lock hold.
func (l *Limiter) Acquire(ctx context.Context) (time.Duration, error) {
	return l.waitForSlot(ctx, true)
}

func (l *Limiter) waitForSlot(ctx context.Context, take bool) (time.Duration, error) {
	var waited time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return waited, err
		}
		l.mu.Lock()
		now := l.clock.Now()
		if l.remainingLocked(now) > 0 {
			if take {
				l.log = append(l.log, now)
			}
			l.mu.Unlock()
			return waited, nil
		}
		wait := l.resetLocked(now) + l.cfg.SafetyBuffer
		l.mu.Unlock()

		l.logger.Info("Rate limit reached, waiting",
			zap.Duration("wait", wait),
			zap.Int("limit", l.cfg.MaxRequests))

		if err := l.clock.Sleep(ctx, wait); err != nil {
			return waited, err
		}
		waited += wait
	}
}
