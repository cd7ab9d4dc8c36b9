package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitService limits requests per key with fixed windows counted in
// Redis. A service without a client allows everything.
type RateLimitService struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimitService allows limit requests per key in each window
func NewRateLimitService(client *redis.Client, limit int, window time.Duration) *RateLimitService {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimitService{
		client: client,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
	Type       string // scope that was exceeded, e.g. "auth"
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// Enabled reports whether limits are enforced
func (s *RateLimitService) Enabled() bool {
	return s != nil && s.client != nil
}

// Allow counts one request for key within scope. It returns *RateLimitError
// once the window's limit is exceeded, or a plain error when Redis fails.
func (s *RateLimitService) Allow(ctx context.Context, scope, key string) error {
	if !s.Enabled() {
		return nil
	}

	now := s.now()
	windowStart := now.Truncate(s.window)
	redisKey := fmt.Sprintf("rl:%s:%s:%d", scope, key, windowStart.Unix())

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, s.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to check rate limit: %w", err)
	}

	if incr.Val() > int64(s.limit) {
		retryAfter := windowStart.Add(s.window)
		return &RateLimitError{
			Message:    fmt.Sprintf("Too many requests. Please try again after %s", retryAfter.UTC().Format("15:04:05")),
			RetryAfter: retryAfter,
			Type:       scope,
		}
	}
	return nil
}
