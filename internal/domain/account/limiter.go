package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginWindow is how long failed attempts are remembered.
const LoginWindow = 15 * time.Minute

// Limiter throttles login attempts per username.
type Limiter interface {
	// Check records an attempt and returns ErrTooManyAttempts once the
	// limit for the window is exceeded.
	Check(ctx context.Context, username string) error
	Reset(ctx context.Context, username string) error
}

// RedisClient is the subset of redis.Cmdable the limiter uses.
type RedisClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisLimiter counts attempts in Redis so the limit holds across processes.
type RedisLimiter struct {
	client RedisClient
	max    int64
	window time.Duration
}

func NewRedisLimiter(client RedisClient, max int) *RedisLimiter {
	return &RedisLimiter{client: client, max: int64(max), window: LoginWindow}
}

func loginKey(username string) string {
	return fmt.Sprintf("login_attempts:%s", username)
}

func (r *RedisLimiter) Check(ctx context.Context, username string) error {
	key := loginKey(username)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("count login attempt: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			return fmt.Errorf("expire login attempts: %w", err)
		}
	}
	if count > r.max {
		return ErrTooManyAttempts
	}
	return nil
}

func (r *RedisLimiter) Reset(ctx context.Context, username string) error {
	return r.client.Del(ctx, loginKey(username)).Err()
}

// MemoryLimiter is a single-process Limiter used when no Redis is
// configured.
type MemoryLimiter struct {
	mu       sync.Mutex
	max      int
	window   time.Duration
	attempts map[string]*attempts
	now      func() time.Time
}

type attempts struct {
	count   int
	expires time.Time
}

func NewMemoryLimiter(max int) *MemoryLimiter {
	return &MemoryLimiter{max: max, window: LoginWindow, attempts: make(map[string]*attempts), now: time.Now}
}

func (m *MemoryLimiter) Check(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	a, ok := m.attempts[username]
	if !ok || now.After(a.expires) {
		a = &attempts{expires: now.Add(m.window)}
		m.attempts[username] = a
	}
	a.count++
	if a.count > m.max {
		return ErrTooManyAttempts
	}
	return nil
}

func (m *MemoryLimiter) Reset(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, username)
	return nil
}
