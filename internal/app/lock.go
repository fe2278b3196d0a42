package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"ecommerce-analytics-pipeline/internal/config"
	"ecommerce-analytics-pipeline/pkg/logger"
)

// ErrLockHeld means another run owns the lock.
var ErrLockHeld = errors.New("another pipeline run is in progress")

// Release gives a lock back.
type Release func(ctx context.Context) error

// Locker guards against concurrent runs.
type Locker interface {
	Acquire(ctx context.Context) (Release, error)
	Close() error
}

// NewLocker returns a Redis lock when an address is configured and an
// in-process lock otherwise.
func NewLocker(ctx context.Context, cfg config.LockConfig, log *logger.Logger) (Locker, error) {
	if cfg.RedisAddr == "" {
		return NewLocalLock(), nil
	}
	return NewRedisLock(ctx, cfg, log)
}

// LocalLock only guards runs within this process.
type LocalLock struct {
	mu   sync.Mutex
	held bool
}

// NewLocalLock returns an unheld lock.
func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

// Acquire takes the lock or fails with ErrLockHeld.
func (l *LocalLock) Acquire(context.Context) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, ErrLockHeld
	}
	l.held = true

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			l.held = false
			l.mu.Unlock()
		})
		return nil
	}, nil
}

func (l *LocalLock) Close() error { return nil }

// releaseScript deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a SET NX PX lock shared by every runner on the same Redis.
// The TTL bounds how long a crashed runner can block others.
type RedisLock struct {
	rdb *goredis.Client
	key string
	ttl time.Duration
	log *logger.Logger
}

// NewRedisLock connects and pings Redis.
func NewRedisLock(ctx context.Context, cfg config.LockConfig, log *logger.Logger) (*RedisLock, error) {
	if log == nil {
		log = logger.NewNop()
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.RedisAddr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisLock{
		rdb: rdb,
		key: cfg.Key,
		ttl: cfg.TTL,
		log: log.With("service", "RedisLock"),
	}, nil
}

// Acquire sets the key if absent. A held key yields ErrLockHeld.
func (l *RedisLock) Acquire(ctx context.Context) (Release, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	l.log.Debug("lock acquired", "key", l.key, "ttl", l.ttl)

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("redis unlock: %w", err)
		}
		l.log.Debug("lock released", "key", l.key)
		return nil
	}, nil
}

// Close closes the Redis client.
func (l *RedisLock) Close() error {
	return l.rdb.Close()
}
