package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pulse/internal/session"
)

const lockPrefix = "pulse:session-lock:"

// RedisLocks serializes per-session cycles across processes with SET NX
// tokens. It implements session.Locker so a multi-instance deployment can
// swap it for the in-process manager without touching the engine.
type RedisLocks struct {
	client *redis.Client

	// TTL bounds how long a crashed holder can wedge a session.
	TTL time.Duration

	// Poll is the retry cadence under the Wait policy.
	Poll time.Duration
}

// NewRedisLocks builds the locker from a redis URL.
func NewRedisLocks(url string) (*RedisLocks, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisLocks{
		client: redis.NewClient(opt),
		TTL:    2 * time.Minute,
		Poll:   100 * time.Millisecond,
	}, nil
}

// Close releases the client.
func (r *RedisLocks) Close() error { return r.client.Close() }

func (r *RedisLocks) Acquire(ctx context.Context, id string, policy session.LockPolicy) error {
	ok, err := r.tryAcquire(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if policy != session.Wait {
		return fmt.Errorf("%w: %s", session.ErrSessionBusy, id)
	}

	ticker := time.NewTicker(r.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("acquire session lock %s: %w", id, ctx.Err())
		case <-ticker.C:
			ok, err := r.tryAcquire(ctx, id)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
	}
}

func (r *RedisLocks) TryAcquire(id string) bool {
	ok, err := r.tryAcquire(context.Background(), id)
	return err == nil && ok
}

func (r *RedisLocks) Release(id string) {
	r.client.Del(context.Background(), lockPrefix+id)
}

func (r *RedisLocks) tryAcquire(ctx context.Context, id string) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockPrefix+id, "held", r.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock %s: %w", id, err)
	}
	return ok, nil
}
