// Package locks provides owner-scoped exclusive locks over named resources.
package locks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultTTL      = 30 * time.Second
	defaultWait     = 5 * time.Second
	retryInterval   = 20 * time.Millisecond
	releaseDeadline = 2 * time.Second
)

var (
	// ErrNotHeld is returned by Get when nobody holds the resource.
	ErrNotHeld = errors.New("lock not held")
	// ErrWaitTimeout is returned by WithLock when the lock stayed busy.
	ErrWaitTimeout = errors.New("lock wait timed out")
)

// Lock captures the current lock ownership state.
type Lock struct {
	Resource   string    `json:"resource"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Store manages resource locks. Acquire by the current owner refreshes the TTL.
type Store interface {
	Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (*Lock, bool, error)
	Release(ctx context.Context, resource, owner string) (bool, error)
	Renew(ctx context.Context, resource, owner string, ttl time.Duration) (*Lock, bool, error)
	Get(ctx context.Context, resource string) (*Lock, error)
}

// WithLock runs fn while holding resource, polling until the lock frees up,
// ctx ends, or the default wait elapses when ctx carries no deadline.
func WithLock(ctx context.Context, store Store, resource, owner string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if store == nil {
		return fmt.Errorf("lock store unavailable")
	}
	waitCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, defaultWait)
		defer cancel()
	}

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		_, ok, err := store.Acquire(waitCtx, resource, owner, ttl)
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", resource, err)
		}
		if ok {
			break
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s", ErrWaitTimeout, resource)
		case <-ticker.C:
		}
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseDeadline)
		defer cancel()
		_, _ = store.Release(releaseCtx, resource, owner)
	}()
	return fn(ctx)
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}
