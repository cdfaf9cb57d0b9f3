// Package resource bounds the engine's background work: concurrent
// recomputation jobs and disk cache write throughput.
package resource

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MaxBackgroundWorkers caps concurrent background jobs (pattern
	// recomputation, cache compaction). If 0, defaults to 1.
	MaxBackgroundWorkers int64

	// IOLimitBytesPerSec caps disk cache write throughput.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages background concurrency and I/O budget.
type Controller struct {
	bgSem     *semaphore.Weighted
	ioLimiter *rate.Limiter
}

// NewController creates a controller from cfg.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundWorkers <= 0 {
		cfg.MaxBackgroundWorkers = 1
	}

	c := &Controller{
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundWorkers),
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	return c
}

// AcquireBackground blocks until a background worker slot is free.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	return c.bgSem.Acquire(ctx, 1)
}

// TryAcquireBackground acquires a slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	return c.bgSem.TryAcquire(1)
}

// ReleaseBackground returns a background worker slot.
func (c *Controller) ReleaseBackground() {
	c.bgSem.Release(1)
}

// WaitIO blocks until n bytes of I/O budget are available.
func (c *Controller) WaitIO(ctx context.Context, n int) error {
	if c.ioLimiter == nil || n <= 0 {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := c.ioLimiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
