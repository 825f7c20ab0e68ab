package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultSafetyMargin is added to every backoff wait so a job does not wake
// exactly at the deadline and race the upstream server.
const DefaultSafetyMargin = 100 * time.Millisecond

// Clock holds the process-wide "no new attempts before T" deadline.
// It is shared by reference between all download jobs and is safe for
// concurrent use. The deadline only ever moves forward.
type Clock struct {
	mu          sync.Mutex
	pausedUntil time.Time
	margin      time.Duration
	now         func() time.Time
	log         *logrus.Entry
}

// NewClock creates a Clock with no active pause.
func NewClock(margin time.Duration, log *logrus.Entry) *Clock {
	if margin < 0 {
		margin = 0
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Clock{
		margin: margin,
		now:    time.Now,
		log:    log.WithField("component", "backoff_clock"),
	}
}

// PausedUntil returns the current deadline. The zero time means no pause
// has ever been requested.
func (c *Clock) PausedUntil() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pausedUntil
}

// remaining reports how long until the deadline passes.
func (c *Clock) remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pausedUntil.Sub(c.now())
}

// WaitIfPaused blocks until the deadline has passed. The deadline is
// re-read after every wake-up because another job may have pushed it out
// in the meantime.
func (c *Clock) WaitIfPaused(ctx context.Context) error {
	for {
		remaining := c.remaining()
		if remaining <= 0 {
			return nil
		}
		if err := Sleep(ctx, remaining+c.margin); err != nil {
			return err
		}
	}
}

// Extend pauses all jobs for at least d from now. An existing pause that
// already reaches further is left untouched. It returns the resulting
// deadline and whether this call moved it.
func (c *Clock) Extend(d time.Duration) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	candidate := c.now().Add(d)
	if !candidate.After(c.pausedUntil) {
		return c.pausedUntil, false
	}
	c.pausedUntil = candidate

	c.log.WithFields(logrus.Fields{
		"pause_seconds": d.Seconds(),
		"paused_until":  candidate.Format(time.RFC3339Nano),
	}).Warn("Global backoff triggered, pausing all image requests")

	return candidate, true
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
