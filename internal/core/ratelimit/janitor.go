package ratelimit

import (
	"context"
	"time"
)

// Janitor periodically sweeps expired buckets out of a Sweeper.
type Janitor struct {
	Sweeper  Sweeper
	Interval time.Duration
	// Grace keeps buckets around for a while after their window ended.
	Grace   time.Duration
	Clock   func() time.Time
	OnSweep func(removed int, err error)
}

// RunOnce performs a single sweep and returns the number of removed buckets.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	if j == nil || j.Sweeper == nil {
		return 0, nil
	}
	now := time.Now().UTC()
	if j.Clock != nil {
		now = j.Clock()
	}
	removed, err := j.Sweeper.Sweep(ctx, now.Add(-j.Grace))
	if j.OnSweep != nil {
		j.OnSweep(removed, err)
	}
	return removed, err
}

// Start runs the sweep loop in a goroutine until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) {
	if j == nil || j.Sweeper == nil || j.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(j.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = j.RunOnce(ctx)
			}
		}
	}()
}
