// Package ratelimit provides a sliding-window request limiter shared by all
// goroutines that call an external provider.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// SlidingWindow admits at most Limit calls in any rolling Window.
//
// The timestamps of recent admissions are shared mutable state guarded by mu.
// It is safe for concurrent use.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time

	now func() time.Time
}

func NewSlidingWindow(limit int, window time.Duration) (*SlidingWindow, error) {
	if limit <= 0 {
		return nil, errors.New("sliding window: limit must be positive")
	}
	if window <= 0 {
		return nil, errors.New("sliding window: window must be positive")
	}

	return &SlidingWindow{
		limit:  limit,
		window: window,
		stamps: make([]time.Time, 0, limit),
		now:    time.Now,
	}, nil
}

// Wait blocks until a call may be issued, then records it.
// It returns ctx.Err() if the context ends first.
func (w *SlidingWindow) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait := w.reserve()
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve records a call and returns 0 when the window has room; otherwise it
// returns how long until the oldest call leaves the window.
func (w *SlidingWindow) reserve() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)

	drop := 0
	for drop < len(w.stamps) && !w.stamps[drop].After(cutoff) {
		drop++
	}
	if drop > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[drop:]...)
	}

	if len(w.stamps) < w.limit {
		w.stamps = append(w.stamps, now)
		return 0
	}

	return w.stamps[0].Add(w.window).Sub(now)
}

// InFlight returns how many calls are currently counted in the window.
func (w *SlidingWindow) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-w.window)
	n := 0
	for _, s := range w.stamps {
		if s.After(cutoff) {
			n++
		}
	}
	return n
}
