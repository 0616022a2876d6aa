package queue

import (
	"time"

	"github.com/hivetrade/oms-api/internal/types"
)

// WindowTracker accounts for orders executed within a rolling window
// against the exchange-wide rate limit. The count is always recomputed
// from execution records, so concurrent writers can never leave a stale
// counter authoritative; window rows exist for audit history only.
type WindowTracker struct {
	db       *Database
	limit    int
	duration time.Duration
}

func NewWindowTracker(db *Database, limit int, duration time.Duration) *WindowTracker {
	return &WindowTracker{
		db:       db,
		limit:    limit,
		duration: duration,
	}
}

// Used returns the count of orders executed within the window ending at now.
func (t *WindowTracker) Used(now time.Time) (int, error) {
	return t.db.CountExecutedBetween(now.Add(-t.duration), now)
}

// AvailableSlots returns how many orders may still be executed in the
// current window. Never negative.
func (t *WindowTracker) AvailableSlots(now time.Time) (int, error) {
	if err := t.ensureWindow(now); err != nil {
		return 0, err
	}

	used, err := t.Used(now)
	if err != nil {
		return 0, err
	}

	slots := t.limit - used
	if slots < 0 {
		slots = 0
	}
	return slots, nil
}

// NextWindowIn returns how long until the oldest in-window execution ages
// out and a slot frees up. Zero when the window is empty.
func (t *WindowTracker) NextWindowIn(now time.Time) (time.Duration, error) {
	oldest, err := t.db.OldestExecutionSince(now.Add(-t.duration))
	if err != nil {
		return 0, err
	}
	if oldest == nil {
		return 0, nil
	}

	remaining := oldest.Add(t.duration).Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// RefreshCount rewrites the current window row's count from execution
// records. Best-effort: a failure here is self-healed by the next
// AvailableSlots call recomputing from scratch.
func (t *WindowTracker) RefreshCount(now time.Time) error {
	window, err := t.db.LatestWindow()
	if err != nil {
		return err
	}
	if window == nil {
		return nil
	}

	used, err := t.Used(now)
	if err != nil {
		return err
	}
	return t.db.UpdateWindowCount(window.ID, used)
}

// ensureWindow lazily maintains the authoritative window row: when no
// window covers now, a fresh one spanning [now - duration, now) supersedes
// the previous one.
func (t *WindowTracker) ensureWindow(now time.Time) error {
	window, err := t.db.LatestWindow()
	if err != nil {
		return err
	}

	if window != nil && !window.WindowStart.Before(now.Add(-t.duration)) {
		return nil
	}

	return t.db.CreateWindow(&types.RateLimitWindow{
		WindowStart: now.Add(-t.duration),
		WindowEnd:   now,
	})
}
