package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailableSlots_EmptyWindow(t *testing.T) {
	d := NewDatabase(newTestDB(t))
	tracker := NewWindowTracker(d, 10, 10*time.Second)

	slots, err := tracker.AvailableSlots(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 10, slots)
}

func TestAvailableSlots_CountsOnlyInWindowExecutions(t *testing.T) {
	d := NewDatabase(newTestDB(t))
	tracker := NewWindowTracker(d, 10, 10*time.Second)
	now := time.Now()

	insertExecutedOrder(t, d, now.Add(-2*time.Second))
	insertExecutedOrder(t, d, now.Add(-9*time.Second))
	insertExecutedOrder(t, d, now.Add(-30*time.Second)) // aged out

	slots, err := tracker.AvailableSlots(now)
	require.NoError(t, err)
	assert.Equal(t, 8, slots)
}

func TestAvailableSlots_NeverNegative(t *testing.T) {
	d := NewDatabase(newTestDB(t))
	tracker := NewWindowTracker(d, 2, 10*time.Second)
	now := time.Now()

	for i := 0; i < 4; i++ {
		insertExecutedOrder(t, d, now.Add(-time.Duration(i+1)*time.Second))
	}

	slots, err := tracker.AvailableSlots(now)
	require.NoError(t, err)
	assert.Equal(t, 0, slots)
}

func TestNextWindowIn(t *testing.T) {
	d := NewDatabase(newTestDB(t))
	tracker := NewWindowTracker(d, 1, 10*time.Second)
	now := time.Now()

	insertExecutedOrder(t, d, now.Add(-2*time.Second))

	remaining, err := tracker.NextWindowIn(now)
	require.NoError(t, err)
	// Oldest execution ages out of the 10s window in roughly 8s.
	assert.InDelta(t, 8.0, remaining.Seconds(), 0.1)
}

func TestNextWindowIn_EmptyWindow(t *testing.T) {
	d := NewDatabase(newTestDB(t))
	tracker := NewWindowTracker(d, 1, 10*time.Second)

	remaining, err := tracker.NextWindowIn(time.Now())
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestEnsureWindow_CreatesAndSupersedes(t *testing.T) {
	d := NewDatabase(newTestDB(t))
	tracker := NewWindowTracker(d, 10, 10*time.Second)
	now := time.Now()

	_, err := tracker.AvailableSlots(now)
	require.NoError(t, err)

	window, err := d.LatestWindow()
	require.NoError(t, err)
	require.NotNil(t, window)
	assert.WithinDuration(t, now.Add(-10*time.Second), window.WindowStart, time.Second)
	assert.WithinDuration(t, now, window.WindowEnd, time.Second)

	// A later call past the window's span supersedes it; the old row stays.
	later := now.Add(30 * time.Second)
	_, err = tracker.AvailableSlots(later)
	require.NoError(t, err)

	latest, err := d.LatestWindow()
	require.NoError(t, err)
	assert.WithinDuration(t, later, latest.WindowEnd, time.Second)

	var count int64
	require.NoError(t, d.db.Table("rate_limit_windows").Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestRefreshCount(t *testing.T) {
	d := NewDatabase(newTestDB(t))
	tracker := NewWindowTracker(d, 10, 10*time.Second)
	now := time.Now()

	insertExecutedOrder(t, d, now.Add(-time.Second))
	_, err := tracker.AvailableSlots(now)
	require.NoError(t, err)

	require.NoError(t, tracker.RefreshCount(now))

	window, err := d.LatestWindow()
	require.NoError(t, err)
	assert.Equal(t, 1, window.OrderCount)
}
