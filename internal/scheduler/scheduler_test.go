package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextSameDayAndRollover(t *testing.T) {
	d, err := NewDaily("02:30")
	require.NoError(t, err)

	before := time.Date(2024, time.June, 10, 1, 0, 0, 0, time.Local)
	assert.Equal(t, time.Date(2024, time.June, 10, 2, 30, 0, 0, time.Local), d.Next(before))

	exact := time.Date(2024, time.June, 10, 2, 30, 0, 0, time.Local)
	assert.Equal(t, time.Date(2024, time.June, 11, 2, 30, 0, 0, time.Local), d.Next(exact))

	endOfMonth := time.Date(2024, time.June, 30, 23, 0, 0, 0, time.Local)
	assert.Equal(t, time.Date(2024, time.July, 1, 2, 30, 0, 0, time.Local), d.Next(endOfMonth))
}

func TestMidnightSchedule(t *testing.T) {
	d, err := NewDaily("00:00")
	require.NoError(t, err)
	now := time.Date(2024, time.December, 31, 12, 0, 0, 0, time.Local)
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.Local), d.Next(now))
}

func TestNewDailyRejectsGarbage(t *testing.T) {
	_, err := NewDaily("noon")
	assert.Error(t, err)
}

func TestRunFiresUntilCancelled(t *testing.T) {
	d, err := NewDaily("00:00")
	require.NoError(t, err)

	ticks := make(chan time.Time)
	d.after = func(time.Duration) <-chan time.Time { return ticks }

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		d.Run(ctx, func(context.Context) { calls.Add(1) })
		close(done)
	}()

	ticks <- time.Now()
	ticks <- time.Now()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
	assert.LessOrEqual(t, calls.Load(), int32(2))
}
