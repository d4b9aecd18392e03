package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"lwbackup/internal/config"
)

// Daily fires once per day at a fixed local wall-clock time.
type Daily struct {
	hour, minute int
	loc          *time.Location
	now          func() time.Time
	after        func(time.Duration) <-chan time.Time
}

// NewDaily parses an "HH:MM" time of day in the local time zone.
func NewDaily(at string) (*Daily, error) {
	hour, minute, err := config.ParseClock(at)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return &Daily{hour: hour, minute: minute, loc: time.Local, now: time.Now, after: time.After}, nil
}

// Next returns the first fire time strictly after now.
func (d *Daily) Next(now time.Time) time.Time {
	now = now.In(d.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), d.hour, d.minute, 0, 0, d.loc)
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, d.hour, d.minute, 0, 0, d.loc)
	}
	return next
}

// Run calls fn at every fire time until ctx is cancelled. fn runs on the
// scheduler goroutine, so a slow run delays the next tick instead of
// overlapping it.
func (d *Daily) Run(ctx context.Context, fn func(ctx context.Context)) {
	for {
		next := d.Next(d.now())
		log.Info().Time("next_run", next).Msg("backup scheduled")
		select {
		case <-ctx.Done():
			return
		case <-d.after(time.Until(next)):
		}
		fn(ctx)
	}
}
