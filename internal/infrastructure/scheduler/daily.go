package scheduler

import (
	"context"
	"sync"
	"time"

	"DigestRanker/internal/ports"
)

// DailyScheduler fires a job once a day at a fixed local time.
type DailyScheduler struct {
	hour, minute int
	loc          *time.Location
	skipWeekends bool

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*DailyScheduler)(nil)

// NewDailyScheduler builds a scheduler firing at hour:minute in loc.
func NewDailyScheduler(hour, minute int, loc *time.Location, skipWeekends bool) *DailyScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &DailyScheduler{
		hour:         hour,
		minute:       minute,
		loc:          loc,
		skipWeekends: skipWeekends,
		now:          time.Now,
		after:        time.After,
	}
}

// NextRun returns the first slot strictly after from.
func (d *DailyScheduler) NextRun(from time.Time) time.Time {
	local := from.In(d.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), d.hour, d.minute, 0, 0, d.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	for d.skipWeekends && isWeekend(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start launches the loop; a second Start while running is a no-op.
func (d *DailyScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	go d.loop(ctx, job, d.stop, d.done)
	return nil
}

func (d *DailyScheduler) loop(ctx context.Context, job func(time.Time), stop, done chan struct{}) {
	defer close(done)
	for {
		next := d.NextRun(d.now())
		select {
		case <-d.after(next.Sub(d.now())):
			job(next)
		case <-ctx.Done():
			return
		case <-stop:
			return
		}
	}
}

// Stop halts the loop and waits for a running job to return.
func (d *DailyScheduler) Stop(ctx context.Context) error {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
