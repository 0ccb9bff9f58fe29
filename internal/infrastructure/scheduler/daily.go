package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Daily fires a job once per day at a fixed local time. Backed by robfig/cron
// so the next occurrence is recomputed after every run, DST included.
type Daily struct {
	cron   *cron.Cron
	spec   string
	logger *slog.Logger
}

// NewDaily builds a scheduler for the given clock time in the given location.
// Invalid inputs were already normalized by the configuration layer.
func NewDaily(hour, minute, second int, loc *time.Location, logger *slog.Logger) *Daily {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Daily{
		cron:   cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
		spec:   fmt.Sprintf("%d %d %d * * *", second, minute, hour),
		logger: logger,
	}
}

// Start registers the job and begins the schedule.
func (d *Daily) Start(job func()) error {
	entryID, err := d.cron.AddFunc(d.spec, job)
	if err != nil {
		return fmt.Errorf("register daily job: %w", err)
	}
	d.cron.Start()

	if d.logger != nil {
		next := d.cron.Entry(entryID).Next
		d.logger.Info("daily brief scheduled", "next_run", next.Format(time.RFC3339))
	}
	return nil
}

// Stop halts the schedule and waits for an in-flight job to finish, or for
// ctx to expire, whichever comes first.
func (d *Daily) Stop(ctx context.Context) error {
	drained := d.cron.Stop()
	select {
	case <-drained.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
