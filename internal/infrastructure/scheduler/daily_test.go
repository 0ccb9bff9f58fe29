package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestDailyStartAndStop(t *testing.T) {
	t.Parallel()

	sched := NewDaily(9, 0, 0, time.UTC, nil)
	if err := sched.Start(func() {}); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestDailySpecAcceptsFullClockRange(t *testing.T) {
	t.Parallel()

	clocks := [][3]int{{0, 0, 0}, {23, 59, 59}, {7, 30, 0}}
	for _, clock := range clocks {
		sched := NewDaily(clock[0], clock[1], clock[2], time.UTC, nil)
		if err := sched.Start(func() {}); err != nil {
			t.Fatalf("start with clock %v: %v", clock, err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := sched.Stop(ctx); err != nil {
			t.Fatalf("stop with clock %v: %v", clock, err)
		}
		cancel()
	}
}
