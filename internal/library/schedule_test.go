package library

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewSchedulerValidates(t *testing.T) {
	noop := func(context.Context) error { return nil }
	tests := []struct {
		name    string
		jobs    []Job
		wantLen int
		wantErr bool
	}{
		{"valid", []Job{{Name: "a", Schedule: "0 5 * * *", Run: noop}}, 1, false},
		{"empty schedule dropped", []Job{{Name: "a", Schedule: "", Run: noop}}, 0, false},
		{"invalid", []Job{{Name: "a", Schedule: "every day", Run: noop}}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScheduler(tt.jobs...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && s.Len() != tt.wantLen {
				t.Fatalf("Len = %d, want %d", s.Len(), tt.wantLen)
			}
		})
	}
}

func TestSchedulerRunsDueJob(t *testing.T) {
	var runs atomic.Int32
	s, err := NewScheduler(Job{
		Name:     "tick",
		Schedule: "* * * * *",
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Pretend the clock is just before a minute boundary.
	s.now = func() time.Time { return time.Now().Truncate(time.Minute).Add(-time.Second) }

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go func() {
		for runs.Load() == 0 && ctx.Err() == nil {
			time.Sleep(10 * time.Millisecond)
		}
		cancel()
	}()
	s.Run(ctx)

	if runs.Load() == 0 {
		t.Fatal("job never ran")
	}
}
