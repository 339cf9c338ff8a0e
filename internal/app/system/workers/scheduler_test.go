package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/peerfinder/internal/app/system/tasks"
	"go.uber.org/zap"
)

func TestScheduler_RunsJobsUntilStopped(t *testing.T) {
	var runs atomic.Int32
	done := make(chan struct{}, 16)
	job := tasks.Job{
		Name:     "count",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			select {
			case done <- struct{}{}:
			default:
			}
			return nil
		},
	}
	s := NewScheduler(zap.NewNop(), job, tasks.Job{Name: "disabled", Interval: 0, Run: job.Run})
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (zero interval skipped)", s.Len())
	}
	s.Start()

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("job did not run")
		}
	}
	s.Stop()
	s.Stop() // idempotent

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != after {
		t.Error("job ran after Stop")
	}
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	started := make(chan struct{}, 1)
	finished := make(chan error, 1)
	job := tasks.Job{
		Name:     "slow",
		Interval: 5 * time.Millisecond,
		Timeout:  time.Hour,
		Run: func(ctx context.Context) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			select {
			case finished <- ctx.Err():
			default:
			}
			return ctx.Err()
		},
	}
	s := NewScheduler(zap.NewNop(), job)
	s.Start()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
	}
	s.Stop()
	if err := <-finished; !errors.Is(err, context.Canceled) {
		t.Errorf("running job saw %v, want context.Canceled", err)
	}
}
