package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/peerfinder/internal/app/system/tasks"
	"go.uber.org/zap"
)

// Scheduler runs each job on its own ticker until stopped.
type Scheduler struct {
	jobs   []tasks.Job
	log    *zap.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewScheduler creates a scheduler. Jobs with a non-positive interval are
// skipped.
func NewScheduler(logger *zap.Logger, jobs ...tasks.Job) *Scheduler {
	s := &Scheduler{log: logger, stopCh: make(chan struct{})}
	for _, j := range jobs {
		if j.Interval <= 0 || j.Run == nil {
			continue
		}
		s.jobs = append(s.jobs, j)
	}
	return s
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int { return len(s.jobs) }

// Start begins the background loops.
func (s *Scheduler) Start() {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.run(j)
		s.log.Info("background job started",
			zap.String("job", j.Name),
			zap.Duration("interval", j.Interval))
	}
}

// Stop signals every job to stop and waits for running ones to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	if len(s.jobs) > 0 {
		s.log.Info("background jobs stopped")
	}
}

func (s *Scheduler) run(j tasks.Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runOnce(j)
		}
	}
}

func (s *Scheduler) runOnce(j tasks.Job) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = j.Interval
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// stop cancels a run in progress
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	if err := j.Run(ctx); err != nil {
		s.log.Error("background job failed", zap.String("job", j.Name), zap.Error(err))
		return
	}
	s.log.Debug("background job finished", zap.String("job", j.Name), zap.Duration("took", time.Since(start)))
}
