// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"github.com/dalemusser/peerfinder/internal/app/matching"
	"github.com/dalemusser/peerfinder/internal/app/system/snapshot"
	"go.uber.org/zap"
)

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds one run. Zero means the interval.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// AutoMatchJob creates a job that sweeps the waiting pool and forms every
// group it can, oldest learners first.
func AutoMatchJob(engine *matching.Engine, logger *zap.Logger, interval time.Duration) Job {
	return Job{
		Name:     "auto-match",
		Interval: interval,
		Run: func(ctx context.Context) error {
			formed, err := engine.Sweep(ctx)
			if err != nil {
				return err
			}
			if formed > 0 {
				logger.Info("auto-match formed groups", zap.Int("groups", formed))
			}
			return nil
		},
	}
}

// SnapshotExportJob creates a job that uploads CSV exports to S3.
func SnapshotExportJob(exporter *snapshot.Exporter, logger *zap.Logger, interval time.Duration) Job {
	return Job{
		Name:     "snapshot-export",
		Interval: interval,
		Timeout:  5 * time.Minute,
		Run: func(ctx context.Context) error {
			if err := exporter.Export(ctx); err != nil {
				return err
			}
			logger.Debug("snapshot export complete")
			return nil
		},
	}
}
