package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is a unit of scheduled maintenance work
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on cron schedules. A run that is still going when
// its next tick arrives is skipped.
type Scheduler struct {
	cron    *cron.Cron
	log     *logrus.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. Each run gets at most timeout.
func NewScheduler(log *logrus.Logger, timeout time.Duration) *Scheduler {
	cronLog := cron.PrintfLogger(log)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		log:     log,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}
// Add runs job on schedule, a standard cron expression or descriptor such
// Add schedules job on schedule, a standard cron expression or descriptor such
// as @hourly
func (s *Scheduler) Add(schedule string, job Job) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.RunNow(job) }); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", job.Name(), err)
	}
	s.log.WithFields(logrus.Fields{"job": job.Name(), "schedule": schedule}).Info("job scheduled")
	return nil
}

// RunNow runs job synchronously with the scheduler's context and timeout
func (s *Scheduler) RunNow(job Job) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	entry := s.log.WithField("job", job.Name())
	entry.Debug("job started")

	if err := job.Run(ctx); err != nil {
		entry.WithError(err).WithField("duration", time.Since(start)).Error("job failed")
		return err
	}
	entry.WithField("duration", time.Since(start)).Info("job completed")
	return nil
}

// Start begins running scheduled jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
