// workers/scheduler.go
package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"engagement-rewards/logger"
)

// Job is a unit of background work run on a fixed interval.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs Jobs on gocron. Each run gets its own timeout and a job
// never overlaps with itself.
type Scheduler struct {
	sched gocron.Scheduler
	log   *logger.Logger
	ctx   context.Context
}

func NewScheduler(ctx context.Context, log *logger.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{sched: sched, log: log, ctx: ctx}, nil
}

// Every registers job to run each interval. With immediately set, the first
// run starts as soon as the scheduler does.
func (s *Scheduler) Every(interval, timeout time.Duration, immediately bool, job Job) error {
	opts := []gocron.JobOption{
		gocron.WithName(job.Name()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if immediately {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(s.ctx, timeout)
			defer cancel()
			if err := job.Run(ctx); err != nil {
				s.log.Error("[Scheduler] job failed", "job", job.Name(), "error", err)
			}
		}),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name(), err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
