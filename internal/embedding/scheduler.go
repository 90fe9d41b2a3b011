package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner is satisfied by Backfiller.
type Runner interface {
	Run(ctx context.Context, all bool) (Report, error)
}

// Scheduler repeats the backfill on a cron spec. Overlapping ticks are skipped.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	runner Runner
	all    bool
	logger *zap.Logger
	// initial tracks the run fired by Start, which cron does not know about.
	initial sync.WaitGroup
}

func NewScheduler(spec string, runner Runner, all bool, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cronLogger{log.Sugar()})),
		spec:   spec,
		runner: runner,
		all:    all,
		logger: log,
	}
}

// Start registers the job, starts the scheduler and runs once immediately so
// fresh profiles are searchable without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.logger.Sugar()})).
		Then(cron.FuncJob(func() { s.runOnce(ctx) }))

	if _, err := s.cron.AddJob(s.spec, job); err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.logger.Info("embedding refresh scheduled", zap.String("spec", s.spec))

	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		job.Run()
	}()
	return nil
}

// Stop halts scheduling and returns a context that is done once running jobs
// finish, including the immediate run.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("embedding refresh stopped")
	cronDone := s.cron.Stop()

	done, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		s.initial.Wait()
		cancel()
	}()
	return done
}

// Shutdown stops the scheduler and waits for running jobs until ctx ends.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	select {
	case <-s.Stop().Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for embedding refresh: %w", ctx.Err())
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.runner.Run(ctx, s.all); err != nil {
		s.logger.Error("embedding refresh failed", zap.Error(err))
	}
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
