// Package job runs periodic maintenance on a cron schedule.
package job

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultCronSpec = "0 3 * * *"

// Scheduler runs task on a cron expression. Overlapping runs are skipped.
type Scheduler struct {
	cronExpr string
	name     string
	task     func(context.Context) error
	logger   *zap.Logger

	cron    *cron.Cron
	parent  context.Context
	mu      sync.Mutex
	running bool
}

func NewScheduler(spec, name string, task func(context.Context) error, logger *zap.Logger) *Scheduler {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = defaultCronSpec
	}
	return &Scheduler{cronExpr: spec, name: name, task: task, logger: logger}
}

// Start registers the job and returns a function that stops it. The
// scheduler also stops when parent is cancelled.
func (s *Scheduler) Start(parent context.Context) (context.CancelFunc, error) {
	s.parent = parent
	c := cron.New()
	id, err := c.AddFunc(s.cronExpr, s.RunOnce)
	if err != nil {
		return func() {}, err
	}
	s.cron = c
	c.Start()
	s.logger.Info("job scheduler started",
		zap.String("job", s.name),
		zap.String("cron", s.cronExpr),
		zap.Time("next", c.Entry(id).Next))

	var once sync.Once
	stop := func() {
		once.Do(func() {
			<-s.cron.Stop().Done()
			s.logger.Info("job scheduler stopped", zap.String("job", s.name))
		})
	}

	go func() {
		<-parent.Done()
		stop()
	}()

	return stop, nil
}

// RunOnce executes the task now unless a previous run is still in progress.
func (s *Scheduler) RunOnce() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("previous run still in progress, skipping", zap.String("job", s.name))
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx := context.Background()
	if s.parent != nil {
		if s.parent.Err() != nil {
			return
		}
		ctx = s.parent
	}

	start := time.Now()
	if err := s.task(ctx); err != nil {
		s.logger.Error("scheduled job failed",
			zap.String("job", s.name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	s.logger.Info("scheduled job completed", zap.String("job", s.name), zap.Duration("duration", time.Since(start)))
}
