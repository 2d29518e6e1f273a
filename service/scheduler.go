package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/rushteam/bookrec/logging"
	"github.com/rushteam/bookrec/trainer"
)

// Runner 执行一次训练周期（*trainer.Trainer）
type Runner interface {
	Run(ctx context.Context) (*trainer.Result, error)
}

// SchedulerService 按 cron 表达式定时训练。
// 启动时训练与定时训练共用一个 SkipIfStillRunning 链，不会并发执行。
type SchedulerService struct {
	runner    Runner
	schedule  cron.Schedule
	expr      string
	onStartup bool
	logger    zerolog.Logger
}

// NewSchedulerService 解析标准五段 cron 表达式；expr 为空时只做启动训练。
func NewSchedulerService(runner Runner, expr string, onStartup bool, logger zerolog.Logger) (*SchedulerService, error) {
	s := &SchedulerService{
		runner:    runner,
		expr:      expr,
		onStartup: onStartup,
		logger:    logging.Component(logger, "scheduler"),
	}
	if expr != "" {
		sched, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
		}
		s.schedule = sched
	}
	return s, nil
}

func (s *SchedulerService) Serve(ctx context.Context) error {
	clog := cronLogger{logger: s.logger}
	c := cron.New(cron.WithLogger(clog))
	job := cron.NewChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)).Then(cron.FuncJob(func() {
		s.runOnce(ctx)
	}))

	if s.schedule != nil {
		c.Schedule(s.schedule, job)
		s.logger.Info().Str("schedule", s.expr).Msg("training scheduled")
	}
	c.Start()
	var startup sync.WaitGroup
	if s.onStartup {
		startup.Add(1)
		go func() {
			defer startup.Done()
			job.Run()
		}()
	}

	<-ctx.Done()
	// 等待正在执行的训练退出，包括启动训练
	<-c.Stop().Done()
	startup.Wait()
	return ctx.Err()
}

func (s *SchedulerService) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled training failed")
		return
	}
	if res.Skipped {
		return
	}
	ev := s.logger.Info().Int("books", res.Books).Int("interactions", res.Interactions)
	if res.Version != nil {
		ev = ev.Str("version", res.Version.ID)
	}
	ev.Msg("scheduled training done")
}

func (s *SchedulerService) String() string { return "training-scheduler" }

// cronLogger 适配 cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
