package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/magabrotheeeer/paywall/internal/config"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	sweepservice "github.com/magabrotheeeer/paywall/internal/services/sweeper"
)

// Sweeps перечисляет проходы, которые запускает планировщик.
type Sweeps interface {
	ExpireSweep(ctx context.Context) (int, error)
	ReminderSweep(ctx context.Context) (int, error)
	CleanupSweep(ctx context.Context) (int, error)
}

// Scheduler запускает каждый проход со своим интервалом.
// Прогон, не успевший завершиться к следующему тику, пропускает тик.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler регистрирует проходы; ctx передаётся в каждый запуск.
func NewScheduler(ctx context.Context, sweeps Sweeps, cfg config.Sweeper, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	s := &Scheduler{cron: c, logger: logger}
	s.add(ctx, sweepservice.SweepExpire, cfg.ExpireInterval, sweeps.ExpireSweep)
	s.add(ctx, sweepservice.SweepRemind, cfg.RemindInterval, sweeps.ReminderSweep)
	s.add(ctx, sweepservice.SweepCleanup, cfg.CleanupInterval, sweeps.CleanupSweep)
	return s
}

func (s *Scheduler) add(ctx context.Context, name string, every time.Duration, run func(context.Context) (int, error)) {
	s.cron.Schedule(cron.Every(every), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		n, err := run(ctx)
		if err != nil {
			s.logger.Error("sweep failed", slog.String("sweep", name), sl.Err(err))
			return
		}
		s.logger.Debug("sweep finished", slog.String("sweep", name), slog.Int("processed", n))
	}))
	s.logger.Info("scheduled sweep", slog.String("sweep", name), slog.Duration("every", every))
}

// Start запускает планировщик в фоне.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop останавливает планировщик; контекст завершается, когда закончатся текущие прогоны.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
