// Package sweeper реализует фоновые проходы по записям подписок: перевод истёкших
// в expired, напоминания об окончании и удаление зависших pending-записей.
//
// Каждый проход идемпотентен и безопасен при повторном запуске. Ошибка по
// отдельной записи логируется и учитывается, но не прерывает проход.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/paywall/internal/config"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/metrics"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/services/notification"
)

// Названия проходов для логов и метрик.
const (
	SweepExpire  = "expire"
	SweepRemind  = "remind"
	SweepCleanup = "cleanup"
)

// Repository определяет массовые операции хранилища, нужные проходам.
type Repository interface {
	ExpireSubscriptions(ctx context.Context, now time.Time) ([]string, error)
	FindExpiringSubscriptions(ctx context.Context, now, until time.Time) ([]*models.ExpiringSubscription, error)
	MarkReminderSent(ctx context.Context, id string, now time.Time) (bool, error)
	DeleteStalePending(ctx context.Context, olderThan time.Time) (int, error)
}

// Notifier отправляет уведомление пользователю.
type Notifier interface {
	Send(ctx context.Context, n models.Notification) error
}

// EntitlementCache сбрасывает закешированное право доступа пользователя.
type EntitlementCache interface {
	InvalidateEntitlement(ctx context.Context, userID string) error
}

// Service выполняет проходы.
type Service struct {
	repo           Repository
	notifier       Notifier
	access         EntitlementCache
	reminderWindow time.Duration
	pendingTTL     time.Duration
	now            func() time.Time
	log            *slog.Logger
}

// New создает Service. now == nil означает time.Now.
func New(repo Repository, notifier Notifier, access EntitlementCache, cfg config.Sweeper, now func() time.Time, log *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:           repo,
		notifier:       notifier,
		access:         access,
		reminderWindow: cfg.ReminderWindow,
		pendingTTL:     cfg.PendingTTL,
		now:            now,
		log:            log,
	}
}

// ExpireSweep помечает истёкшими все активные записи с прошедшей датой
// окончания и сбрасывает кеш прав их владельцев.
func (s *Service) ExpireSweep(ctx context.Context) (int, error) {
	const op = "sweeper.ExpireSweep"
	log := s.log.With(slog.String("op", op))
	log.Info("starting expire sweep")

	userIDs, err := s.repo.ExpireSubscriptions(ctx, s.now())
	if err != nil {
		metrics.RecordSweep(SweepExpire, 0, 1)
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	errs := 0
	for _, userID := range userIDs {
		if err := s.access.InvalidateEntitlement(ctx, userID); err != nil {
			errs++
			log.Warn("failed to invalidate entitlement", slog.String("user_id", userID), sl.Err(err))
		}
	}

	metrics.RecordSweep(SweepExpire, len(userIDs), errs)
	log.Info("expire sweep finished", slog.Int("expired", len(userIDs)), slog.Int("errors", errs))
	return len(userIDs), nil
}

// ReminderSweep рассылает напоминания по активным записям, которые заканчиваются
// в пределах окна. Напоминание сначала закрепляется за записью условным
// обновлением, поэтому частый запуск не приводит к повторной отправке.
func (s *Service) ReminderSweep(ctx context.Context) (int, error) {
	const op = "sweeper.ReminderSweep"
	log := s.log.With(slog.String("op", op))
	log.Info("starting reminder sweep")

	now := s.now()
	expiring, err := s.repo.FindExpiringSubscriptions(ctx, now, now.Add(s.reminderWindow))
	if err != nil {
		metrics.RecordSweep(SweepRemind, 0, 1)
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(expiring) == 0 {
		log.Info("no expiring subscriptions found")
		return 0, nil
	}
	log.Info("found expiring subscriptions", slog.Int("count", len(expiring)))

	sent, errs := 0, 0
	for _, es := range expiring {
		if ctx.Err() != nil {
			break
		}
		claimed, err := s.repo.MarkReminderSent(ctx, es.ID, now)
		if err != nil {
			errs++
			log.Error("failed to claim reminder", slog.String("id", es.ID), sl.Err(err))
			continue
		}
		if !claimed {
			continue
		}
		if err := s.notifier.Send(ctx, notification.ExpiryReminder(es, now)); err != nil {
			errs++
			log.Error("failed to dispatch reminder", slog.String("id", es.ID), sl.Err(err))
			continue
		}
		sent++
	}

	metrics.RecordSweep(SweepRemind, sent, errs)
	log.Info("reminder sweep finished", slog.Int("sent", sent), slog.Int("errors", errs))
	return sent, nil
}

// CleanupSweep удаляет pending-записи старше pendingTTL.
func (s *Service) CleanupSweep(ctx context.Context) (int, error) {
	const op = "sweeper.CleanupSweep"
	log := s.log.With(slog.String("op", op))
	log.Info("starting cleanup sweep")

	deleted, err := s.repo.DeleteStalePending(ctx, s.now().Add(-s.pendingTTL))
	if err != nil {
		metrics.RecordSweep(SweepCleanup, 0, 1)
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	metrics.RecordSweep(SweepCleanup, deleted, 0)
	log.Info("cleanup sweep finished", slog.Int("deleted", deleted))
	return deleted, nil
}

// Result содержит итог RunAll.
type Result struct {
	Expired  int
	Reminded int
	Deleted  int
}

// RunAll запускает три прохода параллельно и возвращает первую ошибку.
func (s *Service) RunAll(ctx context.Context) (Result, error) {
	var res Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.ExpireSweep(gctx)
		res.Expired = n
		return err
	})
	g.Go(func() error {
		n, err := s.ReminderSweep(gctx)
		res.Reminded = n
		return err
	})
	g.Go(func() error {
		n, err := s.CleanupSweep(gctx)
		res.Deleted = n
		return err
	})
	err := g.Wait()
	return res, err
}
