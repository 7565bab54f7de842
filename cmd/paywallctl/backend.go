package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/magabrotheeeer/paywall/internal/cache"
	"github.com/magabrotheeeer/paywall/internal/config"
	"github.com/magabrotheeeer/paywall/internal/lib/jwt"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/rabbitmq"
	"github.com/magabrotheeeer/paywall/internal/services/access"
	"github.com/magabrotheeeer/paywall/internal/services/catalog"
	"github.com/magabrotheeeer/paywall/internal/services/notification"
	"github.com/magabrotheeeer/paywall/internal/services/sweeper"
	"github.com/magabrotheeeer/paywall/internal/storage/repository"
)

// Backend — операции, доступные командам.
type Backend interface {
	CreatePlan(ctx context.Context, plan models.Plan) (int, error)
	CreateCoupon(ctx context.Context, c models.Coupon) (int, error)
	RunSweep(ctx context.Context, name string) (sweeper.Result, error)
	ResolveEntitlement(ctx context.Context, userID string) (models.Entitlement, error)
	HasAccess(ctx context.Context, userID, categoryID string) (bool, error)
	IssueToken(ctx context.Context, userID, role string) (string, error)
}

// opener создаёт Backend и функцию освобождения ресурсов.
type opener func(ctx context.Context, configPath string, logOut io.Writer) (Backend, func(), error)

type backend struct {
	db       *repository.Storage
	catalog  *catalog.Service
	resolver *access.Resolver
	sweeps   *sweeper.Service
	tokens   *jwt.MakerImpl

	// reminders — брокер доступен; без него напоминание было бы помечено отправленным и потеряно.
	reminders bool
}

func openBackend(ctx context.Context, configPath string, logOut io.Writer) (Backend, func(), error) {
	const op = "paywallctl.openBackend"

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	logger := sl.New(cfg.Env, logOut)

	db, err := repository.New(ctx, cfg.StorageConnectionString)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	cat, err := catalog.New(db, cfg.Catalog, logger)
	if err != nil {
		_ = cacheRedis.Close()
		_ = db.Close()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	resolver := access.New(db, cacheRedis, cfg.Entitlement.CacheTTL, logger)

	b := &backend{
		db:       db,
		catalog:  cat,
		resolver: resolver,
		tokens:   jwt.NewJWTMaker(cfg.JWTToken.SecretKey, cfg.JWTToken.TokenTTL),
	}
	closers := []func() error{cacheRedis.Close, db.Close}

	// Напоминания требуют брокера; без него проходы expire и cleanup всё равно работают.
	var notifier sweeper.Notifier = unavailableNotifier{}
	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQ.URL, 1, 0)
	if err != nil {
		logger.Warn("rabbitmq unavailable, reminders disabled", sl.Err(err))
	} else if ch, err := rabbitmq.SetupChannel(conn, cfg.RabbitMQ.Prefetch, rabbitmq.NotificationQueues()); err != nil {
		logger.Warn("rabbitmq channel setup failed, reminders disabled", sl.Err(err))
		_ = conn.Close()
	} else {
		notifier = notification.NewPublisher(ch, logger)
		b.reminders = true
		closers = append([]func() error{ch.Close, conn.Close}, closers...)
	}
	b.sweeps = sweeper.New(db, notifier, resolver, cfg.Sweeper, nil, logger)

	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Error("failed to release resource", slog.String("op", op), sl.Err(err))
			}
		}
	}
	return b, cleanup, nil
}

var errBrokerUnavailable = errors.New("notification broker unavailable")

type unavailableNotifier struct{}

func (unavailableNotifier) Send(context.Context, models.Notification) error {
	return errBrokerUnavailable
}

func (b *backend) CreatePlan(ctx context.Context, plan models.Plan) (int, error) {
	return b.catalog.CreatePlan(ctx, plan)
}

func (b *backend) CreateCoupon(ctx context.Context, c models.Coupon) (int, error) {
	return b.catalog.CreateCoupon(ctx, c)
}

func (b *backend) RunSweep(ctx context.Context, name string) (sweeper.Result, error) {
	var (
		res sweeper.Result
		err error
	)
	switch name {
	case sweeper.SweepExpire:
		res.Expired, err = b.sweeps.ExpireSweep(ctx)
	case sweeper.SweepRemind:
		if !b.reminders {
			return res, errBrokerUnavailable
		}
		res.Reminded, err = b.sweeps.ReminderSweep(ctx)
	case sweeper.SweepCleanup:
		res.Deleted, err = b.sweeps.CleanupSweep(ctx)
	default:
		if b.reminders {
			return b.sweeps.RunAll(ctx)
		}
		if res.Expired, err = b.sweeps.ExpireSweep(ctx); err != nil {
			return res, err
		}
		res.Deleted, err = b.sweeps.CleanupSweep(ctx)
	}
	return res, err
}

func (b *backend) ResolveEntitlement(ctx context.Context, userID string) (models.Entitlement, error) {
	return b.resolver.ResolveEntitlement(ctx, userID)
}

func (b *backend) HasAccess(ctx context.Context, userID, categoryID string) (bool, error) {
	return b.resolver.HasAccess(ctx, userID, categoryID)
}

// IssueToken выпускает токен только для существующего пользователя.
func (b *backend) IssueToken(ctx context.Context, userID, role string) (string, error) {
	const op = "paywallctl.IssueToken"
	if _, err := b.db.GetUser(ctx, userID); err != nil {
		return "", fmt.Errorf("%s: user %s: %w", op, userID, err)
	}
	return b.tokens.GenerateToken(userID, role)
}
