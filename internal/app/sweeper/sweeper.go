// Package sweeper собирает фоновый процесс проходов по подпискам.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/paywall/internal/cache"
	"github.com/magabrotheeeer/paywall/internal/config"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/rabbitmq"
	"github.com/magabrotheeeer/paywall/internal/services/access"
	"github.com/magabrotheeeer/paywall/internal/services/notification"
	sweepservice "github.com/magabrotheeeer/paywall/internal/services/sweeper"
	"github.com/magabrotheeeer/paywall/internal/storage/repository"
)

// App — процесс проходов и его ресурсы.
type App struct {
	service *sweepservice.Service
	cfg     config.Sweeper
	db      *repository.Storage
	cache   *cache.Cache
	conn    *amqp.Connection
	ch      *amqp.Channel
	logger  *slog.Logger
}

// New подключает хранилище, кеш и брокер уведомлений.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.sweeper.New"

	db, err := repository.New(ctx, cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := db.WaitReady(ctx, cfg.StorageReady.Attempts, cfg.StorageReady.RetryDelay); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: cache not initialized: %w", op, err)
	}

	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		_ = cacheRedis.Close()
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ch, err := rabbitmq.SetupChannel(conn, cfg.RabbitMQ.Prefetch, rabbitmq.NotificationQueues())
	if err != nil {
		_ = conn.Close()
		_ = cacheRedis.Close()
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resolver := access.New(db, cacheRedis, cfg.Entitlement.CacheTTL, logger)
	publisher := notification.NewPublisher(ch, logger)

	return &App{
		service: sweepservice.New(db, publisher, resolver, cfg.Sweeper, nil, logger),
		cfg:     cfg.Sweeper,
		db:      db,
		cache:   cacheRedis,
		conn:    conn,
		ch:      ch,
		logger:  logger,
	}, nil
}

// Run выполняет все проходы один раз, затем по расписанию до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	if res, err := a.service.RunAll(ctx); err != nil {
		a.logger.Error("initial sweep failed", sl.Err(err))
	} else {
		a.logger.Info("initial sweep finished",
			slog.Int("expired", res.Expired),
			slog.Int("reminded", res.Reminded),
			slog.Int("deleted", res.Deleted),
		)
	}

	scheduler := NewScheduler(ctx, a.service, a.cfg, a.logger)
	scheduler.Start()

	<-ctx.Done()
	a.logger.Info("shutting down sweeper")
	<-scheduler.Stop().Done()

	a.close()
	return nil
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close redis client", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
}
