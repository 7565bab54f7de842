// Package notification публикует уведомления пользователям в RabbitMQ.
// Доставкой занимается отдельный процесс отправителя.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/paywall/internal/metrics"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/rabbitmq"
)

const reminderKind = "expiry_reminder"

// Publisher отправляет уведомления в обменник notifications.
type Publisher struct {
	ch  rabbitmq.Publisher
	log *slog.Logger
}

// NewPublisher создает Publisher поверх канала брокера.
func NewPublisher(ch rabbitmq.Publisher, log *slog.Logger) *Publisher {
	return &Publisher{ch: ch, log: log}
}

// Send публикует уведомление. Доставка асинхронная: успех означает только,
// что брокер принял сообщение.
func (p *Publisher) Send(ctx context.Context, n models.Notification) error {
	const op = "notification.Send"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := rabbitmq.PublishMessage(p.ch, rabbitmq.NotificationsExchange, rabbitmq.ExpiryReminderKey, n); err != nil {
		metrics.RecordNotification(reminderKind, "publish_failed")
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.RecordNotification(reminderKind, "published")
	p.log.Debug("notification published", slog.String("op", op), slog.String("email", n.Email))
	return nil
}

// ExpiryReminder собирает письмо о скором окончании подписки.
func ExpiryReminder(es *models.ExpiringSubscription, now time.Time) models.Notification {
	scope := "всем категориям"
	if es.Scope == models.ScopeCategory {
		scope = "выбранной категории"
	}
	left := es.ExpiryDate.Sub(now)
	days := int(left.Hours() / 24)

	var when string
	switch {
	case left <= 0:
		when = "сегодня"
	case days == 0:
		when = "менее чем через сутки"
	default:
		when = fmt.Sprintf("через %d дн.", days)
	}

	return models.Notification{
		Email:   es.Email,
		Subject: "Ваша подписка скоро закончится",
		Text: fmt.Sprintf("Здравствуйте, %s!\n\nВаша подписка %q с доступом к %s заканчивается %s (%s).\n\nПродлите её заранее, чтобы не потерять доступ.",
			es.Username, es.PlanName, scope, when, es.ExpiryDate.UTC().Format("02.01.2006 15:04 MST")),
	}
}
