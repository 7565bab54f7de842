package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

const (
	// NotificationsExchange — direct-обменник для всех уведомлений.
	NotificationsExchange = "notifications"
	// ExpiryReminderKey — ключ маршрутизации напоминаний об окончании подписки.
	ExpiryReminderKey = "expiry_reminder"
	// ExpiryReminderQueue — очередь, которую читает отправитель писем.
	ExpiryReminderQueue = "notifications.expiry_reminder"
)

// QueueConfig описывает очередь и её привязку к обменнику уведомлений.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// NotificationQueues возвращает очереди, объявляемые при старте.
func NotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: ExpiryReminderQueue, RoutingKey: ExpiryReminderKey},
	}
}

// SetupChannel открывает канал, выставляет prefetch и объявляет обменник
// уведомлений вместе с очередями queues.
func SetupChannel(conn *amqp.Connection, prefetch int, queues []QueueConfig) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("%s: set qos: %w", op, err)
		}
	}

	err = ch.ExchangeDeclare(
		NotificationsExchange,
		amqp.ExchangeDirect,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.QueueName, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, q.QueueName, err)
		}
		if err := ch.QueueBind(q.QueueName, q.RoutingKey, NotificationsExchange, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("%s: failed to bind queue %s with routing key %s: %w", op, q.QueueName, q.RoutingKey, err)
		}
	}

	return ch, nil
}
