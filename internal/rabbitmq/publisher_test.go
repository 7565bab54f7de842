package rabbitmq

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (p *recordingPublisher) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	p.exchange = exchange
	p.key = key
	p.msg = msg
	return p.err
}

func TestPublishMessage(t *testing.T) {
	type reminder struct {
		Email string `json:"email"`
	}

	t.Run("json persistent message", func(t *testing.T) {
		p := &recordingPublisher{}
		err := PublishMessage(p, NotificationsExchange, ExpiryReminderKey, reminder{Email: "a@b.c"})
		require.NoError(t, err)

		assert.Equal(t, NotificationsExchange, p.exchange)
		assert.Equal(t, ExpiryReminderKey, p.key)
		assert.Equal(t, "application/json", p.msg.ContentType)
		assert.Equal(t, amqp.Persistent, p.msg.DeliveryMode)

		var got reminder
		require.NoError(t, json.Unmarshal(p.msg.Body, &got))
		assert.Equal(t, "a@b.c", got.Email)
	})

	t.Run("marshal error", func(t *testing.T) {
		p := &recordingPublisher{}
		err := PublishMessage(p, "", "q", struct{ Ch chan int }{Ch: make(chan int)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rabbitmq.PublishMessage")
		assert.Empty(t, p.key, "nothing must be published")
	})

	t.Run("broker error is wrapped", func(t *testing.T) {
		brokerErr := errors.New("channel closed")
		p := &recordingPublisher{err: brokerErr}
		err := PublishMessage(p, "", "q", reminder{})
		assert.ErrorIs(t, err, brokerErr)
	})
}

func TestNotificationQueues(t *testing.T) {
	queues := NotificationQueues()
	require.NotEmpty(t, queues)

	assert.Equal(t, ExpiryReminderQueue, queues[0].QueueName)
	assert.Equal(t, ExpiryReminderKey, queues[0].RoutingKey)

	seen := map[string]bool{}
	for _, q := range queues {
		assert.Falsef(t, seen[q.QueueName], "duplicate queue name: %s", q.QueueName)
		seen[q.QueueName] = true
	}
}
