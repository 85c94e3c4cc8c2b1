package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// PublishOptions дополнительные свойства сообщения.
type PublishOptions struct {
	// Expiration TTL сообщения в очереди, 0 без ограничения.
	Expiration time.Duration
	Headers    amqp.Table
	MessageID  string
}

// PublishMessage публикует сообщение в RabbitMQ в формате JSON.
func PublishMessage(ctx context.Context, ch *amqp.Channel, exchange string, routingkey string, message any, opts PublishOptions) error {
	const op = "rabbitmq.PublishMessage"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      opts.Headers,
		MessageId:    opts.MessageID,
	}
	if opts.Expiration > 0 {
		msg.Expiration = strconv.FormatInt(opts.Expiration.Milliseconds(), 10)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		msg,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Publisher публикует сообщения по ключу маршрутизации.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any, opts PublishOptions) error
}

// ChannelPublisher публикует в заданный exchange через отдельный канал.
// Канал AMQP не рассчитан на одновременную публикацию, поэтому вызовы сериализуются.
type ChannelPublisher struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
}

func NewChannelPublisher(ch *amqp.Channel, exchange string) *ChannelPublisher {
	return &ChannelPublisher{ch: ch, exchange: exchange}
}

func (p *ChannelPublisher) Publish(ctx context.Context, routingKey string, message any, opts PublishOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PublishMessage(ctx, p.ch, p.exchange, routingKey, message, opts)
}

func (p *ChannelPublisher) Close() error {
	return p.ch.Close()
}
