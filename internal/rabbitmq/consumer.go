package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
)

// Handler обрабатывает тело сообщения. Ошибка возвращает сообщение в очередь.
type Handler func(ctx context.Context, body []byte) error

// Consumer запущенный потребитель очереди.
type Consumer struct {
	wg   sync.WaitGroup
	done chan struct{}
}

// Wait блокируется, пока не остановится чтение и не завершатся все обработчики.
func (c *Consumer) Wait() {
	<-c.done
	c.wg.Wait()
}

// Done закрывается, когда потребитель перестал читать доставки.
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

// ConsumerMessage создает потребителя сообщений из очереди RabbitMQ.
// Одновременно исполняется не больше concurrency обработчиков.
func ConsumerMessage(ctx context.Context, ch *amqp.Channel, queueName string, concurrency int, handler Handler) (*Consumer, error) {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if concurrency < 1 {
		concurrency = 1
	}
	log := slog.Default().With(slog.String("op", op), slog.String("queue", queueName))

	// Обработчики доживают до конца после отмены ctx.
	handlerCtx := context.WithoutCancel(ctx)

	c := &Consumer{done: make(chan struct{})}
	sem := make(chan struct{}, concurrency)
	go func() {
		defer close(c.done)
		for {
			select {
			case d, ok := <-delivery:
				if !ok {
					return
				}
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					if nackErr := d.Nack(false, true); nackErr != nil {
						log.Error("failed to nack message", sl.Err(nackErr))
					}
					return
				}
				c.wg.Add(1)
				go func(delivery amqp.Delivery) {
					defer func() {
						<-sem
						c.wg.Done()
					}()
					if err := handler(handlerCtx, delivery.Body); err != nil {
						log.Warn("handler failed, requeue", sl.Err(err))
						if nackErr := delivery.Nack(false, true); nackErr != nil {
							log.Error("failed to nack message", sl.Err(nackErr))
						}
						return
					}
					if ackErr := delivery.Ack(false); ackErr != nil {
						log.Error("failed to ack message", sl.Err(ackErr))
					}
				}(d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return c, nil
}
