package rabbitmq

import (
	"strconv"
	"time"

	"github.com/streadway/amqp"
)

const (
	// DefaultExchange direct-exchange для задач.
	DefaultExchange = "tasks"
	// DefaultQueue очередь по умолчанию.
	DefaultQueue = "default"
	// DeadRoutingKey ключ очереди мёртвых писем.
	DeadRoutingKey = "dead"
)

// DefaultRetryTiers задержки повторов. На каждую заводится отдельная
// retry-очередь с x-message-ttl: брокер снимает истёкшие сообщения только
// с головы очереди, поэтому короткая задержка не должна стоять за длинной.
var DefaultRetryTiers = []time.Duration{
	10 * time.Second,
	1 * time.Minute,
	5 * time.Minute,
	30 * time.Minute,
}

// QueueConfig очередь и ключ, которым она привязана к exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
	Args       amqp.Table
}

// Topology набор логических очередей на одном exchange.
//
// Для логической очереди q объявляются:
//   - <exchange>.<q>, ключ q;
//   - <exchange>.<q>.retry.<tier> на каждую задержку, ключ q.retry.<tier>,
//     сообщения живут tier и возвращаются в exchange с ключом q;
//   - <exchange>.dead, ключ dead.
type Topology struct {
	Exchange   string
	Queues     []string
	RetryTiers []time.Duration
}

// NewTopology возвращает топологию; пустые значения заменяются умолчаниями.
func NewTopology(exchange string, queues []string) Topology {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if len(queues) == 0 {
		queues = []string{DefaultQueue}
	}
	return Topology{
		Exchange:   exchange,
		Queues:     queues,
		RetryTiers: append([]time.Duration{}, DefaultRetryTiers...),
	}
}

// WithRetryTiers заменяет задержки повторов, tiers по возрастанию.
func (t Topology) WithRetryTiers(tiers ...time.Duration) Topology {
	t.RetryTiers = append([]time.Duration{}, tiers...)
	return t
}

// QueueName имя рабочей очереди.
func (t Topology) QueueName(q string) string {
	return t.Exchange + "." + q
}

// RetryTier ближайшая к delay задержка из RetryTiers.
func (t Topology) RetryTier(delay time.Duration) time.Duration {
	tiers := t.RetryTiers
	if len(tiers) == 0 {
		tiers = DefaultRetryTiers
	}
	best := tiers[0]
	for _, tier := range tiers[1:] {
		if absDuration(tier-delay) < absDuration(best-delay) {
			best = tier
		}
	}
	return best
}

// RetryQueueName имя очереди отложенных повторов для задержки tier.
func (t Topology) RetryQueueName(q string, tier time.Duration) string {
	return t.Exchange + "." + t.RetryRoutingKey(q, tier)
}

// RetryRoutingKey ключ, по которому публикуется повтор с задержкой delay.
func (t Topology) RetryRoutingKey(q string, delay time.Duration) string {
	return q + ".retry." + tierLabel(t.RetryTier(delay))
}

// DeadQueueName имя очереди мёртвых писем.
func (t Topology) DeadQueueName() string {
	return t.Exchange + "." + DeadRoutingKey
}

// Has сообщает, объявлена ли логическая очередь.
func (t Topology) Has(q string) bool {
	for _, name := range t.Queues {
		if name == q {
			return true
		}
	}
	return false
}

// QueueConfigs полный список физических очередей.
func (t Topology) QueueConfigs() []QueueConfig {
	tiers := t.RetryTiers
	if len(tiers) == 0 {
		tiers = DefaultRetryTiers
	}
	result := make([]QueueConfig, 0, len(t.Queues)*(len(tiers)+1)+1)
	for _, q := range t.Queues {
		result = append(result, QueueConfig{QueueName: t.QueueName(q), RoutingKey: q})
		for _, tier := range tiers {
			result = append(result, QueueConfig{
				QueueName:  t.RetryQueueName(q, tier),
				RoutingKey: t.RetryRoutingKey(q, tier),
				Args: amqp.Table{
					"x-message-ttl":             tier.Milliseconds(),
					"x-dead-letter-exchange":    t.Exchange,
					"x-dead-letter-routing-key": q,
				},
			})
		}
	}
	return append(result, QueueConfig{QueueName: t.DeadQueueName(), RoutingKey: DeadRoutingKey})
}

func tierLabel(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		return strconv.FormatInt(int64(d/time.Hour), 10) + "h"
	case d%time.Minute == 0:
		return strconv.FormatInt(int64(d/time.Minute), 10) + "m"
	case d%time.Second == 0:
		return strconv.FormatInt(int64(d/time.Second), 10) + "s"
	default:
		return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
