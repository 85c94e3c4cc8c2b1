package tasks

import (
	"math/rand"
	"time"

	"github.com/magabrotheeeer/payment-service/internal/rabbitmq"
)

// Задержки повторов по номеру попытки: 10с, 1м, 5м, 30м. Совпадают
// с retry-очередями брокера.
var retryDelays = rabbitmq.DefaultRetryTiers

// JitterFactor доля случайного разброса задержки (±20%).
const JitterFactor = 0.2

// NextRetryDelay задержка перед повтором. attempt считается с нуля;
// после исчерпания таблицы используется последняя задержка.
func NextRetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(retryDelays) {
		attempt = len(retryDelays) - 1
	}

	base := retryDelays[attempt]
	jitterRange := float64(base) * JitterFactor
	jitter := (rand.Float64()*2 - 1) * jitterRange

	return time.Duration(float64(base) + jitter)
}

// IsExhausted true, если попытки кончились.
func IsExhausted(retries, maxRetries int) bool {
	return retries >= maxRetries
}

// RetryDelays копия таблицы задержек.
func RetryDelays() []time.Duration {
	return append([]time.Duration{}, retryDelays...)
}
