package redis

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"techblog/pkg/metrics"
)

// Circuit breaker settings for the fast counter store.
// While open, commands fail immediately instead of waiting on dial/read timeouts.
const (
	breakerName             = "redis-counter-store"
	breakerMaxHalfOpen      = 1
	breakerInterval         = time.Minute
	breakerOpenTimeout      = 10 * time.Second
	breakerFailureThreshold = 5
)

// ErrCircuitOpen is returned while the breaker rejects commands
var ErrCircuitOpen = gobreaker.ErrOpenState

func newBreaker(log *zap.Logger) *gobreaker.CircuitBreaker[any] {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: breakerMaxHalfOpen,
		Interval:    breakerInterval,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		// A missing key is a normal answer, not a store failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("redis_circuit_breaker",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
