package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/crmflow-prototype/internal/connectors"
	"github.com/xela07ax/crmflow-prototype/internal/infra"
	"golang.org/x/time/rate"
)

// ReliabilityWrapper оборачивает любой Caller в стек надежности:
// Rate Limiter -> Circuit Breaker -> Retries с умным бэкоффом.
type ReliabilityWrapper struct {
	next     connectors.Caller
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	attempts uint
	timeout  time.Duration
}

func NewReliabilityWrapper(next connectors.Caller, cfg infra.SyncConfig, metrics *Metrics) *ReliabilityWrapper {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "crm-connector",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if metrics == nil {
				return
			}
			val := 0.0
			if to == gobreaker.StateOpen {
				val = 1.0
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(val)
		},
	})

	// Настройка лимитера (например, 100 запросов в секунду)
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)

	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 3
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ReliabilityWrapper{
		next:     next,
		cb:       cb,
		limiter:  limiter,
		attempts: attempts,
		timeout:  timeout,
	}
}

func (w *ReliabilityWrapper) Call(ctx context.Context, op string, payload []byte) (res []byte, err error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var finalData []byte

	// 2. Circuit Breaker
	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если коннектор вернул ThrottleError (считал Retry-After заголовок)
				var tErr *connectors.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}

				// В остальных случаях (сетевой лаг, 500-ка) — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.timeout)
			defer cancel()

			var callErr error
			finalData, callErr = w.next.Call(tCtx, op, payload)
			return callErr
		})

		return finalData, retryErr
	})

	if err != nil {
		return nil, err
	}

	return cbResult.([]byte), nil
}
