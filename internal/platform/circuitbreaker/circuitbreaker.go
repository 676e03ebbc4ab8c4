// Package circuitbreaker wraps github.com/sony/gobreaker around outbound
// payment-processor calls. The API shape (StateChangeEvent, Counts,
// StateListener) mirrors the teacher's pkg/mcircuitbreaker contract; the
// teacher's own implementation adapts to an unavailable private library
// (LerianStudio/lib-commons' circuitbreaker package), so this is backed by
// the public gobreaker library instead, with the same listener contract.
package circuitbreaker

import (
	"context"

	"github.com/sony/gobreaker"
)

// State mirrors gobreaker.State with the teacher's naming.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Counts mirrors the teacher's pkg/mcircuitbreaker.Counts.
type Counts struct {
	Requests             uint32
	TotalSuccesses        uint32
	TotalFailures         uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// StateChangeEvent mirrors the teacher's pkg/mcircuitbreaker.StateChangeEvent.
type StateChangeEvent struct {
	ServiceName string
	FromState   State
	ToState     State
	Counts      Counts
}

// StateListener is notified on every breaker state transition.
type StateListener interface {
	OnCircuitBreakerStateChange(event StateChangeEvent)
}

// Breaker wraps one gobreaker.CircuitBreaker for one named external
// dependency (here, the Stripe processor).
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New builds a Breaker named name, notifying listener (if non-nil) on every
// state change. It opens after 5 consecutive failures and probes again
// after gobreaker's default 60-second cooldown.
func New(name string, listener StateListener) *Breaker {
	settings := gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	if listener != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			listener.OnCircuitBreakerStateChange(StateChangeEvent{
				ServiceName: name,
				FromState:   State(from.String()),
				ToState:     State(to.String()),
			})
		}
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. When the breaker is open, fn is not
// called and gobreaker.ErrOpenState is returned immediately. stripeprocessor
// returns it wrapped; depositsvc.BeginDeposit then reports it as
// apperrors.KindProcessorError, and withdrawalsvc.Withdraw treats it as a
// failed refund for that allocation.
func (b *Breaker) Execute(_ context.Context, fn func() (any, error)) (any, error) {
	return b.cb.Execute(fn)
}
