package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without calling fn while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

type Settings struct {
	Name string
	// MaxRequests is the number of consecutive failures that opens the breaker.
	MaxRequests int
	// Timeout is how long the breaker stays open before letting a probe through.
	Timeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

type CircuitBreaker struct {
	name        string
	maxRequests int
	timeout     time.Duration
	now         func() time.Time
	failures    int
	lastFailure time.Time
	state       State
	mu          sync.Mutex
}

func NewCircuitBreaker(settings Settings) *CircuitBreaker {
	if settings.MaxRequests <= 0 {
		settings.MaxRequests = 1
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &CircuitBreaker{
		name:        settings.Name,
		maxRequests: settings.MaxRequests,
		timeout:     settings.Timeout,
		now:         settings.Now,
		state:       StateClosed,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailure) <= cb.timeout {
			cb.mu.Unlock()
			return ErrOpen
		}
		cb.state = StateHalfOpen
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.state == StateHalfOpen || cb.failures >= cb.maxRequests {
			cb.state = StateOpen
		}
		return err
	}

	cb.state = StateClosed
	cb.failures = 0
	return nil
}
