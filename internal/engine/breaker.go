package engine

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState int32

const (
	// StateClosed allows requests through.
	StateClosed BreakerState = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen allows a limited number of probes.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls the circuit breaker middleware.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" validate:"min=1"`
	SuccessThreshold int           `yaml:"success_threshold" validate:"min=1"`
	OpenTimeout      time.Duration `yaml:"open_timeout" validate:"gt=0"`
	HalfOpenProbes   int           `yaml:"half_open_probes" validate:"min=1"`
}

// Breaker stops calling an engine that keeps failing. Only unavailability
// counts as failure; rejections and async acceptance prove the engine is up.
type Breaker struct {
	state           atomic.Int32
	failures        atomic.Int32
	successes       atomic.Int32
	lastFailureTime atomic.Int64
	halfOpenProbes  atomic.Int32

	cfg    BreakerConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewBreaker creates a closed circuit breaker.
func NewBreaker(cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	b := &Breaker{cfg: cfg, now: time.Now, logger: logger.With("component", "engine_breaker")}
	b.state.Store(int32(StateClosed))
	return b
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState { return BreakerState(b.state.Load()) }

// Middleware returns the breaker as a Middleware.
func (b *Breaker) Middleware() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			release, err := b.allow()
			if err != nil {
				return nil, err
			}
			defer release()

			resp, err := next.Handle(ctx, req)
			if countsAsFailure(err) {
				b.recordFailure()
			} else {
				b.recordSuccess()
			}
			return resp, err
		})
	}
}

func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	// The caller giving up is not the engine's fault.
	if errors.Is(err, context.Canceled) {
		return false
	}
	return Retryable(err)
}

func (b *Breaker) jitter() time.Duration {
	j := b.cfg.OpenTimeout / 10
	if j <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(j))) // #nosec G404 -- jitter only
}

func (b *Breaker) allow() (func(), error) {
	switch b.State() {
	case StateClosed:
		return func() {}, nil
	case StateOpen:
		last := time.Unix(0, b.lastFailureTime.Load())
		if b.now().Sub(last) <= b.cfg.OpenTimeout+b.jitter() {
			return nil, &Error{Type: ErrorTypeCircuitOpen, Message: "circuit breaker is open"}
		}
		b.transition(StateOpen, StateHalfOpen)
	}
	return b.acquireProbe()
}

func (b *Breaker) acquireProbe() (func(), error) {
	for {
		cur := b.halfOpenProbes.Load()
		if int(cur) >= b.cfg.HalfOpenProbes {
			return nil, &Error{Type: ErrorTypeCircuitOpen, Message: "half-open probe limit reached"}
		}
		if b.halfOpenProbes.CompareAndSwap(cur, cur+1) {
			return func() {
				for {
					n := b.halfOpenProbes.Load()
					if n == 0 || b.halfOpenProbes.CompareAndSwap(n, n-1) {
						return
					}
				}
			}, nil
		}
	}
}

func (b *Breaker) recordSuccess() {
	switch b.State() {
	case StateClosed:
		b.failures.Store(0)
	case StateHalfOpen:
		if int(b.successes.Add(1)) >= b.cfg.SuccessThreshold {
			b.transition(StateHalfOpen, StateClosed)
		}
	}
}

func (b *Breaker) recordFailure() {
	b.lastFailureTime.Store(b.now().UnixNano())
	switch b.State() {
	case StateClosed:
		if int(b.failures.Add(1)) >= b.cfg.FailureThreshold {
			b.transition(StateClosed, StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateHalfOpen, StateOpen)
	}
}

// transition moves from -> to if the breaker is still in from.
func (b *Breaker) transition(from, to BreakerState) {
	if !b.state.CompareAndSwap(int32(from), int32(to)) {
		return
	}
	b.failures.Store(0)
	b.successes.Store(0)
	b.halfOpenProbes.Store(0)
	b.logger.Info("circuit breaker state transition", "from", from.String(), "to", to.String())
}
