// Package resilience keeps provider calls alive when a backend misbehaves.
//
// A [Chain] holds an ordered list of interchangeable backends, each guarded
// by its own [Breaker]. Calls go to the first backend whose breaker admits
// them, and failures cascade down the chain so a dead primary never stalls a
// run. Breaker transitions and failovers are reported through
// [observe.Metrics]. [LLMChain] and [TTSChain] bind chains to the provider
// interfaces.
//
// All types are safe for concurrent use after the backends are registered.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/skywave/internal/observe"
)

// ErrExhausted is returned by [Run] when every backend in a chain failed or
// had an open breaker.
var ErrExhausted = errors.New("resilience: all backends failed")

// ChainConfig configures a [Chain].
type ChainConfig struct {
	// Kind labels the chain in logs and metrics, e.g. "llm" or "tts".
	Kind string

	// Breaker is the template for each backend's breaker. Name and
	// OnStateChange are set per backend by [Chain.Add].
	Breaker BreakerConfig

	// Metrics receives breaker transitions and failovers. Nil disables
	// metric recording; logging still happens.
	Metrics *observe.Metrics
}

type chainBackend[T any] struct {
	name    string
	impl    T
	breaker *Breaker
}

// Chain is an ordered failover list of backends of the same provider type.
// The first backend registered with [Chain.Add] is the primary.
type Chain[T any] struct {
	cfg      ChainConfig
	backends []chainBackend[T]
}

// NewChain creates an empty chain. Register backends with [Chain.Add] before
// the first [Run]; Add is not safe to call concurrently with Run.
func NewChain[T any](cfg ChainConfig) *Chain[T] {
	return &Chain[T]{cfg: cfg}
}

// Add registers a backend under its own breaker. Backends are tried in
// registration order.
func (c *Chain[T]) Add(name string, impl T) {
	bc := c.cfg.Breaker
	bc.Name = name
	kind, metrics := c.cfg.Kind, c.cfg.Metrics
	bc.OnStateChange = func(name string, from, to BreakerState) {
		level := slog.LevelWarn
		if to == BreakerClosed {
			level = slog.LevelInfo
		}
		slog.Log(context.Background(), level, "breaker state changed",
			"kind", kind, "backend", name, "from", from.String(), "to", to.String())
		if metrics != nil {
			metrics.RecordBreakerTransition(context.Background(), name, to.String())
		}
	}
	c.backends = append(c.backends, chainBackend[T]{
		name:    name,
		impl:    impl,
		breaker: NewBreaker(bc),
	})
}

// Len returns the number of registered backends.
func (c *Chain[T]) Len() int { return len(c.backends) }

// Primary returns the first registered backend, or false when the chain is
// empty.
func (c *Chain[T]) Primary() (T, bool) {
	if len(c.backends) == 0 {
		var zero T
		return zero, false
	}
	return c.backends[0].impl, true
}

// Run tries call against each backend in order until one succeeds. Backends
// with an open breaker are skipped. A success served by anything other than
// the primary counts as a failover. Returns [ErrExhausted] wrapping the last
// error when no backend succeeds.
//
// Run is a package-level function because Go has no method-level type
// parameters.
func Run[T, R any](ctx context.Context, c *Chain[T], call func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range c.backends {
		b := &c.backends[i]
		if err := b.breaker.Allow(); err != nil {
			slog.Debug("skipping backend, breaker open", "kind", c.cfg.Kind, "backend", b.name)
			lastErr = err
			continue
		}
		result, err := call(b.impl)
		b.breaker.Record(err)
		if err == nil {
			if i > 0 {
				slog.Info("failed over", "kind", c.cfg.Kind, "backend", b.name)
				if c.cfg.Metrics != nil {
					c.cfg.Metrics.RecordFailover(ctx, c.cfg.Kind, b.name)
				}
			}
			return result, nil
		}
		lastErr = err
		slog.Warn("backend failed, trying next", "kind", c.cfg.Kind, "backend", b.name, "err", err)
	}
	var zero R
	return zero, fmt.Errorf("%w (last: %v)", ErrExhausted, lastErr)
}
