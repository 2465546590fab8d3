// Package strategy defines the Strategy interface for signal generators,
// a Registry of strategy factories, and the Backtester that replays a price
// series through a strategy and the execution engine.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"quantick/internal/domain"
	"quantick/internal/series"
	"quantick/internal/tick"
)

// ErrUnknownStrategy is returned when a strategy name is not registered.
var ErrUnknownStrategy = errors.New("unknown strategy")

// ErrInvalidRequest wraps every problem found by Request.Validate and every
// parameter a strategy rejects in Init.
var ErrInvalidRequest = errors.New("invalid backtest request")

// Strategy is the interface that all signal generators must implement. A
// Strategy instance serves exactly one evaluation.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init binds the strategy to the shared clock and price series and
	// applies its parameters. It is called once, before the first tick.
	Init(clock tick.Clock, prices series.Series, params Params) error

	// Next returns the signal for the clock's current tick. It is called
	// exactly once per tick, in tick order.
	Next() domain.Signal
}

// Factory creates a fresh, uninitialised Strategy.
type Factory func() Strategy

// Registry holds named strategy factories for lookup and enumeration. It is
// safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New returns a fresh instance of the named strategy.
func (r *Registry) New(name string) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return f(), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
