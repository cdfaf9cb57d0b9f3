// Package strategy defines the pluggable navigation strategies: linear
// stepping, pattern projection, content similarity and a hybrid of both,
// plus the registry external plugins are loaded through.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/spritenav/analyzer"
	"github.com/hupe1980/spritenav/model"
	"github.com/hupe1980/spritenav/predictor"
	"github.com/hupe1980/spritenav/regionmap"
	"github.com/hupe1980/spritenav/rom"
	"github.com/hupe1980/spritenav/similarity"
)

// Query is the state a strategy works from. The engine owns the
// referenced structures and holds its lock for the duration of the call;
// Map and Sim are live, while Model is a derived view that may lag the
// map by at most one insert batch.
type Query struct {
	Context model.NavigationContext
	ROMSize uint64

	Map   *regionmap.Map
	Model *analyzer.Model
	Sim   *similarity.Index
	Pred  *predictor.Predictor

	// ROM is optional; strategies must work without byte access.
	ROM rom.ByteProvider

	// Floor is the intelligence floor: below this many confirmed
	// locations every strategy degrades to linear stepping.
	Floor int

	// LinearStep is the base step for linear scanning.
	LinearStep uint64
}

// MaxHints returns the effective hint limit.
func (q Query) MaxHints() int {
	if q.Context.MaxHints > 0 {
		return q.Context.MaxHints
	}
	return 10
}

// Strategy produces ranked navigation hints for a query.
type Strategy interface {
	Name() string
	Kind() model.StrategyKind
	FindNext(ctx context.Context, q Query) ([]model.NavigationHint, error)
}

// Factory constructs a strategy instance. Plugin factories may fail.
type Factory func() (Strategy, error)

// ErrNotRegistered is returned when resolving an unknown strategy name.
var ErrNotRegistered = errors.New("strategy not registered")

// ErrDisabled is returned when resolving a strategy that failed earlier in
// the session and was isolated.
var ErrDisabled = errors.New("strategy disabled")

// Registry holds named strategy factories. Built-ins and plugins share the
// same mechanism; the engine disables a plugin for the session when it
// fails to load or misbehaves during FindNext.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]Strategy
	disabled  map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Strategy),
		disabled:  make(map[string]bool),
	}
}

// Register adds or replaces a strategy factory under name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	delete(r.instances, name)
	delete(r.disabled, name)
}

// Unregister removes a strategy.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, name)
	delete(r.instances, name)
	delete(r.disabled, name)
}

// Resolve returns the strategy instance for name, constructing it on first
// use. A factory error disables the strategy for the session.
func (r *Registry) Resolve(name string) (Strategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disabled[name] {
		return nil, fmt.Errorf("%w: %s", ErrDisabled, name)
	}
	if s, ok := r.instances[name]; ok {
		return s, nil
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	s, err := f()
	if err != nil {
		r.disabled[name] = true
		return nil, fmt.Errorf("strategy %s failed to load: %w", name, err)
	}
	r.instances[name] = s
	return s, nil
}

// Disable isolates a strategy for the remainder of the session.
func (r *Registry) Disable(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled[name] = true
	delete(r.instances, name)
}

// Disabled reports whether a strategy has been isolated.
func (r *Registry) Disabled(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disabled[name]
}

// Names returns all registered names, including disabled ones.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	return out
}

// Dedupe collapses hints whose targets lie within epsilon of each other,
// keeping the higher-scored one. The result stays score-ordered.
func Dedupe(hints []model.NavigationHint, epsilon uint64) []model.NavigationHint {
	return dedupeNear(hints, epsilon)
}

// belowFloor reports whether the map is too sparse for pattern/similarity
// inference. This floor is deliberate: strategies degrade to linear
// stepping instead of inferring from insufficient data.
func belowFloor(q Query) bool {
	return q.Map == nil || q.Map.Len() < q.Floor
}

// dedupeNear collapses hints whose targets lie within epsilon of each
// other, keeping the higher-scored one.
func dedupeNear(hints []model.NavigationHint, epsilon uint64) []model.NavigationHint {
	model.SortHints(hints)

	out := hints[:0]
	for _, h := range hints {
		dup := false
		for _, kept := range out {
			var d uint64
			if h.TargetOffset > kept.TargetOffset {
				d = h.TargetOffset - kept.TargetOffset
			} else {
				d = kept.TargetOffset - h.TargetOffset
			}
			if d <= epsilon {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, h)
		}
	}
	return out
}
