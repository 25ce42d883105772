package runtime

import (
	"context"
	"errors"
	"fmt"
)

var ErrDuplicateComponent = errors.New("runtime: duplicate component")

// Component is a unit the runtime starts in registration order and stops
// in reverse.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type funcComponent struct {
	name  string
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

// NewComponent builds a Component from functions. Either may be nil.
func NewComponent(name string, start, stop func(ctx context.Context) error) Component {
	return &funcComponent{name: name, start: start, stop: stop}
}

func (c *funcComponent) Name() string { return c.name }

func (c *funcComponent) Start(ctx context.Context) error {
	if c.start == nil {
		return nil
	}
	return c.start(ctx)
}

func (c *funcComponent) Stop(ctx context.Context) error {
	if c.stop == nil {
		return nil
	}
	return c.stop(ctx)
}

// Register is the ordered list of components a runtime boots.
type Register struct {
	components []Component
	names      map[string]struct{}
}

func NewRegister() *Register {
	return &Register{names: map[string]struct{}{}}
}

// Add appends c. Names must be unique.
func (r *Register) Add(c Component) error {
	if _, ok := r.names[c.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateComponent, c.Name())
	}
	r.names[c.Name()] = struct{}{}
	r.components = append(r.components, c)
	return nil
}

// Components returns a copy in registration order.
func (r *Register) Components() []Component {
	out := make([]Component, len(r.components))
	copy(out, r.components)
	return out
}

func (r *Register) Len() int {
	return len(r.components)
}
