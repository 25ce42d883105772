// Package runtime boots and tears down the application's components.
//
// A Runtime moves through Unknown -> Boot -> Run -> Terminated, or to
// BootFailed when a composer or component fails. Composers populate a
// Register during Configure; Start then starts the registered components
// in order and Terminate stops the started ones in reverse.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"backoffice/internal/logger"
)

var ErrInvalidState = errors.New("runtime: invalid state")

// Composer adds components to the register during Configure.
type Composer func(ctx context.Context, reg *Register) error

// BootFailedError reports which stage or component stopped the boot.
type BootFailedError struct {
	Stage string
	Err   error
}

func (e *BootFailedError) Error() string {
	return fmt.Sprintf("runtime: boot failed at %s: %v", e.Stage, e.Err)
}

func (e *BootFailedError) Unwrap() error { return e.Err }

type Option func(*Runtime)

// WithComposers appends composers, run in order by Configure.
func WithComposers(c ...Composer) Option {
	return func(r *Runtime) { r.composers = append(r.composers, c...) }
}

// WithLevelObserver is called on every level change.
func WithLevelObserver(fn func(Level)) Option {
	return func(r *Runtime) { r.onLevel = fn }
}

type Runtime struct {
	log       *zap.Logger
	host      *HostingEnvironment
	composers []Composer
	onLevel   func(Level)

	// lifecycle serializes Configure/Start/Terminate; mu guards the fields below.
	lifecycle sync.Mutex
	mu        sync.RWMutex
	level     Level
	register  *Register
	started   []Component
}

func New(log *zap.Logger, host *HostingEnvironment, opts ...Option) *Runtime {
	if log == nil {
		log = logger.Named("runtime")
	}
	r := &Runtime{log: log, host: host}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Runtime) Level() Level {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.level
}

func (r *Runtime) Host() *HostingEnvironment {
	return r.host
}

func (r *Runtime) setLevel(l Level) {
	r.mu.Lock()
	r.level = l
	r.mu.Unlock()

	r.log.Info("runtime level changed", zap.Stringer("level", l))
	if r.onLevel != nil {
		r.onLevel(l)
	}
}

// Configure runs the composers against reg and keeps it for Start.
func (r *Runtime) Configure(ctx context.Context, reg *Register) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if lvl := r.Level(); lvl != LevelUnknown {
		return fmt.Errorf("%w: configure at level %s", ErrInvalidState, lvl)
	}

	r.setLevel(LevelBoot)

	for i, compose := range r.composers {
		if err := compose(ctx, reg); err != nil {
			r.setLevel(LevelBootFailed)
			return &BootFailedError{Stage: fmt.Sprintf("composer %d", i), Err: err}
		}
	}

	r.mu.Lock()
	r.register = reg
	r.mu.Unlock()

	r.log.Info("runtime configured", zap.Int("components", reg.Len()))
	return nil
}

// Start starts every registered component. When one fails, the ones
// already started are stopped in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.RLock()
	reg, lvl := r.register, r.level
	r.mu.RUnlock()

	if lvl != LevelBoot || reg == nil {
		return fmt.Errorf("%w: start at level %s", ErrInvalidState, lvl)
	}

	for _, c := range reg.Components() {
		begin := time.Now()
		if err := c.Start(ctx); err != nil {
			r.log.Error("component failed to start",
				logger.Component(c.Name()),
				zap.Error(err),
			)
			if stopErr := r.stopStarted(ctx); stopErr != nil {
				r.log.Warn("rollback after failed boot was incomplete", zap.Error(stopErr))
			}
			r.setLevel(LevelBootFailed)
			return &BootFailedError{Stage: c.Name(), Err: err}
		}

		r.mu.Lock()
		r.started = append(r.started, c)
		r.mu.Unlock()

		r.log.Debug("component started",
			logger.Component(c.Name()),
			logger.Duration(time.Since(begin)),
		)
	}

	r.setLevel(LevelRun)
	return nil
}

// Terminate stops started components in reverse order. Every component is
// asked to stop even if an earlier one fails; the errors are joined.
// Calling Terminate again is a no-op.
func (r *Runtime) Terminate(ctx context.Context) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if r.Level() == LevelTerminated {
		return nil
	}

	err := r.stopStarted(ctx)
	r.setLevel(LevelTerminated)
	return err
}

// Dispose drops the register. The runtime cannot be started again.
func (r *Runtime) Dispose() {
	r.mu.Lock()
	r.register = nil
	r.started = nil
	r.mu.Unlock()
}

func (r *Runtime) stopStarted(ctx context.Context) error {
	r.mu.Lock()
	started := r.started
	r.started = nil
	r.mu.Unlock()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		c := started[i]
		if err := c.Stop(ctx); err != nil {
			r.log.Error("component failed to stop", logger.Component(c.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("stop %s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}
