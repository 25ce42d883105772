// Package app adapts the back-office to the process lifecycle: Start boots
// the runtime, Init builds the HTTP surface, HandleError reports unhandled
// errors and End tears everything down again.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"backoffice/internal/auth/handler"
	"backoffice/internal/auth/provider"
	"backoffice/internal/auth/resolver"
	"backoffice/internal/config"
	"backoffice/internal/db"
	"backoffice/internal/metrics"
	"backoffice/internal/redis"
	"backoffice/internal/runtime"
	"backoffice/internal/session"
)

var (
	ErrAlreadyStarted = errors.New("app: already started")
	ErrNotStarted     = errors.New("app: not started")
)

// HTTPError carries an HTTP status with the error that produced it.
type HTTPError struct {
	Status int
	Err    error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %v", e.Status, e.Err)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// Composer registers runtime components for the application.
type Composer func(ctx context.Context, a *Application, reg *runtime.Register) error

type Options struct {
	ConfigPath string
	Version    string
	// Composers replace DefaultComposers when set.
	Composers []Composer

	OnStarting func(a *Application)
	OnStarted  func(a *Application)
	OnError    func(err error)
	OnEnd      func(reason string)
}

// Services are filled in by the composers' components as they start.
type Services struct {
	DB          *db.DB
	Redis       *redis.Client
	Sessions    session.Store
	Providers   *provider.Registry
	Resolver    resolver.Resolver
	Credentials handler.PasswordAuthenticator
}

type Application struct {
	opts Options

	mu       sync.Mutex
	log      *zap.Logger
	cfg      *config.Config
	host     *runtime.HostingEnvironment
	metrics  *metrics.Metrics
	runtime  *runtime.Runtime
	services Services
	server   *http.Server
	started  bool
	ended    bool
}

func New(opts Options) *Application {
	if opts.Composers == nil {
		opts.Composers = DefaultComposers()
	}
	return &Application{opts: opts}
}

// Start loads the process-wide logger, config and hosting environment
// (reusing any that exist), then configures and starts the runtime.
func (a *Application) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return ErrAlreadyStarted
	}

	cfg, err := ensureConfig(a.opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.cfg = cfg
	a.log = ensureLogger(cfg, a.opts.Version)
	a.host = ensureHost(cfg, a.opts.Version)
	a.metrics = metrics.New()
	a.started = true

	if a.opts.OnStarting != nil {
		a.opts.OnStarting(a)
	}

	composers := make([]runtime.Composer, 0, len(a.opts.Composers))
	for _, c := range a.opts.Composers {
		composers = append(composers, func(ctx context.Context, reg *runtime.Register) error {
			return c(ctx, a, reg)
		})
	}

	a.runtime = runtime.New(
		a.log.Named("runtime"),
		a.host,
		runtime.WithComposers(composers...),
		runtime.WithLevelObserver(func(l runtime.Level) {
			a.metrics.RuntimeLevel.Set(float64(l))
		}),
	)

	a.log.Info("application starting",
		zap.String("host", a.host.Hostname),
		zap.Bool("debug", a.host.Debug),
	)

	begin := time.Now()
	if err := a.runtime.Configure(ctx, runtime.NewRegister()); err != nil {
		a.log.Error("application failed to start", zap.Error(err))
		return err
	}
	if err := a.runtime.Start(ctx); err != nil {
		a.log.Error("application failed to start", zap.Error(err))
		return err
	}

	a.log.Info("application started", zap.Duration("took", time.Since(begin)))

	if a.opts.OnStarted != nil {
		a.opts.OnStarted(a)
	}
	return nil
}

// Init builds the HTTP handler. The runtime must be running.
func (a *Application) Init() (http.Handler, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started || a.runtime == nil || a.runtime.Level() != runtime.LevelRun {
		return nil, ErrNotStarted
	}

	router := a.newRouter()
	a.server = &http.Server{
		Addr:              ":" + a.cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return router, nil
}

// Run serves HTTP until End shuts the server down.
func (a *Application) Run() error {
	a.mu.Lock()
	srv := a.server
	a.mu.Unlock()

	if srv == nil {
		return ErrNotStarted
	}

	a.log.Info("http server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("app: http server: %w", err)
	}
	return nil
}

// HandleError reports an unhandled error. Not-found errors are ignored.
// The error is returned to the caller only when app.rethrow_errors is set.
func (a *Application) HandleError(err error) error {
	if err == nil {
		return nil
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
		return nil
	}

	log := a.logger()
	log.Error("unhandled application error", zap.Error(err))

	if a.metrics != nil {
		a.metrics.ApplicationErrors.Inc()
	}
	if a.opts.OnError != nil {
		a.opts.OnError(err)
	}

	if a.cfg != nil && a.cfg.App.RethrowErrors {
		return err
	}
	return nil
}

// End shuts the HTTP server down, terminates and disposes the runtime and
// resets the process-wide state. Only the first call does anything.
func (a *Application) End(ctx context.Context, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ended {
		return nil
	}
	a.ended = true

	log := a.logger()
	log.Info("application ending", zap.String("reason", reason))

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	if a.runtime != nil {
		if err := a.runtime.Terminate(ctx); err != nil {
			errs = append(errs, err)
		}
		a.runtime.Dispose()
	}

	if a.opts.OnEnd != nil {
		a.opts.OnEnd(reason)
	}

	err := errors.Join(errs...)
	if err != nil {
		log.Error("application ended with errors", zap.Error(err))
	} else {
		log.Info("application ended")
	}

	Reset()
	return err
}

// Config returns the configuration the application started with.
func (a *Application) Config() *config.Config {
	return a.cfg
}

func (a *Application) Host() *runtime.HostingEnvironment {
	return a.host
}

func (a *Application) Metrics() *metrics.Metrics {
	return a.metrics
}

// Services exposes the started services to composers and tests.
func (a *Application) Services() *Services {
	return &a.services
}

// Level reports the runtime level.
func (a *Application) Level() runtime.Level {
	if a.runtime == nil {
		return runtime.LevelUnknown
	}
	return a.runtime.Level()
}

func (a *Application) logger() *zap.Logger {
	if a.log != nil {
		return a.log
	}
	return zap.NewNop()
}
