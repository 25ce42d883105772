package app

import (
	"sync"

	"go.uber.org/zap"

	"backoffice/internal/config"
	"backoffice/internal/logger"
	"backoffice/internal/runtime"
)

// Process-wide state shared by every Application in the process. It is
// built by the first Start and cleared by End.
var current struct {
	mu   sync.Mutex
	cfg  *config.Config
	host *runtime.HostingEnvironment
}

// CurrentLogger returns the process logger, or nil before Start.
func CurrentLogger() *zap.Logger {
	if !logger.Initialized() {
		return nil
	}
	return logger.L()
}

// CurrentConfig returns the loaded configuration, or nil before Start.
func CurrentConfig() *config.Config {
	current.mu.Lock()
	defer current.mu.Unlock()
	return current.cfg
}

// CurrentHost returns the hosting environment, or nil before Start.
func CurrentHost() *runtime.HostingEnvironment {
	current.mu.Lock()
	defer current.mu.Unlock()
	return current.host
}

// Reset flushes the logger and forgets the process-wide state.
func Reset() {
	current.mu.Lock()
	current.cfg = nil
	current.host = nil
	current.mu.Unlock()

	logger.Reset()
}

func ensureConfig(path string) (*config.Config, error) {
	current.mu.Lock()
	defer current.mu.Unlock()

	if current.cfg != nil {
		return current.cfg, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	current.cfg = &cfg
	return current.cfg, nil
}

func ensureLogger(cfg *config.Config, version string) *zap.Logger {
	return logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: cfg.App.Name,
		Version:     version,
	})
}

func ensureHost(cfg *config.Config, version string) *runtime.HostingEnvironment {
	current.mu.Lock()
	defer current.mu.Unlock()

	if current.host == nil {
		current.host = runtime.NewHostingEnvironment(cfg.App.Name, version, cfg.App.Env != "prod")
	}
	return current.host
}
