package app

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"backoffice/internal/auth/credentials"
	"backoffice/internal/auth/provider"
	"backoffice/internal/auth/provider/github"
	"backoffice/internal/auth/provider/oidc"
	"backoffice/internal/auth/resolver"
	"backoffice/internal/db"
	"backoffice/internal/logger"
	"backoffice/internal/redis"
	"backoffice/internal/runtime"
	"backoffice/internal/session"
)

// DefaultComposers wires the production stack: database, session store,
// identity providers and the login services, started in that order.
func DefaultComposers() []Composer {
	return []Composer{
		ComposeDatabase,
		ComposeSessions,
		ComposeProviders,
		ComposeLogin,
	}
}

// ComposeDatabase registers the database component. The pool is opened
// when the component starts so a failed boot never leaks it.
func ComposeDatabase(_ context.Context, a *Application, reg *runtime.Register) error {
	cfg := a.cfg.Database
	if cfg.DSN == "" {
		return errors.New("database.dsn is required")
	}
	log := a.log.Named("database")

	return reg.Add(runtime.NewComponent("database",
		func(ctx context.Context) error {
			d, err := db.Open(cfg.Driver, cfg.DSN)
			if err != nil {
				return err
			}
			if err := d.WaitReady(ctx, cfg.ConnectTimeout, log); err != nil {
				_ = d.Close()
				return err
			}
			if err := db.Migrate(ctx, d.DB); err != nil {
				_ = d.Close()
				return fmt.Errorf("db: migrate: %w", err)
			}
			a.services.DB = d
			log.Info("database ready", zap.String("driver", cfg.Driver))
			return nil
		},
		func(context.Context) error {
			d := a.services.DB
			a.services.DB = nil
			if d == nil {
				return nil
			}
			return d.Close()
		},
	))
}

// ComposeSessions registers the redis connection (for the redis store)
// and the session store itself.
func ComposeSessions(_ context.Context, a *Application, reg *runtime.Register) error {
	cfg := a.cfg
	log := a.log.Named("sessions")

	if cfg.Sessions.Store == "redis" {
		err := reg.Add(runtime.NewComponent("redis",
			func(ctx context.Context) error {
				client, err := redis.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
				if err != nil {
					return err
				}
				a.services.Redis = client
				log.Info("redis ready", zap.String("addr", cfg.Redis.Addr))
				return nil
			},
			func(context.Context) error {
				client := a.services.Redis
				a.services.Redis = nil
				if client == nil {
					return nil
				}
				return client.Close()
			},
		))
		if err != nil {
			return err
		}
	}

	return reg.Add(runtime.NewComponent("sessions",
		func(context.Context) error {
			var client *goredis.Client
			if a.services.Redis != nil {
				client = a.services.Redis.Client
			}
			store, err := session.New(cfg.Sessions.Store, client)
			if err != nil {
				return err
			}
			a.services.Sessions = store
			log.Info("session store ready", zap.String("store", cfg.Sessions.Store))
			return nil
		},
		nil,
	))
}

// ComposeProviders builds every configured identity provider. OIDC
// discovery runs when the component starts.
func ComposeProviders(_ context.Context, a *Application, reg *runtime.Register) error {
	cfg := a.cfg.Providers
	log := a.log.Named("providers")

	return reg.Add(runtime.NewComponent("providers",
		func(ctx context.Context) error {
			var list []provider.OAuthProvider

			for _, pc := range cfg.OIDC {
				p, err := oidc.New(ctx, oidc.Config{
					Name:          pc.Name,
					DisplayName:   pc.DisplayName,
					Issuer:        pc.Issuer,
					ClientID:      pc.ClientID,
					ClientSecret:  pc.ClientSecret,
					RedirectURL:   pc.RedirectURL,
					Scopes:        pc.Scopes,
					PublicAuthURL: pc.PublicAuthURL,
				})
				if err != nil {
					return err
				}
				list = append(list, p)
			}

			if gh := cfg.GitHub; gh != nil {
				p, err := github.New(github.Config{
					ClientID:     gh.ClientID,
					ClientSecret: gh.ClientSecret,
					RedirectURL:  gh.RedirectURL,
					Scopes:       gh.Scopes,
				})
				if err != nil {
					return err
				}
				list = append(list, p)
			}

			a.services.Providers = provider.NewRegistry(list...)
			for _, p := range list {
				log.Info("identity provider ready", logger.Provider(p.Name()))
			}
			if len(list) == 0 {
				log.Warn("no identity providers configured; only password login is available")
			}
			return nil
		},
		nil,
	))
}

// ComposeLogin wires the external login resolver and local credentials
// onto the database.
func ComposeLogin(_ context.Context, a *Application, reg *runtime.Register) error {
	autoLink := a.cfg.Login.AutoLink

	return reg.Add(runtime.NewComponent("login",
		func(context.Context) error {
			if a.services.DB == nil {
				return errors.New("login services need the database")
			}
			a.services.Resolver = resolver.NewDBResolver(a.services.DB, resolver.Options{AutoLink: autoLink})
			a.services.Credentials = credentials.NewService(a.services.DB)
			return nil
		},
		nil,
	))
}
