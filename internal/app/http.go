package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"backoffice/internal/auth/handler"
	"backoffice/internal/auth/provider"
	"backoffice/internal/middleware"
	"backoffice/internal/web"
)

const healthTimeout = 2 * time.Second

func (a *Application) newRouter() *gin.Engine {
	if a.cfg.App.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	svc := &a.services

	router := gin.New()
	router.Use(middleware.RequestLogger(a.log.Named("http")))
	router.Use(a.recovery())

	authMiddleware := middleware.GinRequireAuth(middleware.NewAuthMiddleware(svc.Sessions))

	providers := svc.Providers
	if providers == nil {
		providers = provider.NewRegistry()
	}

	authHandler := handler.NewHandler(
		providers,
		svc.Sessions,
		svc.Resolver,
		svc.Credentials,
		a.metrics,
		handler.Options{
			SessionTTL:   a.cfg.Sessions.TTL,
			CookieSecure: a.cfg.Sessions.CookieSecure,
			LoginPath:    web.LoginPath,
		},
	)
	authHandler.RegisterRoutes(router, authMiddleware)

	web.Register(router, a.cfg.App.Name, func() *provider.Registry { return providers })
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, web.LoginPath)
	})

	router.GET("/health", a.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	api.Use(authMiddleware)
	api.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString(middleware.UserIDKey),
		})
	})

	router.NoRoute(func(c *gin.Context) {
		_ = a.HandleError(&HTTPError{
			Status: http.StatusNotFound,
			Err:    fmt.Errorf("no route for %s %s", c.Request.Method, c.Request.URL.Path),
		})
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}

// recovery turns panics into 500s and reports them through HandleError.
// A rethrown error panics again so the server drops the connection.
func (a *Application) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r == http.ErrAbortHandler {
				panic(r)
			}

			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", r)
			}

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})

			if rethrown := a.HandleError(err); rethrown != nil {
				panic(rethrown)
			}
		}()
		c.Next()
	}
}

// health pings the database and redis concurrently.
func (a *Application) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	checks := gin.H{}
	svc := &a.services

	g, gctx := errgroup.WithContext(ctx)
	if svc.DB != nil {
		checks["database"] = "ok"
		g.Go(func() error {
			if err := svc.DB.PingContext(gctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
			return nil
		})
	}
	if svc.Redis != nil {
		checks["redis"] = "ok"
		g.Go(func() error {
			if err := svc.Redis.Ping(gctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"level":  a.Level().String(),
			"error":  err.Error(),
			"checks": checks,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"level":  a.Level().String(),
		"checks": checks,
	})
}
