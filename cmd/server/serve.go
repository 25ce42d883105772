package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"backoffice/internal/app"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application := app.New(app.Options{
		ConfigPath: configPath,
		Version:    version,
	})

	if err := application.Start(ctx); err != nil {
		_ = application.End(context.Background(), "start failed")
		return err
	}

	if _, err := application.Init(); err != nil {
		_ = application.End(context.Background(), "init failed")
		return err
	}

	log := app.CurrentLogger()
	cfg := app.CurrentConfig()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- application.Run()
	}()

	reason := "shutdown signal received"
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		reason = "http server stopped"
		if runErr != nil {
			_ = application.HandleError(runErr)
		}
	}
	log.Info(reason)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	return errors.Join(runErr, application.End(shutdownCtx, reason))
}
