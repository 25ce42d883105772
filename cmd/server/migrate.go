package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"backoffice/internal/config"
	"backoffice/internal/db"
	"backoffice/internal/logger"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			d, cfg, err := openDatabase(ctx, *configPath)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := db.Migrate(ctx, d.DB); err != nil {
				return err
			}
			logger.L().Info("schema migrated", zap.String("driver", cfg.Database.Driver))
			_ = logger.Sync()
			return nil
		},
	}
}

// openDatabase loads the config, initializes logging and waits for the
// database to answer.
func openDatabase(ctx context.Context, configPath string) (*db.DB, config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, config.Config{}, err
	}

	log := logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: cfg.App.Name,
		Version:     version,
	})

	d, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, cfg, err
	}
	if err := d.WaitReady(ctx, cfg.Database.ConnectTimeout, log); err != nil {
		_ = d.Close()
		return nil, cfg, err
	}
	return d, cfg, nil
}
