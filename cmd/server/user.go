package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"backoffice/internal/auth/credentials"
	"backoffice/internal/db"
	"backoffice/internal/logger"
)

func newUserCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage back-office users",
	}
	cmd.AddCommand(newUserCreateCmd(configPath))
	return cmd
}

func newUserCreateCmd(configPath *string) *cobra.Command {
	var userName, email, password string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a back-office user with a local password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			d, _, err := openDatabase(ctx, *configPath)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := db.Migrate(ctx, d.DB); err != nil {
				return err
			}

			userID, err := credentials.NewService(d).Register(ctx, userName, email, password)
			switch {
			case errors.Is(err, credentials.ErrAlreadyRegistered):
				return fmt.Errorf("user %s already has a password", email)
			case err != nil:
				return err
			}

			logger.L().Info("user created", logger.UserID(userID))
			fmt.Fprintln(cmd.OutOrStdout(), userID)
			_ = logger.Sync()
			return nil
		},
	}

	cmd.Flags().StringVar(&userName, "user-name", "", "User name (defaults to the email)")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
