package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dugoutlabs/dugout-client/internal/app"
	"github.com/dugoutlabs/dugout-client/internal/session"
)

func newLoginCmd(flags *rootFlags) *cobra.Command {
	var (
		email    string
		password string
		remember bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}

			application, err := app.New(cfg, session.Hooks{}, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			ctx := cmd.Context()
			if err := application.Session.Login(ctx, email, password, remember); err != nil {
				return err
			}

			user := application.Session.User()
			fmt.Printf("Signed in as %s", user.Nickname)
			if remember {
				fmt.Print(" (session remembered)")
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().BoolVar(&remember, "remember", false, "persist the session across restarts")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
