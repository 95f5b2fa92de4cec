package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/canonical/landscape-client-sub002/cli"
	"github.com/canonical/landscape-client-sub002/errors"
)

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Force an interactive registration attempt and wait for the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.ComputerTitle == "" || cfg.AccountName == "" {
				return errors.New("register: account_name and computer_title must be configured")
			}

			logger := newLogger(cfg)
			b, err := newBroker(cfg, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			go func() { _ = b.reactor.Run(ctx) }()
			defer b.reactor.Stop()

			spinner := cli.NewSpinner(cli.WithSpinnerColor("blue"))
			spinner.Start()
			err = b.registration.Register(ctx)
			spinner.Stop()
			if err != nil {
				return errors.Wrap(err, "registration failed")
			}
			cmd.Println("registration succeeded: secure-id", b.identity.SecureID())
			return nil
		},
	}
}
