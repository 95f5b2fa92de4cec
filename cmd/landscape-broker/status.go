package main

import (
	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the broker's persisted registration and queue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			logger := newLogger(cfg)
			b, err := newBroker(cfg, logger)
			if err != nil {
				return err
			}

			registered := b.identity.Registered()
			cmd.Println("registered:", registered)
			if registered {
				cmd.Println("secure-id:", b.identity.SecureID())
			}
			cmd.Println("account:", cfg.AccountName)
			cmd.Println("computer-title:", cfg.ComputerTitle)
			cmd.Println("pending-messages:", b.store.CountPendingMessages())
			cmd.Println("sequence:", b.store.GetSequence())
			return nil
		},
	}
}
