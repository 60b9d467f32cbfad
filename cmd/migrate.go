package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the capture ledger schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("leads"); err != nil {
			return err
		}
		ledger, err := initLedger(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if ledger == nil {
			return eris.New("no ledger configured (store.ledger.driver is none)")
		}
		defer ledger.Close() //nolint:errcheck

		zap.L().Info("ledger schema applied", zap.String("driver", cfg.Store.Ledger.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
