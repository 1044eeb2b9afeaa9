package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/receipt-sync/internal/common"
	"github.com/joseph-ayodele/receipt-sync/internal/repository"
)

func healthCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check configuration and ledger connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.cfg.Validate(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "contracts:     %d\n", len(e.cfg.Portal.Contracts))
			fmt.Fprintf(out, "data root:     %s\n", e.cfg.Storage.DataRoot)
			fmt.Fprintf(out, "notifications: %s\n", onOff(e.cfg.NotificationsEnabled()))

			if !e.cfg.LedgerEnabled() {
				fmt.Fprintln(out, "ledger:        off")
				return nil
			}
			ledger, err := repository.Open(cmd.Context(), repository.Config{DSN: e.cfg.Storage.LedgerDSN}, e.logger)
			if err != nil {
				return common.WrapError(err, "ledger health: FAIL")
			}
			defer ledger.Close()
			fmt.Fprintln(out, "ledger:        OK")
			return nil
		},
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
