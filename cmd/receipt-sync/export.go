package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/receipt-sync/internal/common"
	"github.com/joseph-ayodele/receipt-sync/internal/export"
	"github.com/joseph-ayodele/receipt-sync/internal/repository"
	"github.com/joseph-ayodele/receipt-sync/internal/utils"
)

func exportCmd(e *env) *cobra.Command {
	var out, contract, fromStr, toStr string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the run ledger to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !e.cfg.LedgerEnabled() {
				return common.NewAppError(common.CodeConfig, "LEDGER_DSN is off, nothing to export", common.ErrInvalidInput)
			}
			from, err := parseDay("--from", fromStr)
			if err != nil {
				return err
			}
			to, err := parseDay("--to", toStr)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			ledger, err := repository.Open(ctx, repository.Config{DSN: e.cfg.Storage.LedgerDSN}, e.logger)
			if err != nil {
				return common.WrapError(err, "open ledger")
			}
			defer ledger.Close()

			filter := export.Window(contract, from, to, time.Now())
			xlsx, err := export.NewService(ledger, e.logger).ExportLedgerXLSX(ctx, filter)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, xlsx, 0o644); err != nil {
				return common.WrapError(err, "write "+out)
			}
			e.logger.Info("export.written", "output", out, "bytes", len(xlsx))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "receipt-sync.xlsx", "output XLSX file path")
	cmd.Flags().StringVar(&contract, "contract", "", "only this contract")
	cmd.Flags().StringVar(&fromStr, "from", "", "from date YYYY-MM-DD (inclusive)")
	cmd.Flags().StringVar(&toStr, "to", "", "to date YYYY-MM-DD (inclusive)")
	return cmd
}

func parseDay(flag, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := utils.ParseYMD(s)
	if err != nil {
		return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("invalid %s date, use YYYY-MM-DD", flag), err)
	}
	return &t, nil
}
