package main

import (
	"context"

	"github.com/joseph-ayodele/receipt-sync/internal/common"
	"github.com/joseph-ayodele/receipt-sync/internal/notify"
	"github.com/joseph-ayodele/receipt-sync/internal/portal"
	"github.com/joseph-ayodele/receipt-sync/internal/receipts"
	"github.com/joseph-ayodele/receipt-sync/internal/repository"
)

// runSync performs one pass. Only configuration problems are returned as
// errors; everything else ends up in the summary and the logs.
func runSync(ctx context.Context, e *env) error {
	cfg, logger := e.cfg, e.logger
	if err := cfg.Validate(); err != nil {
		return err
	}

	client, err := portal.NewClient(portal.Config{
		Login:              cfg.Portal.Login,
		Password:           cfg.Portal.Password,
		LoginURL:           cfg.Portal.LoginURL,
		ReceiptURLTemplate: cfg.Portal.ReceiptURLTemplate,
		MinInterval:        cfg.Portal.MinRequestInterval,
		Timeout:            cfg.Portal.RequestTimeout,
	}, logger)
	if err != nil {
		return common.WrapError(err, "portal client")
	}

	notifier := notify.New(notify.TelegramConfig{
		Token:   cfg.Telegram.Token,
		ChatID:  cfg.Telegram.ChatID,
		BaseURL: cfg.Telegram.BaseURL,
		Timeout: cfg.Telegram.Timeout,
	}, logger)

	opts := []receipts.Option{}
	if cfg.LedgerEnabled() {
		ledger, err := repository.Open(ctx, repository.Config{DSN: cfg.Storage.LedgerDSN}, logger)
		if err != nil {
			logger.Warn("sync.ledger.unavailable", "error", err)
		} else {
			defer ledger.Close()
			opts = append(opts, receipts.WithRecorder(ledger))
		}
	}

	sum := receipts.NewJob(client, notifier, cfg.Storage.DataRoot, cfg.Portal.Contracts, logger, opts...).Run(ctx)
	if sum.Err != nil {
		logger.Error("sync.run.failed", "run_id", sum.RunID, "error", sum.Err)
	}
	return nil
}
