package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/receipt-sync/internal/common"
	"github.com/joseph-ayodele/receipt-sync/internal/logging"
)

var Version = "dev"

// env is what every subcommand starts from.
type env struct {
	cfg    *common.Config
	logger *slog.Logger
	closer io.Closer
}

func setup() *env {
	cfg := common.LoadConfig()
	logger, closer := logging.New(logging.Config{
		Dir:      cfg.Log.Path,
		Level:    cfg.Log.Level,
		MaxBytes: cfg.Log.MaxBytes,
	})
	slog.SetDefault(logger)
	return &env{cfg: cfg, logger: logger, closer: closer}
}

func main() {
	e := setup()
	code := run(e)
	_ = e.closer.Close()
	os.Exit(code)
}

func run(e *env) (code int) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("uncaught error", "panic", fmt.Sprint(r))
			code = 1
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := rootCmd(e)
	if err := root.ExecuteContext(ctx); err != nil {
		if common.IsConfigError(err) {
			e.logger.Error("invalid configuration", "error", err)
		} else {
			e.logger.Error("command failed", "error", err)
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func rootCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipt-sync",
		Short: "Download utility receipts from the ERC portal and notify on new ones",
		Long: `Runs one synchronisation pass: for every contract in ERC_CONTRACT_NUMBERS the
current receipt is downloaded, compared with the last saved one, stored under
DATA_ROOT/{contract}/YYYY-MM-DD.pdf when it changed, and sent to Telegram.`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), e)
		},
	}
	cmd.AddCommand(exportCmd(e))
	cmd.AddCommand(healthCmd(e))
	return cmd
}
