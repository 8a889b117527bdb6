package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/visawatch/bulletin-cli/internal/config"
	"github.com/visawatch/bulletin-cli/internal/model"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "bulletin",
	Short: "Visa bulletin ingestion and analytics",
	Long:  "Fetches monthly State Department visa bulletins, normalizes their cutoff tables into a local store, and derives trend analytics and forecasts.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// exitError carries a process exit code chosen by a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// exitCode maps an error to the documented process exit codes: 2 partial
// success, 3 configuration, 4 storage, 5 network retries exhausted.
func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var ce *model.ConfigError
	if errors.As(err, &ce) {
		return 3
	}
	var se *model.StorageError
	if errors.As(err, &se) {
		return 4
	}
	var ne *model.NetworkError
	if errors.As(err, &ne) {
		return 5
	}
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
