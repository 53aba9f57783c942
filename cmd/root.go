package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"data-reconciler/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var datasetsFile string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "data-reconciler",
	Short: "Dataset Reconciliation Service",
	Long: `Data Reconciler stages heterogeneous tabular sources into canonical tables,
validates them and reports row presence and value differences between pairs.
Sources can be CSV, Parquet, Excel, JSON, s3:// objects or database tables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	// Interrupts cancel the running pipeline between steps.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := RootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		// Use the application's standard logger for error reporting
		// We default to console format to match user expectations (CLI tool)
		// We use "debug" level configuration to get ISO8601 timestamps (DevConfig) instead of Epoch (ProdConfig)
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Println(err)
		}
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&datasetsFile, "datasets", "", "Datasets file (defaults to DATASETS_FILE or datasets.yaml)")
}
