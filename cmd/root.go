package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/warehousekit/dispatchd/app"
	"github.com/warehousekit/dispatchd/config"
	"github.com/warehousekit/dispatchd/infra/logger"
	"github.com/warehousekit/dispatchd/pkg/export"
)

// ErrRunFailed means the run finished but at least one dispatch was not
// accepted.
var ErrRunFailed = errors.New("run completed with failures")

var (
	cfgPath    string
	reportPath string
)

var rootCmd = &cobra.Command{
	Use:   "dispatchd",
	Short: "Warehouse task dispatch engine",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.Flags().StringVar(&reportPath, "report", "", "write the run report as JSON to this file")
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()

	report, runErr := svc.Run(ctx)
	fmt.Fprintln(cmd.OutOrStdout(), report.String())
	if reportPath != "" {
		f, err := os.Create(reportPath)
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer func() { _ = f.Close() }()
		if err := export.WriteJSON(f, report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	if report.Failed() {
		return ErrRunFailed
	}
	return nil
}
