package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/warehousekit/dispatchd/config"
	"github.com/warehousekit/dispatchd/core/engine/logging"
	"github.com/warehousekit/dispatchd/pkg/export"
)

var (
	exportOut   string
	exportGroup string
	exportSince string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded dispatch attempts as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		var store logging.Store
		switch cfg.Logging.Backend {
		case "sqlite":
			store, err = logging.NewSQLiteStore(cfg.Logging.Path)
		default:
			store, err = logging.NewJSONLStore(cfg.Logging.Path,
				cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups, cfg.Logging.MaxAgeDays)
		}
		if err != nil {
			return fmt.Errorf("open attempt log: %w", err)
		}
		defer func() { _ = store.Close() }()

		q := logging.Query{Group: exportGroup}
		if exportSince != "" {
			start, err := time.Parse(time.RFC3339, exportSince)
			if err != nil {
				return fmt.Errorf("parse --since: %w", err)
			}
			q.Start = start
		}
		records, err := store.Query(cmd.Context(), q)
		if err != nil {
			return fmt.Errorf("query attempts: %w", err)
		}

		out := cmd.OutOrStdout()
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer func() { _ = f.Close() }()
			out = f
		}
		return export.WriteCSV(out, records)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&exportGroup, "group", "", "filter by group id")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "RFC3339 lower bound on attempt time")
	rootCmd.AddCommand(exportCmd)
}
