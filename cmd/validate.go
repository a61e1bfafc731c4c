package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warehousekit/dispatchd/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: %d groups, %d pickups, mode=%s\n",
			len(cfg.Groups), cfg.TotalPickups(), cfg.Pacing.Mode)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
