package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/race-sync/internal/config"
)

var cfg *config.Config

// errUnsuccessful marks a run whose summary was already printed.
var errUnsuccessful = errors.New("run reported failures")

var rootCmd = &cobra.Command{
	Use:           "race-sync",
	Short:         "Synchronize race data between the backend API and track workbooks",
	Long:          "Pulls daily entries and winners into each track's tracking sheet, rebuilds the dated TEE report sheets and TOTALS rollup, and submits hand-entered race data back to the backend.",
	SilenceUsage:  true,
	SilenceErrors: true,
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
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errUnsuccessful) {
			_ = printJSON(os.Stdout, failure{Error: err.Error()})
		}
		os.Exit(1)
	}
}
