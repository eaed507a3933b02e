package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eugenferber616-design/earnings-cache/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "earnings-cache",
	Short: "Locally cached index of upcoming company earnings dates",
	Long:  "Maintains a nightly-refreshed symbol-to-next-earnings index from bulk Finnhub calendar queries, writing the artifact only when its content actually changed.",
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
		os.Exit(1)
	}
}
