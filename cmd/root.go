package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nightshift-games/checkpoint/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Screening-booth decision engine",
	Long:  "Runs screening sessions: evidence gathering under slot and credit budgets, directive-scored decisions, supervisor pattern alerts, shift progression.",
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
