// Command shopauth runs the back-office auth service and its maintenance
// tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/internal/logger"
)

var (
	envFile string
	cfg     shopauth.Config
	log     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "shopauth",
	Short:         "Back-office authentication service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := shopauth.LoadConfig(envFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded

		l, err := logger.New(logger.Config{
			Level: cfg.Log.Level,
			Dev:   cfg.Log.Dev,
			File:  cfg.Log.File,
		})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "shopauth:", err)
		os.Exit(1)
	}
}
