package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadsync/internal/config"
)

var (
	cfg *config.Config

	logLevelFlag    string
	storeDriverFlag string
)

var rootCmd = &cobra.Command{
	Use:   "leadsync",
	Short: "Lead-form to Bitrix24 sync engine",
	Long:  "Turns lead-form submissions into a deduplicated Bitrix24 contact and a deal carrying the mapped quiz answers.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyFlagOverrides(cmd, c)
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

// applyFlagOverrides lets explicitly set global flags win over config.yaml
// and LEADSYNC_* values.
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Root().PersistentFlags()
	if flags.Changed("log-level") {
		c.Log.Level = logLevelFlag
	}
	if flags.Changed("store") {
		c.Store.Driver = storeDriverFlag
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&storeDriverFlag, "store", "", "journal driver override (sqlite, postgres, none)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
