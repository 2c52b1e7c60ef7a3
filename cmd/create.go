// File: cmd/create.go
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mailforge/mailforge-cli/internal/jobs"
	"github.com/mailforge/mailforge-cli/internal/observability"
)

// newCreateCmd creates and configures the `create` command.
func newCreateCmd() *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Creates a batch of new accounts with synthesized identities",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so command-line values override
			// the config file and environment with the right precedence.
			if err := viper.BindPFlag("engine.workers", cmd.Flags().Lookup("threads")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if noHeadless, _ := cmd.Flags().GetBool("no-headless"); noHeadless {
				cfg.Browser.Headless = false
			}
			count, _ := cmd.Flags().GetInt("count")
			if count < 1 {
				count = 1
			}

			components, err := initializeRunComponents(ctx, cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			logger.Info("Creating accounts",
				zap.Int("count", count),
				zap.Int("threads", cfg.Engine.Workers),
				zap.Bool("headless", cfg.Browser.Headless),
			)

			batch := make([]jobs.Job, 0, count)
			for i := 0; i < count; i++ {
				batch = append(batch, jobs.NewCreateJob())
			}

			_, summary := components.Dispatcher.Run(ctx, batch, cfg.Engine.Workers)
			logger.Info("Creation finished",
				zap.Int("succeeded", summary.Succeeded),
				zap.Int("attempted", summary.Attempted),
			)

			exportSnapshot(components.Store, "mailforge_accounts_export_", logger)
			// Partial success is still success at the batch level.
			return nil
		},
	}

	createCmd.Flags().IntP("count", "n", 1, "Number of accounts to create")
	createCmd.Flags().IntP("threads", "t", 0, "Number of concurrent workers (overrides config/env)")
	createCmd.Flags().Bool("no-headless", false, "Run browsers with a visible window")
	addProxyFlags(createCmd)

	return createCmd
}
