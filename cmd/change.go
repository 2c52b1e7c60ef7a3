// File: cmd/change.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mailforge/mailforge-cli/internal/jobs"
	"github.com/mailforge/mailforge-cli/internal/observability"
)

// newChangeCmd creates and configures the `change` command.
func newChangeCmd() *cobra.Command {
	changeCmd := &cobra.Command{
		Use:   "change",
		Short: "Rotates the password of existing accounts",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("engine.workers", cmd.Flags().Lookup("threads")); err != nil {
				return err
			}
			// An explicit accounts file narrows the csv backend to that file.
			if file, _ := cmd.Flags().GetString("file"); file != "" {
				viper.Set("store.accounts_file", file)
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

			components, err := initializeRunComponents(ctx, cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			records, err := components.Store.Load()
			if err != nil {
				return fmt.Errorf("failed to load target accounts: %w", err)
			}

			// Optional single-account filter; an email not present in the
			// store is a configuration error, not a job failure.
			if email, _ := cmd.Flags().GetString("email"); email != "" {
				filtered := records[:0]
				for _, rec := range records {
					if rec.Email == email {
						filtered = append(filtered, rec)
					}
				}
				records = filtered
				if len(records) == 0 {
					return fmt.Errorf("email %s not found in the account store", email)
				}
			}
			if len(records) == 0 {
				return fmt.Errorf("no accounts to process")
			}

			logger.Info("Changing passwords",
				zap.Int("accounts", len(records)),
				zap.Int("threads", cfg.Engine.Workers),
			)

			batch := make([]jobs.Job, 0, len(records))
			for _, rec := range records {
				batch = append(batch, jobs.NewChangePasswordJob(rec.Email, rec.Password, ""))
			}

			_, summary := components.Dispatcher.Run(ctx, batch, cfg.Engine.Workers)
			logger.Info("Password change finished",
				zap.Int("succeeded", summary.Succeeded),
				zap.Int("attempted", summary.Attempted),
			)

			exportSnapshot(components.Store, "mailforge_accounts_updated_", logger)
			return nil
		},
	}

	changeCmd.Flags().StringP("file", "f", "", "Accounts file to load targets from (csv backend)")
	changeCmd.Flags().StringP("email", "e", "", "Only rotate the password of this account")
	changeCmd.Flags().IntP("threads", "t", 0, "Number of concurrent workers (overrides config/env)")
	changeCmd.Flags().Bool("no-headless", false, "Run browsers with a visible window")
	addProxyFlags(changeCmd)

	return changeCmd
}
