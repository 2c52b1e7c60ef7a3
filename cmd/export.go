// File: cmd/export.go
package cmd

import (
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mailforge/mailforge-cli/internal/accounts"
	"github.com/mailforge/mailforge-cli/internal/observability"
)

// newExportCmd creates and configures the `export` command.
func newExportCmd() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Exports the account store as a CSV table or as email/password/totp lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			formatName, _ := cmd.Flags().GetString("format")
			format, err := accounts.ParseFormat(formatName)
			if err != nil {
				return err
			}

			store, pool, err := newStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			output, _ := cmd.Flags().GetString("output")
			outputPath, err := homedir.Expand(output)
			if err != nil {
				return fmt.Errorf("failed to resolve output path: %w", err)
			}

			f, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("failed to create export file %s: %w", outputPath, err)
			}
			defer f.Close()

			if err := store.Export(f, format); err != nil {
				return fmt.Errorf("failed to export accounts: %w", err)
			}

			records, err := store.Load()
			if err != nil {
				return err
			}
			logger.Info("Accounts exported",
				zap.String("file", outputPath),
				zap.String("format", string(format)),
				zap.Int("accounts", len(records)),
			)

			fmt.Printf("\n===== Exported accounts (%d) =====\n", len(records))
			if err := store.Export(os.Stdout, accounts.FormatLine); err != nil {
				return err
			}
			fmt.Println("==================================")
			return nil
		},
	}

	exportCmd.Flags().StringP("output", "o", "", "Output file path")
	exportCmd.Flags().String("format", string(accounts.FormatLine), `Export format: "csv" or "text"`)
	_ = exportCmd.MarkFlagRequired("output")

	return exportCmd
}
