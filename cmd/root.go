// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mailforge/mailforge-cli/internal/config"
	"github.com/mailforge/mailforge-cli/internal/observability"
)

// NewRootCommand builds a fresh command tree. A new instance per execution
// keeps flag state from leaking between interactive invocations.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:     "mailforge",
		Short:   "Mailforge batch-provisions and maintains hosted email accounts.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Runs before any command, setting up config and logging.
			if err := initializeConfig(cfgFile); err != nil {
				return err
			}

			var cfg config.Config
			if err := viper.Unmarshal(&cfg); err != nil {
				// Initialize a fallback logger if config unmarshal fails.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "mailforge-cli"})
				return fmt.Errorf("failed to unmarshal config: %w", err)
			}
			observability.InitializeLogger(cfg.Logger)

			observability.GetLogger().Info("Starting mailforge-cli", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newCreateCmd())
	rootCmd.AddCommand(newChangeCmd())
	rootCmd.AddCommand(newExportCmd())

	return rootCmd
}

// Execute runs the command tree against a signal-aware context. Per-job
// failures never surface here; only configuration and batch-level errors
// produce a non-nil return (and therefore a non-zero exit).
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		return err
	}
	return nil
}

// initializeConfig reads in the config file and ENV variables if set.
func initializeConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MAILFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}
	return nil
}

// loadConfig resolves the final configuration after subcommand flags have
// been bound into viper.
func loadConfig() (*config.Config, error) {
	return config.NewConfigFromViper(viper.GetViper())
}
