// File: cmd/components.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mailforge/mailforge-cli/internal/accounts"
	"github.com/mailforge/mailforge-cli/internal/browser"
	"github.com/mailforge/mailforge-cli/internal/config"
	"github.com/mailforge/mailforge-cli/internal/dispatch"
	"github.com/mailforge/mailforge-cli/internal/jobs"
	"github.com/mailforge/mailforge-cli/internal/proxy"
)

// runComponents holds the initialized services behind a batch run.
type runComponents struct {
	Store      accounts.Store
	Rotation   *proxy.Rotation
	Dispatcher *dispatch.Dispatcher
	DBPool     *pgxpool.Pool
}

// Shutdown releases whatever the backend holds open.
func (rc *runComponents) Shutdown() {
	if rc.DBPool != nil {
		rc.DBPool.Close()
	}
}

// initializeRunComponents handles dependency injection for the create and
// change commands: store backend, proxy rotation, browser factory, job
// runner, dispatcher.
func initializeRunComponents(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) (*runComponents, error) {
	components := &runComponents{}

	store, pool, err := newStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	components.Store = store
	components.DBPool = pool

	rotation, err := buildRotation(ctx, cmd, cfg, logger)
	if err != nil {
		components.Shutdown()
		return nil, err
	}
	components.Rotation = rotation

	factory := browser.NewChromeFactory(cfg.Browser, logger)
	runner := jobs.NewRunner(cfg.Browser, cfg.Identity, jobs.OTPSecretProvider{Issuer: "mailforge"}, logger)

	dispatcher, err := dispatch.New(factory, rotation, store, runner, cfg.Engine, logger)
	if err != nil {
		components.Shutdown()
		return nil, fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	components.Dispatcher = dispatcher

	return components, nil
}

// newStore selects the configured store backend.
func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (accounts.Store, *pgxpool.Pool, error) {
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		store, err := accounts.NewPgStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		return store, pool, nil
	default:
		accountsPath, err := homedir.Expand(cfg.Store.AccountsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve accounts file path: %w", err)
		}
		totpPath, err := homedir.Expand(cfg.Store.TotpFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve totp file path: %w", err)
		}
		return accounts.NewFileStore(accountsPath, totpPath, logger), nil, nil
	}
}

// addProxyFlags registers the egress flags shared by create and change.
func addProxyFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("proxy", "p", "", "SOCKS5 proxy endpoint, host:port")
	cmd.Flags().StringP("proxy-file", "P", "", "File with one proxy endpoint per line")
	cmd.Flags().Bool("verify-proxies", false, "Probe each loaded proxy with a SOCKS5 dial and drop the dead ones")
}

// buildRotation assembles the proxy pool from the command's flags. An empty
// pool is not an error; jobs then run over a direct connection.
func buildRotation(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) (*proxy.Rotation, error) {
	rotation := proxy.NewRotation()

	if endpoint, _ := cmd.Flags().GetString("proxy"); endpoint != "" {
		rotation.Add(endpoint)
	}
	if path, _ := cmd.Flags().GetString("proxy-file"); path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve proxy file path: %w", err)
		}
		n, err := rotation.LoadFile(expanded)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded proxy endpoints", zap.Int("count", n), zap.String("file", expanded))
	}

	if verify, _ := cmd.Flags().GetBool("verify-proxies"); verify && rotation.Len() > 0 {
		alive := make([]string, 0, rotation.Len())
		for _, endpoint := range rotation.Endpoints() {
			if err := proxy.CheckSOCKS5(ctx, endpoint, cfg.Proxy.VerifyTimeout); err != nil {
				logger.Warn("Dropping unreachable proxy", zap.String("proxy", endpoint), zap.Error(err))
				continue
			}
			alive = append(alive, endpoint)
		}
		rotation.Load(alive)
		logger.Info("Proxy verification finished", zap.Int("alive", rotation.Len()))
	}

	return rotation, nil
}

// exportSnapshot writes a timestamped line-format snapshot of the store and
// echoes it to stdout. Best effort; a snapshot failure never fails the batch.
func exportSnapshot(store accounts.Store, prefix string, logger *zap.Logger) {
	name := fmt.Sprintf("%s%s.txt", prefix, time.Now().Format("20060102_150405"))

	var buf bytes.Buffer
	if err := store.Export(&buf, accounts.FormatLine); err != nil {
		logger.Warn("Failed to render account snapshot", zap.Error(err))
		return
	}
	if err := os.WriteFile(name, buf.Bytes(), 0o600); err != nil {
		logger.Warn("Failed to write account snapshot", zap.String("file", name), zap.Error(err))
		return
	}
	logger.Info("Account snapshot exported", zap.String("file", name))

	fmt.Println("\n===== Accounts =====")
	fmt.Print(buf.String())
	fmt.Println("====================")
}
