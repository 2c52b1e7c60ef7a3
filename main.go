// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mailforge/mailforge-cli/cmd"
	"github.com/mailforge/mailforge-cli/internal/observability"
)

// main is the minimal entry point for the Mailforge CLI. The richer
// interactive entry point lives in cmd/mailforge.
func main() {
	// An interrupt stops workers from pulling new jobs; in-flight jobs
	// still run to completion before the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		os.Exit(1)
	}
}
