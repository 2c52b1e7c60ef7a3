// File: cmd/mailforge/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mailforge/mailforge-cli/cmd"
	"github.com/mailforge/mailforge-cli/internal/observability"
)

const banner = `
  __  __       _ _  __
 |  \/  | __ _(_) |/ _| ___  _ __ __ _  ___
 | |\/| |/ _` + "`" + ` | | | |_ / _ \| '__/ _` + "`" + ` |/ _ \
 | |  | | (_| | | |  _| (_) | | | (_| |  __/
 |_|  |_|\__,_|_|_|_|  \___/|_|  \__, |\___|
                                 |___/
`

// Allows mocking os.Exit in tests.
var osExit = os.Exit

// main is the entry point of the application.
func main() {
	defer observability.Sync()

	// Set up a context that listens for interrupt signals (SIGINT, SIGTERM)
	// for graceful shutdown: running jobs finish, no new ones start.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// If arguments are passed, execute the command directly and exit.
	if len(os.Args) > 1 {
		if err := cmd.Execute(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				osExit(0) // Exit cleanly on graceful shutdown.
			} else {
				osExit(1)
			}
		}
		return
	}

	// -- Interactive Mode --
	fmt.Print(banner)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("mailforge > ")
		if !scanner.Scan() {
			break // Exit on EOF (Ctrl+D).
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		executeInteractiveCommand(ctx, line)
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		osExit(1)
	}

	fmt.Println("Exiting mailforge.")
}

// executeInteractiveCommand parses and runs the command from the interactive
// shell. A new, clean command instance per execution keeps flags from one
// command from leaking into the next.
func executeInteractiveCommand(ctx context.Context, line string) {
	rootCmd := cmd.NewRootCommand()
	rootCmd.SetArgs(strings.Fields(line))

	func() {
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(os.Stderr, "Error: Command panicked: %v\n", r)
			}
		}()
		// Errors are already logged by the command; the shell keeps running.
		_ = rootCmd.ExecuteContext(ctx)
	}()
}
