// File: cmd/deskhand/main.go
// Description: Full entry point for the deskhand binary. Loads a developer
// .env when present, wires interrupt signals into the command context, and
// records unrecovered panics to a log file before exiting.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/vantrigo/deskhand/cmd"
	"github.com/vantrigo/deskhand/internal/observability"
)

const panicLogFile = "panic.log"

// Function variables for dependency injection in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
	// newCommandContext builds the signal-aware root context; tests swap it
	// out to avoid installing real signal handlers.
	newCommandContext = func() (context.Context, context.CancelFunc) {
		return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	}
)

func main() {
	defer handlePanic()

	// A .env file is a developer convenience; absence is the normal case.
	_ = godotenv.Load()

	ctx, stop := newCommandContext()
	defer stop()

	osExit(run(ctx))
}

// run executes the CLI and maps its outcome to a process exit code.
func run(ctx context.Context) int {
	return exitCode(cmd.Execute(ctx))
}

// exitCode treats an interrupt observed as context cancellation as a clean
// shutdown rather than a failure.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 0
	default:
		return 1
	}
}

// handlePanic records an unrecovered panic to a log file before exiting, so
// a crash leaves more behind than a scrolled-away stack trace.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}

	observability.Sync()

	message := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(message), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", message)
		osExit(1)
		// Reached only when osExit is stubbed in tests.
		return
	}

	fmt.Fprintf(os.Stderr, "\ndeskhand crashed. Details logged to %s\n", panicLogFile)
	osExit(1)
}
