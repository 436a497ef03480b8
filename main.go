// File: main.go
// Description: Default build target so `go run .` works. The full entry
// point with the .env bootstrap and the panic guard lives in cmd/deskhand.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/vantrigo/deskhand/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		// Interrupts surface as context cancellation and exit clean.
		if errors.Is(err, context.Canceled) {
			return
		}
		os.Exit(1)
	}
}
