// Command marketcapture captures marketplace listings from a browser session
// and cleans exported listing sheets.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}
