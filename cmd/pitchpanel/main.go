// Command pitchpanel rehearses a project pitch against a panel of
// simulated judges and produces a scored feedback report.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(&cli{newClient: defaultClient}).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
