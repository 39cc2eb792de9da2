// Command visval calculates satellite visibility windows with several SGP4
// engines and validates them against a reference implementation.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	stop()

	if err != nil {
		os.Exit(1)
	}
}
