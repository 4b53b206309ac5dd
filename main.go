// ./main.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/flowline-dev/flowline/cmd"
)

// main is the entry point for the flowline CLI.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}
