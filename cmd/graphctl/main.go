// Package main is the command line client: it lays out holder graphs from
// local tables or the analysis backend, and drives backend analysis jobs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, bad.Sprint("Error: ")+err.Error())
		os.Exit(1)
	}
}
