package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"conduit/cmd/conduit/commands"
	"conduit/internal/deploy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		// a second interrupt terminates immediately
		stop()
	}()

	app := commands.NewApp()
	err := app.Run(ctx, os.Args)
	if err == nil || errors.Is(err, deploy.ErrAborted) {
		return
	}

	stop()
	if errors.Is(err, context.Canceled) {
		os.Exit(130)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
