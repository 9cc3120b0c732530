package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	app "jardownloader/internal/app/jardownloader"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "Received exit signal, stopping downloads...")
		cancel()
		signal.Stop(sigChan)
	}()

	code := app.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
