package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/corrowatch-backend/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	a.Start(ctx)

	runErr := a.Run(ctx)
	if runErr != nil {
		a.Log.Error("HTTP server failed", "error", runErr)
	}
	if err := a.Close(); err != nil {
		a.Log.Warn("shutdown incomplete", "error", err)
	}
	if runErr != nil {
		os.Exit(1)
	}
}
