package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/inboxpilot-backend/internal/app"
	"github.com/yungbote/inboxpilot-backend/internal/platform/envutil"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, log)
	if err != nil {
		log.Error("Startup failed", "error", err)
		return 1
	}

	workCtx, cancelWork := context.WithCancel(context.Background())
	if err := a.Start(workCtx); err != nil {
		log.Error("Background start failed", "error", err)
		cancelWork()
		a.Close()
		return 1
	}

	runErr := a.Run(ctx)
	log.Info("Shutting down")
	cancelWork()
	a.Close()
	if runErr != nil {
		log.Error("HTTP server failed", "error", runErr)
		return 1
	}
	return 0
}
