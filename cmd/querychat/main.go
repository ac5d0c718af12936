package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/duckmesh/querychat/internal/cli/querychat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := querychat.NewRootCmd(querychat.Options{}).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
