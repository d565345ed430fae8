package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/wheelctl/internal/logging"
	"github.com/danmuck/wheelctl/internal/workflow"
)

func main() {
	logging.ConfigureRuntime()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(workflow.Deps{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "wheelctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}
