// Command conversa runs and controls one realtime voice conversation.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbright/conversa/internal/app"
)

// shutdownSignals end an owned conversation gracefully so its transcript
// is still printed and saved. SIGHUP covers a closed terminal.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	return app.Execute(ctx, args, os.Stdout, os.Stderr)
}
