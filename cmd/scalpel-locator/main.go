package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/xkilldash9x/scalpel-locator/cmd"
)

var osExit = os.Exit

func main() {
	// Variables already set in the environment win over .env.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := exitCode(cmd.Execute(ctx))
	stop()
	osExit(code)
}

// exitCode maps a command error to a process exit code. Interrupting a
// command is a clean exit.
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	default:
		return 1
	}
}
