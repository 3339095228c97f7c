package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/jsii-runtime-go"
	"github.com/vk/pipestack/internal/cli"
)

// main is the entrypoint for the pipestack application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// The real main function handles errors and exit codes.
	code := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	stop()
	jsii.Close()
	os.Exit(code)
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, outW, errW io.Writer, args []string) int {
	err := cli.Execute(ctx, args, outW, errW)
	if err == nil {
		return 0
	}
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(errW, "Error:", exitErr.Message)
		return exitErr.Code
	}
	fmt.Fprintln(errW, "Error:", err)
	return 1
}
